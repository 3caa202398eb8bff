package cli

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcoot/scanogram/internal/model"
)

func newSayCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "say <code> <text>",
		Short: "Join a room and post one chat message",
		Long: `Join a room and post one chat message.

This opens a session as the remembered player, so it replaces any other
session that player has open.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			session, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer session.Close()

			code := model.RoomCode(args[0])
			if _, err := session.Request(ctx, model.EventJoinRoom, code, nil); err != nil {
				return err
			}
			raw, err := session.Request(ctx, model.EventSendMessage, model.SendMessagePayload{
				RoomID:  code,
				Message: args[1],
			}, nil)
			if err != nil {
				return err
			}

			var messageID string
			if err := json.Unmarshal(raw, &messageID); err != nil {
				return err
			}
			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(map[string]string{
				"roomId":    string(code),
				"messageId": messageID,
			})
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Give up after this long")

	return cmd
}
