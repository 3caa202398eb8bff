package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcoot/scanogram/internal/model"
	"github.com/mcoot/scanogram/internal/web/ws"
)

func newWatchCmd() *cobra.Command {
	var (
		roomCode   string
		createName string
		maxPlayers int
		limit      int
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Open a realtime session and print events",
		Long: `Open a realtime session and print every event the server sends.

With --room the session joins an existing room first. With --create it
creates a new room and prints its code. Press Ctrl+C to stop.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if roomCode != "" && createName != "" {
				return errors.New("--room and --create cannot be used together")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			session, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer session.Close()

			if cfg.Verbose {
				fmt.Fprintf(cmd.ErrOrStderr(), "Connected as %s (%s)\n", session.Player.Name, session.Player.ID)
			}

			seen := 0
			printFrame := func(frame ws.Frame) {
				out.PrintEvent(frame)
				seen++
			}

			switch {
			case createName != "":
				raw, err := session.Request(ctx, model.EventCreateRoom, model.RoomConfig{
					Name:       createName,
					MaxPlayers: maxPlayers,
				}, printFrame)
				if err != nil {
					return err
				}
				printFrame(ws.Frame{Event: model.EventRoomCreated, Data: raw})
			case roomCode != "":
				raw, err := session.Request(ctx, model.EventJoinRoom, roomCode, printFrame)
				if err != nil {
					return err
				}
				printFrame(ws.Frame{Event: model.EventRoomJoined, Data: raw})
			}

			for limit <= 0 || seen < limit {
				frame, err := session.Next(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				printFrame(frame)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&roomCode, "room", "", "Join this room before watching")
	cmd.Flags().StringVar(&createName, "create", "", "Create a room with this name before watching")
	cmd.Flags().IntVar(&maxPlayers, "max-players", 4, "Player limit for --create")
	cmd.Flags().IntVar(&limit, "limit", 0, "Stop after this many events (0 = no limit)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Stop after this long (0 = no timeout)")

	return cmd
}
