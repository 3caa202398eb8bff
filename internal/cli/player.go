package cli

import (
	"errors"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/mcoot/scanogram/internal/model"
)

func newPlayerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "player",
		Short: "Player commands",
	}

	cmd.AddCommand(newPlayerGetCmd())

	return cmd
}

func newPlayerGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [id]",
		Short: "Get a player and their devices (defaults to the remembered player)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := cfg.PlayerID
			if len(args) == 1 {
				id = args[0]
			}
			if id == "" {
				return errors.New("no player id given and none remembered; run watch first or pass an id")
			}

			var result model.PopulatedPlayer
			if err := client.Get("/api/v1/players/"+url.PathEscape(id), &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}
