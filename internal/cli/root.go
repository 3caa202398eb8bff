package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfg    *Config
	client *Client
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg = DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "scanogram",
		Short: "CLI tool for the scanogram room server",
		Long: `scanogram is a CLI tool for the scanogram room server.

It reads rooms, players and server stats from the JSON API, and can open a
realtime session to create or join rooms, chat and watch room events.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load the remembered player if not provided via flag/env
			if err := cfg.LoadPlayerID(); err != nil {
				return err
			}

			client = NewClient(cfg.ServerURL)
			return nil
		},
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Server URL (env: SCANOGRAM_SERVER)")
	rootCmd.PersistentFlags().StringVar(&cfg.PlayerID, "player-id", cfg.PlayerID, "Player id to connect as (env: SCANOGRAM_PLAYER_ID)")
	rootCmd.PersistentFlags().StringVar(&cfg.PlayerFile, "player-file", cfg.PlayerFile, "File remembering the player id (env: SCANOGRAM_PLAYER_FILE)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Output, "output", "o", cfg.Output, "Output format: text, json")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Verbose output")

	// Add subcommands
	rootCmd.AddCommand(newHealthCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newRoomCmd())
	rootCmd.AddCommand(newPlayerCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newSayCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
