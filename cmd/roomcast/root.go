package main

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mivora/roomcast/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "roomcast",
	Short:         "Videoroom publish/subscribe client and mountpoint registry",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		level, err := zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			level = zerolog.InfoLevel
		}
		zerolog.SetGlobalLevel(level)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(publishCmd, watchCmd, registrydCmd)
}

// waitFor polls cond until it holds or the context ends.
func waitFor(ctx context.Context, cond func() bool) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if cond() {
				return nil
			}
		}
	}
}
