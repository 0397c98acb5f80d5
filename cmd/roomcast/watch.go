package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mivora/roomcast/internal/adapters/janus"
	"github.com/mivora/roomcast/internal/app"
	"github.com/mivora/roomcast/internal/domain"
)

var watchRoom int64

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Join a room as viewer and receive the published stream",
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().Int64Var(&watchRoom, "room", 1234, "room id to watch")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	lc := app.NewLifecycle(janus.DialSignal)
	viewer := app.NewViewer(lc)

	if res := viewer.Init(ctx, cfg.Server); !res.Success {
		return errors.New(res.Error)
	}

	stopped := make(chan struct{}, 1)
	res := viewer.Play(ctx, domain.RoomID(watchRoom), func() {
		log.Info().Msg("publisher went away")
		select {
		case stopped <- struct{}{}:
		default:
		}
	})
	if !res.Success {
		return errors.New(res.Error)
	}

	playCtx, playCancel := context.WithTimeout(ctx, 15*time.Second)
	defer playCancel()
	if err := waitFor(playCtx, func() bool { return viewer.Status().Playing }); err != nil {
		return errors.New("playback not confirmed: " + err.Error())
	}
	log.Info().Int64("room", watchRoom).Msg("playing, press Ctrl-C to stop")

	select {
	case <-ctx.Done():
	case <-stopped:
	}

	viewer.Stop()
	leaveCtx, leaveCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer leaveCancel()
	if res := viewer.Leave(leaveCtx, true); !res.Success {
		log.Warn().Str("error", res.Error).Msg("leave finished with errors")
	}
	return nil
}
