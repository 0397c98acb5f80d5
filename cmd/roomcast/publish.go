package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mivora/roomcast/internal/adapters/janus"
	"github.com/mivora/roomcast/internal/adapters/registry"
	"github.com/mivora/roomcast/internal/app"
	"github.com/mivora/roomcast/internal/core"
	"github.com/mivora/roomcast/internal/domain"
)

var (
	publishRoom        int64
	publishDisplay     string
	publishDescription string
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Join a room as publisher and publish an A/V stream",
	RunE:  runPublish,
}

func init() {
	publishCmd.Flags().Int64Var(&publishRoom, "room", 1234, "room id to publish into")
	publishCmd.Flags().StringVar(&publishDisplay, "display", "", "display name shown to viewers")
	publishCmd.Flags().StringVar(&publishDescription, "description", "", "mountpoint description")
}

func runPublish(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	lc := app.NewLifecycle(janus.DialSignal)
	pub := app.NewPublisher(lc, registry.NewClient(cfg.RegistryURL))

	if res := pub.Init(ctx, cfg.Server); !res.Success {
		return errors.New(res.Error)
	}
	room := domain.RoomID(publishRoom)
	if res := pub.JoinRoom(ctx, room, publishDisplay); !res.Success {
		return errors.New(res.Error)
	}

	joinCtx, joinCancel := context.WithTimeout(ctx, 15*time.Second)
	defer joinCancel()
	if err := waitFor(joinCtx, func() bool { return pub.Status().Connected }); err != nil {
		return errors.New("room join not confirmed: " + err.Error())
	}

	stream, err := captureStream()
	if err != nil {
		return err
	}
	if res := pub.PublishStream(ctx, stream, room, publishDescription); !res.Success {
		return errors.New(res.Error)
	}
	log.Info().Int64("room", publishRoom).Msg("publishing, press Ctrl-C to leave")

	<-ctx.Done()

	leaveCtx, leaveCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer leaveCancel()
	if res := pub.LeaveRoom(leaveCtx, room, true); !res.Success {
		log.Warn().Str("error", res.Error).Msg("leave finished with errors")
	}
	return nil
}

// captureStream builds one VP8 video and one Opus audio sample track. Real
// capture sources would feed samples into these.
func captureStream() (*core.LocalStream, error) {
	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video0", "roomcast")
	if err != nil {
		return nil, err
	}
	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio0", "roomcast")
	if err != nil {
		return nil, err
	}
	return core.NewLocalStream(
		core.LocalTrack{ID: video.ID(), Kind: core.TrackVideo, Sample: video},
		core.LocalTrack{ID: audio.ID(), Kind: core.TrackAudio, Sample: audio},
	), nil
}
