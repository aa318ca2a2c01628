// watch joins a relay room as a viewer, reassembles the attached stream
// into a local WebM file, and prints switch offers for other live
// streams.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/AndlerRL/stream-u-media/internal/domain"
	"github.com/AndlerRL/stream-u-media/pkg/client"
	"github.com/AndlerRL/stream-u-media/pkg/client/buffer"
	"github.com/AndlerRL/stream-u-media/pkg/client/session"
	pkglog "github.com/AndlerRL/stream-u-media/pkg/log"
	"github.com/AndlerRL/stream-u-media/pkg/media"
	"github.com/AndlerRL/stream-u-media/pkg/pubsub"
)

func main() {
	var (
		addr      = flag.String("addr", "ws://localhost:8090/ws", "relay websocket endpoint")
		roomID    = flag.String("room", "", "room to watch")
		name      = flag.String("name", "viewer", "display name")
		outDir    = flag.String("out", ".", "directory for reassembled stream files")
		redisAddr = flag.String("redis", "", "redis address for out-of-band room updates (optional)")
		logLevel  = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	pkglog.Init(pkglog.Config{Level: *logLevel, Pretty: true, ServiceName: "watch"})
	logger := pkglog.L()

	if *roomID == "" {
		logger.Fatal().Msg("-room is required")
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		logger.Fatal().Err(err).Str("dir", *outDir).Msg("failed to create output directory")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Room updates also flow out of band over redis, the same feed the
	// event page layer consumes. Useful when watching without attaching.
	if *redisAddr != "" {
		ps, err := pubsub.NewRedisPubSub(pubsub.RedisConfig{Address: *redisAddr})
		if err != nil {
			logger.Warn().Err(err).Str("address", *redisAddr).Msg("failed to connect to redis, room updates disabled")
		} else {
			defer ps.Close()
			events, err := ps.SubscribeRoom(ctx, *roomID)
			if err != nil {
				logger.Warn().Err(err).Str(pkglog.FieldRoomID, *roomID).Msg("failed to subscribe to room updates")
			} else {
				go logRoomEvents(events)
			}
		}
	}

	conn, err := client.Dial(ctx, *addr)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", *addr).Msg("failed to connect to relay")
	}
	defer conn.Close()

	mgr := buffer.NewManager()
	defer mgr.Close()

	// One output file per attached stream.
	newSink := func(streamID string) buffer.Sink {
		path := filepath.Join(*outDir, streamID+".webm")
		return buffer.NewFileSink(media.MIMEType, path)
	}

	ctrl := session.NewController(mgr, newSink, func(info domain.StreamInfo) {
		fmt.Printf("%s is streaming (stream %s)\n", info.DisplayName, info.StreamID)
	})

	// Surface buffer state changes while frames keep flowing.
	go func() {
		for ev := range mgr.Events() {
			if ev.Err != nil {
				logger.Error().Err(ev.Err).Str(pkglog.FieldStreamID, ev.StreamID).Msg("playback failed")
				continue
			}
			logger.Debug().
				Str(pkglog.FieldStreamID, ev.StreamID).
				Str("state", ev.State.String()).
				Msg("buffer state changed")
		}
	}()

	handlers := ctrl.Handlers()
	handlers.OnViewerCount = func(p domain.ViewerCountPayload) {
		logger.Info().Int(pkglog.FieldViewers, p.Viewers).Msg("room occupancy changed")
	}
	handlers.OnError = func(p domain.ErrorPayload) {
		logger.Error().Str("code", p.Code).Str("message", p.Message).Msg("relay rejected request")
	}

	done := make(chan error, 1)
	go func() {
		done <- conn.Run(handlers)
	}()

	if err := conn.JoinRoom(*roomID, *name); err != nil {
		logger.Fatal().Err(err).Msg("failed to join room")
	}
	logger.Info().Str(pkglog.FieldRoomID, *roomID).Msg("watching room")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-done:
		if err != nil {
			logger.Error().Err(err).Msg("connection lost")
		}
	case <-quit:
		logger.Info().Msg("leaving room")
	}
}

// logRoomEvents surfaces the relay's out-of-band room feed: occupancy
// plus live stream ids on every change, and stream lifecycle edges.
func logRoomEvents(events <-chan *pubsub.Event) {
	l := pkglog.L()
	for ev := range events {
		switch ev.Type {
		case pubsub.EventRoomUpdate:
			var p pubsub.RoomUpdatePayload
			if err := ev.UnmarshalPayload(&p); err != nil {
				l.Warn().Err(err).Msg("dropping malformed room update")
				continue
			}
			l.Info().
				Str(pkglog.FieldRoomID, p.RoomID).
				Int(pkglog.FieldViewers, p.Viewers).
				Strs("live_streams", p.LiveStreams).
				Msg("room update")
		case pubsub.EventStreamLive:
			var p pubsub.StreamLivePayload
			if err := ev.UnmarshalPayload(&p); err != nil {
				continue
			}
			l.Info().
				Str(pkglog.FieldStreamID, p.StreamID).
				Str(pkglog.FieldUsername, p.DisplayName).
				Msg("stream went live")
		case pubsub.EventStreamEnded:
			var p pubsub.StreamEndedPayload
			if err := ev.UnmarshalPayload(&p); err != nil {
				continue
			}
			l.Info().
				Str(pkglog.FieldStreamID, p.StreamID).
				Str("reason", p.Reason).
				Msg("stream ended")
		}
	}
}
