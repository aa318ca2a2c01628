// broadcast publishes a WebM file to a relay room as a live stream: it
// joins the room, announces a stream, relays the file in timeslice-sized
// chunks at real-time pace, ends the stream, and archives the recording.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/AndlerRL/stream-u-media/internal/config"
	"github.com/AndlerRL/stream-u-media/internal/domain"
	"github.com/AndlerRL/stream-u-media/pkg/client"
	pkglog "github.com/AndlerRL/stream-u-media/pkg/log"
	"github.com/AndlerRL/stream-u-media/pkg/media"
	"github.com/AndlerRL/stream-u-media/pkg/storage"
)

func main() {
	var (
		addr      = flag.String("addr", "ws://localhost:8090/ws", "relay websocket endpoint")
		roomID    = flag.String("room", "", "room to stream into")
		name      = flag.String("name", "broadcaster", "display name")
		file      = flag.String("file", "", "WebM file to stream")
		chunkSize = flag.Int("chunk-size", 256<<10, "bytes per relayed chunk")
		archive   = flag.Bool("archive", false, "upload the recording to storage after the stream ends")
		logLevel  = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	pkglog.Init(pkglog.Config{Level: *logLevel, Pretty: true, ServiceName: "broadcast"})
	logger := pkglog.L()

	if *roomID == "" || *file == "" {
		logger.Fatal().Msg("both -room and -file are required")
	}
	if *chunkSize <= 0 || *chunkSize > media.MaxChunkSize {
		logger.Fatal().Int("chunk_size", *chunkSize).Int("max", media.MaxChunkSize).Msg("invalid chunk size")
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		logger.Fatal().Err(err).Str("file", *file).Msg("failed to read input")
	}
	if err := media.Probe(data); err != nil {
		logger.Fatal().Err(err).Str("file", *file).Msg("input is not a WebM stream")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info().Msg("interrupted, ending stream")
		cancel()
	}()

	conn, err := client.Dial(ctx, *addr)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", *addr).Msg("failed to connect to relay")
	}
	defer conn.Close()

	// Keep the read side drained so server pings and viewer
	// notifications do not back up the connection.
	go conn.Run(client.Handlers{
		OnViewerJoined: func(p domain.ViewerJoinedPayload) {
			logger.Info().
				Str(pkglog.FieldUsername, p.Username).
				Int(pkglog.FieldViewers, p.Viewers).
				Msg("viewer joined")
		},
		OnViewerCount: func(p domain.ViewerCountPayload) {
			logger.Debug().Int(pkglog.FieldViewers, p.Viewers).Msg("room occupancy changed")
		},
		OnError: func(p domain.ErrorPayload) {
			logger.Error().Str("code", p.Code).Str("message", p.Message).Msg("relay rejected request")
		},
	})

	streamID := uuid.New().String()
	logger.Info().
		Str(pkglog.FieldRoomID, *roomID).
		Str(pkglog.FieldStreamID, streamID).
		Int("bytes", len(data)).
		Msg("starting broadcast")

	if err := conn.JoinRoom(*roomID, *name); err != nil {
		logger.Fatal().Err(err).Msg("failed to join room")
	}
	if err := conn.StartStream(*roomID, streamID, *name); err != nil {
		logger.Fatal().Err(err).Msg("failed to start stream")
	}

	if err := relayFile(ctx, conn, data, *roomID, streamID, *name, *chunkSize); err != nil {
		logger.Error().Err(err).Msg("broadcast aborted")
	}

	if err := conn.EndStream(*roomID, streamID, *name); err != nil {
		logger.Error().Err(err).Msg("failed to end stream")
	}
	logger.Info().Str(pkglog.FieldStreamID, streamID).Msg("broadcast finished")

	if *archive {
		archiveRecording(data, *roomID, streamID)
	}
}

// relayFile sends the file one chunk per timeslice, matching the pace a
// live capture pipeline would produce.
func relayFile(ctx context.Context, conn *client.Conn, data []byte, roomID, streamID, name string, chunkSize int) error {
	ticker := time.NewTicker(media.ChunkDuration)
	defer ticker.Stop()

	for off := 0; off < len(data); off += chunkSize {
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}
		if err := conn.SendChunk(roomID, streamID, name, data[off:end]); err != nil {
			return fmt.Errorf("failed to relay chunk at offset %d: %w", off, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// archiveRecording uploads the finished stream under a per-room key so
// it can be replayed later.
func archiveRecording(data []byte, roomID, streamID string) {
	l := pkglog.L()

	cfg, err := config.Load()
	if err != nil {
		l.Error().Err(err).Msg("failed to load storage configuration")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		l.Error().Err(err).Msg("failed to initialize storage")
		return
	}

	key := fmt.Sprintf("recordings/%s/%s.webm", roomID, streamID)
	if err := store.Write(ctx, key, bytes.NewReader(data), int64(len(data)), media.MIMEType); err != nil {
		l.Error().Err(err).Str("key", key).Msg("failed to archive recording")
		return
	}
	l.Info().Str("key", key).Msg("recording archived")
}
