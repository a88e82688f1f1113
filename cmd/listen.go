package cmd

import (
	"context"
	"log"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"SyncFM/core/clock"
	"SyncFM/core/listener"
	"SyncFM/logger"
)

var (
	listenURL         string
	listenRate        float64
	listenTrackLength float64
	listenLoadDelay   time.Duration
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Run a headless listener against a station",
	Long: `Connects to a station websocket and drives the listener reconciliation
machine with a simulated media element, logging what a player would show.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoad()
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client, err := listener.Dial(ctx, listenURL)
		if err != nil {
			log.Fatalf("Failed to connect: %v", err)
		}
		defer client.Close()

		media := listener.NewSimulatedMedia(clock.Real{})
		media.SetRate(listenRate)
		media.SetLoadDelay(listenLoadDelay)
		if listenTrackLength > 0 {
			media.SetDuration(listenTrackLength)
		}

		m := listener.New(listener.Options{
			Media:        media,
			Reporter:     client,
			SourceURL:    listener.MusicPath(httpBase(listenURL)),
			InitialDrift: cfg.InitialDrift,
			ResumeDrift:  cfg.ResumeDrift,
			SteadyDrift:  cfg.SteadyDrift,
			Debounce:     cfg.Debounce,
			ResumeGrace:  cfg.ResumeGrace,
		})
		m.Join()
		defer m.Leave()

		go drive(ctx, m, media)
		if err := client.Run(ctx, m); err != nil {
			log.Fatalf("Connection lost: %v", err)
		}
	},
}

// drive plays the part of the media element's event loop.
func drive(ctx context.Context, m *listener.Machine, media *listener.SimulatedMedia) {
	tick := time.NewTicker(250 * time.Millisecond)
	defer tick.Stop()
	status := time.NewTicker(2 * time.Second)
	defer status.Stop()

	var loaded, ended string
	for {
		select {
		case <-ctx.Done():
			return
		case <-status.C:
			v := m.View()
			logger.Info("Now playing",
				logger.String("state", v.State.String()),
				logger.String("track", v.Track),
				logger.String("title", v.Title),
				logger.String("mode", v.Mode.String()),
				logger.Float64("position", v.Position),
				logger.Bool("preparing", v.Preparing),
				logger.Bool("playing", v.Playing))
		case <-tick.C:
			src := media.Source()
			if src == "" || media.ReadyState() < listener.HaveEnoughData {
				continue
			}
			if src != loaded {
				loaded = src
				if listenTrackLength > 0 {
					m.HandleMetadataLoaded(listenTrackLength)
				}
				m.HandleMediaReady()
			}
			m.HandleTimeUpdate()
			if media.Ended() && ended != src {
				ended = src
				m.HandleEnded()
			}
		}
	}
}

// httpBase turns ws://host/ws into http://host.
func httpBase(wsURL string) string {
	u, err := url.Parse(wsURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}
	u.Path = ""
	u.RawQuery = ""
	return u.String()
}

func init() {
	rootCmd.AddCommand(listenCmd)
	listenCmd.Flags().StringVarP(&listenURL, "url", "u", "ws://localhost:3001/ws", "station websocket URL")
	listenCmd.Flags().Float64Var(&listenRate, "rate", 1, "local clock speed relative to real time")
	listenCmd.Flags().Float64Var(&listenTrackLength, "track-length", 0, "simulated track length in seconds; 0 never ends")
	listenCmd.Flags().DurationVar(&listenLoadDelay, "load-delay", 300*time.Millisecond, "simulated buffering time per track")
}
