package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"SyncFM/cache"
	"SyncFM/core/broadcast"
	"SyncFM/core/catalog"
	"SyncFM/core/clock"
	"SyncFM/core/radio"
	"SyncFM/db"
	"SyncFM/logger"
	"SyncFM/model"
	"SyncFM/repository"
	"SyncFM/server"
	"SyncFM/storage"
)

const (
	peerSendBuffer = 32
	watchDebounce  = 2 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the radio station",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := mustLoad()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var tagCache catalog.MetadataCache
	if cfg.DBHost != "" {
		gdb, err := db.Open(cfg)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close(gdb)
		tc := repository.NewTagCache(gdb)
		if err := tc.Migrate(); err != nil {
			log.Fatalf("Failed to migrate tag cache: %v", err)
		}
		tagCache = tc
	}

	cat := newCatalog(cfg, tagCache)
	engine := radio.NewEngine(radio.Options{
		Clock:         clock.Real{},
		Schedule:      newSchedule(cfg),
		Catalog:       cat,
		MinTrackPlay:  cfg.MinTrackPlay,
		SettleDelay:   cfg.SettleDelay,
		EndEpsilon:    cfg.EndEpsilon,
		UpcomingCount: cfg.UpcomingCount,
	})
	if err := engine.Start(ctx); err != nil {
		log.Fatalf("Failed to start radio: %v", err)
	}

	if cfg.WatchCatalog {
		watcher, err := catalog.NewWatcher(cat, watchDebounce, func(mode model.Mode) {
			if err := engine.Refresh(ctx, mode); err != nil {
				logger.Warn("Catalog refresh failed", logger.String("mode", mode.String()), logger.ErrorField(err))
			}
		})
		if err != nil {
			logger.Warn("Catalog watching disabled", logger.ErrorField(err))
		} else {
			defer watcher.Close()
		}
	}

	var sinks []broadcast.SnapshotSink
	if cfg.RedisHost != "" {
		client, err := cache.Connect(ctx, cfg)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer client.Close()
		sinks = append(sinks, cache.NewNowPlaying(client))
	}

	var store storage.AudioStore = storage.NewLocalStore(cfg.MusicDir, cfg.AudioExtensions)
	if cfg.MinioEndpoint != "" {
		ms, err := storage.NewMinioStore(ctx, cfg)
		if err != nil {
			log.Fatalf("Failed to initialize MinIO: %v", err)
		}
		store = ms
	}

	hub := broadcast.NewHub(peerSendBuffer)
	station := broadcast.NewStation(engine, hub, clock.Real{}, cfg.BroadcastInterval, sinks...)
	hub.OnJoin(station.Greet)
	go hub.Run()
	defer hub.Stop()
	go station.Run(ctx)

	handler := server.NewHandler(engine, hub, station, store, clock.Real{})
	router := server.NewRouter(handler, server.NewAdminAuth(cfg.AdminJWTSecret))
	if err := server.Serve(ctx, ":"+cfg.Port, router); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
	stop()
	engine.Wait()
}
