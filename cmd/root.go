package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"SyncFM/config"
	"SyncFM/core/catalog"
	"SyncFM/core/radio"
	"SyncFM/logger"
	"SyncFM/model"
)

var rootCmd = &cobra.Command{
	Use:   "syncfm",
	Short: "SyncFM is a synchronized internet radio station.",
	Run:   runServe,
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// mustLoad loads the configuration and initializes logging.
func mustLoad() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := logger.Init(logger.Options{
		Level:      cfg.LogLevel,
		OutputPath: cfg.LogFile,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAgeDays,
		Compress:   true,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	return cfg
}

func newCatalog(cfg *config.Config, cache catalog.MetadataCache) *catalog.Catalog {
	dirs := make(map[model.Mode]string, len(model.Modes))
	for _, mode := range model.Modes {
		dirs[mode] = cfg.ModeDir(mode.String())
	}
	return catalog.New(catalog.Options{
		Root:       cfg.MusicDir,
		Dirs:       dirs,
		Extensions: cfg.AudioExtensions,
		Reader:     catalog.TagFileReader{},
		Cache:      cache,
		Workers:    cfg.TagWorkers,
	})
}

func newSchedule(cfg *config.Config) radio.ModeSchedule {
	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("%v", err)
	}
	return radio.ModeSchedule{
		Location:     loc,
		DayStartHour: cfg.DayStartHour,
		DayEndHour:   cfg.DayEndHour,
	}
}
