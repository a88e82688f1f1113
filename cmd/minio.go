package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"SyncFM/config"
	"SyncFM/storage"
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "Manage the MinIO mirror of the music library",
}

var minioSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Upload new or changed audio files to the bucket",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoad()
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		store := mustMinio(ctx, cfg)
		stats, err := store.Sync(ctx, cfg.MusicDir)
		if err != nil {
			log.Fatalf("Sync failed: %v", err)
		}
		fmt.Printf("Uploaded %d files (%s), %d unchanged.\n", stats.Uploaded, storage.FormatSize(stats.Bytes), stats.Skipped)
	},
}

var minioStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show what the bucket holds",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoad()
		ctx := context.Background()

		stats, err := mustMinio(ctx, cfg).Stats(ctx)
		if err != nil {
			log.Fatalf("Failed to read bucket stats: %v", err)
		}
		fmt.Printf("Bucket:        %s/%s\n", cfg.MinioBucket, cfg.MinioPrefix)
		fmt.Printf("Objects:       %d\n", stats.TotalObjects)
		fmt.Printf("Total size:    %s\n", storage.FormatSize(stats.TotalSize))
		if !stats.LastModified.IsZero() {
			fmt.Printf("Last modified: %s\n", stats.LastModified.Format("2006-01-02 15:04:05"))
		}
	},
}

func mustMinio(ctx context.Context, cfg *config.Config) *storage.MinioStore {
	if cfg.MinioEndpoint == "" {
		log.Fatal("MINIO_ENDPOINT is not set")
	}
	store, err := storage.NewMinioStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Could not connect to MinIO: %v", err)
	}
	return store
}

func init() {
	rootCmd.AddCommand(minioCmd)
	minioCmd.AddCommand(minioSyncCmd, minioStatsCmd)

	minioCmd.Example = `  # mirror MUSIC_DIR into the bucket
  syncfm minio sync

  # show bucket usage
  syncfm minio stats`
}
