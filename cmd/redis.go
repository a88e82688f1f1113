package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"SyncFM/cache"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Check the Redis connection",
	Long:  `Connects to Redis and runs a set/get/delete round trip, then prints the last mirrored snapshot.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoad()
		if cfg.RedisHost == "" {
			log.Fatal("REDIS_HOST is not set")
		}
		ctx := context.Background()

		fmt.Printf("Redis: %s, DB: %d\n", cfg.RedisAddr(), cfg.RedisDB)
		client, err := cache.Connect(ctx, cfg)
		if err != nil {
			log.Fatalf("Could not connect to Redis: %v", err)
		}
		defer client.Close()

		if err := cache.Check(ctx, client); err != nil {
			log.Fatalf("Redis check failed: %v", err)
		}
		fmt.Println("Redis read/write check passed.")

		snap, ok, err := cache.NewNowPlaying(client).Latest(ctx)
		switch {
		case err != nil:
			log.Printf("Failed to read now playing: %v", err)
		case !ok:
			fmt.Println("No station is mirroring to this Redis.")
		case snap.IsPreparing:
			fmt.Printf("Station is preparing %s mode.\n", snap.Mode)
		default:
			fmt.Printf("Now playing: %s - %s (%s, %.1fs)\n", snap.Artist, snap.Title, snap.Mode, snap.Seek)
		}
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
