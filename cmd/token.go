package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"SyncFM/server"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an admin token for the skip/pause/resume API",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoad()
		auth := server.NewAdminAuth(cfg.AdminJWTSecret)
		if auth == nil {
			log.Fatal("ADMIN_JWT_SECRET is not set")
		}
		token, err := auth.IssueToken(tokenSubject, tokenTTL)
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Println(token)
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVarP(&tokenSubject, "subject", "s", "admin", "who the token is issued to")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}
