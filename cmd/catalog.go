package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"SyncFM/model"
)

var catalogMode string

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Scan a mode's directory and print its tracks",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoad()

		modes := model.Modes
		if catalogMode != "" {
			mode, ok := model.ParseMode(catalogMode)
			if !ok {
				log.Fatalf("Unknown mode %q", catalogMode)
			}
			modes = []model.Mode{mode}
		}

		cat := newCatalog(cfg, nil)
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, mode := range modes {
			tracks, err := cat.Build(context.Background(), mode)
			if err != nil {
				log.Fatalf("Failed to build %s catalog: %v", mode, err)
			}
			fmt.Fprintf(w, "\n%s (%d tracks, %s)\n", mode, len(tracks), cat.Dir(mode))
			for _, t := range tracks {
				fmt.Fprintf(w, "  %s\t%s\t%s\n", t.ID, t.Title, t.Artist)
			}
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.Flags().StringVarP(&catalogMode, "mode", "m", "", "only scan this mode (day or night)")
}
