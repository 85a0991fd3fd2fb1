package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/centrominero/labvision/internal/config"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print training-data statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	service, cleanup, err := buildService(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	stats, err := service.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("collecting stats: %w", err)
	}

	fmt.Println("Filesystem:")
	for _, kind := range []string{"objetos", "equipos"} {
		ks := stats.Storage.Filesystem[kind]
		fmt.Printf("  %-10s %d objects, %d images\n", kind, ks.Objects, ks.Images)
	}
	if db := stats.Storage.Database; db != nil {
		fmt.Printf("Database: %d objects, %d images\n", db.Objects, db.Total)
		views := make([]string, 0, len(db.ByViewTag))
		for v := range db.ByViewTag {
			views = append(views, v)
		}
		sort.Strings(views)
		for _, v := range views {
			fmt.Printf("  %-15s %d\n", v, db.ByViewTag[v])
		}
	}
	fmt.Printf("Loaded templates: %d (bundle version %d)\n", stats.Templates, stats.BundleVersion)
	return nil
}
