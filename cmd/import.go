package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/centrominero/labvision/internal/catalog"
	"github.com/centrominero/labvision/internal/config"
	"github.com/centrominero/labvision/internal/recognizer"
)

var importCmd = &cobra.Command{
	Use:   "import <directory>",
	Short: "Bulk-register training images from a directory tree",
	Long: `Import walks a directory whose subdirectories are object names and
registers every image inside them. A tree like

  fotos/
    Martillo de Bola/
      a.jpg
      b.jpg
    Llave Inglesa/
      c.jpg

registers two objects with their images. Files that fail to decode or
yield no features are reported and skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().String("kind", "item", "Owner kind for every imported object: item or equipment")
}

type importEntry struct {
	name string
	path string
}

func collectImportEntries(root string) ([]importEntry, error) {
	dirs, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", root, err)
	}

	var entries []importEntry
	for _, dir := range dirs {
		if !dir.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(root, dir.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", dir.Name(), err)
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			switch strings.ToLower(filepath.Ext(f.Name())) {
			case ".jpg", ".jpeg", ".png":
				entries = append(entries, importEntry{
					name: dir.Name(),
					path: filepath.Join(root, dir.Name(), f.Name()),
				})
			}
		}
	}
	return entries, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	service, cleanup, err := buildService(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	kind, ok := catalog.ParseOwnerKind(mustGetString(cmd, "kind"))
	if !ok {
		return fmt.Errorf("unknown kind %q", mustGetString(cmd, "kind"))
	}

	entries, err := collectImportEntries(args[0])
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("Nothing to import")
		return nil
	}

	bar := progressbar.NewOptions(len(entries),
		progressbar.OptionSetDescription("Importing images"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	imported := 0
	var failures []string
	for _, entry := range entries {
		data, err := os.ReadFile(entry.path)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", entry.path, err))
			bar.Add(1)
			continue
		}
		if _, err := service.RegisterReference(cmd.Context(), recognizer.RegisterRequest{
			Kind:      kind,
			OwnerName: entry.name,
			ImageData: data,
		}); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", entry.path, err))
			bar.Add(1)
			continue
		}
		imported++
		bar.Add(1)
	}
	fmt.Println()

	fmt.Printf("Imported %d of %d images\n", imported, len(entries))
	for _, f := range failures {
		fmt.Printf("  skipped %s\n", f)
	}
	return nil
}
