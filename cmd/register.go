package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/centrominero/labvision/internal/catalog"
	"github.com/centrominero/labvision/internal/config"
	"github.com/centrominero/labvision/internal/recognizer"
)

var registerCmd = &cobra.Command{
	Use:   "register <image-file>",
	Short: "Register a training image for an object",
	Long: `Register stores one reference image for an object or a piece of
equipment: the image file under the image root, its feature sidecar, and
the database row when a database is configured.`,
	Args: cobra.ExactArgs(1),
	RunE: runRegister,
}

func init() {
	rootCmd.AddCommand(registerCmd)

	registerCmd.Flags().String("name", "", "Object name (required unless --id resolves it)")
	registerCmd.Flags().Int64("id", 0, "Object id in the database")
	registerCmd.Flags().String("kind", "item", "Owner kind: item or equipment")
	registerCmd.Flags().String("view", "", "View tag (frontal, posterior, superior, inferior, lateral_left, lateral_right)")
	registerCmd.Flags().String("category", "", "Object category")
	registerCmd.Flags().String("notes", "", "Free-form notes")
}

func runRegister(cmd *cobra.Command, args []string) error {
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

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	res, err := service.RegisterReference(cmd.Context(), recognizer.RegisterRequest{
		Kind:      kind,
		OwnerID:   mustGetInt64(cmd, "id"),
		OwnerName: mustGetString(cmd, "name"),
		ImageData: data,
		Category:  mustGetString(cmd, "category"),
		ViewTag:   catalog.ParseViewTag(mustGetString(cmd, "view")),
		Notes:     mustGetString(cmd, "notes"),
	})
	if err != nil {
		return fmt.Errorf("registering: %w", err)
	}

	fmt.Printf("Registered %s: %d features, %s\n", res.Slug, res.FeatureCount, res.ImagePath)
	return nil
}
