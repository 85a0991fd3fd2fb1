package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/centrominero/labvision/internal/catalog"
	"github.com/centrominero/labvision/internal/config"
)

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete all training data of one object",
	Long: `Delete removes an object's training directory from the image root
and its reference-image rows from the database when one is configured.
The object's registry row is kept.`,
	RunE: runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)

	deleteCmd.Flags().String("name", "", "Object name (required unless --id resolves it)")
	deleteCmd.Flags().Int64("id", 0, "Object id in the database")
	deleteCmd.Flags().String("kind", "item", "Owner kind: item or equipment")
}

func runDelete(cmd *cobra.Command, args []string) error {
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

	removed, err := service.DeleteObjectData(cmd.Context(), kind, mustGetInt64(cmd, "id"), mustGetString(cmd, "name"))
	if err != nil {
		return fmt.Errorf("deleting: %w", err)
	}

	fmt.Printf("Removed %d files\n", removed)
	return nil
}
