package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/centrominero/labvision/internal/config"
	"github.com/centrominero/labvision/internal/recognizer"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <image-file>",
	Short: "Recognize an object from a photo",
	Long: `Recognize runs the full pipeline on one image file and prints the
result: the matched object key and confidence score, or the rejection
reason when nothing matches.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().Bool("json", false, "Print the raw JSON result")
	recognizeCmd.Flags().Int("cap", 0, "Max templates per object (defaults to server config)")
	recognizeCmd.Flags().Int("min-good", 0, "Min good matches per template (defaults to server config)")
	recognizeCmd.Flags().Float64("threshold", 0, "Confidence threshold (defaults to server config)")
}

func runRecognize(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	service, cleanup, err := buildService(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	threshold, _ := cmd.Flags().GetFloat64("threshold")
	rec, err := service.Recognize(cmd.Context(), data, recognizer.QueryOptions{
		Cap:       mustGetInt(cmd, "cap"),
		MinGood:   mustGetInt(cmd, "min-good"),
		Threshold: threshold,
	})
	if err != nil {
		return fmt.Errorf("recognizing: %w", err)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}

	if rec.Recognized {
		fmt.Printf("Recognized: %s (score %.3f, %d matches)\n", rec.Key, rec.Score, rec.NumMatches)
	} else {
		fmt.Printf("Not recognized (%s, best score %.3f)\n", rec.Reason, rec.BestScore)
	}
	for _, c := range rec.TopK {
		fmt.Printf("  %-30s score %.3f  matches %d\n", c.Key, c.Score, c.NumMatches)
	}
	fmt.Printf("Checked %d templates in %d ms\n", rec.TemplatesChecked, rec.DurationMS)
	return nil
}
