package image

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/palayguard/palayguard-go/internal/analysis"
	"github.com/palayguard/palayguard-go/internal/conf"
)

// Command creates the command for single-image analysis.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "image [image file]",
		Short: "Analyze a single image file",
		Long:  "Run the full detection pipeline once against an image on disk and print the verdict.",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("exactly one image file is required")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return analysis.ImageAnalysis(settings, args[0])
		},
	}
}
