package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/palayguard/palayguard-go/cmd/benchmark"
	"github.com/palayguard/palayguard-go/cmd/image"
	"github.com/palayguard/palayguard-go/cmd/realtime"
	"github.com/palayguard/palayguard-go/cmd/species"
	"github.com/palayguard/palayguard-go/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "palayguard",
		Short: "PalayGuard CLI",
		Long:  "PalayGuard continuous rice pest detection for field stations",
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
	}

	subcommands := []*cobra.Command{
		realtime.Command(settings),
		image.Command(settings),
		species.Command(settings),
		benchmark.Command(settings),
	}

	rootCmd.AddCommand(subcommands...)

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVarP(&settings.PaddyNet.ModelPath, "model", "m", viper.GetString("paddynet.modelpath"), "Path to the PaddyNet model file")
	rootCmd.PersistentFlags().StringVar(&settings.PaddyNet.LabelPath, "labels", viper.GetString("paddynet.labelpath"), "Path to the label file, blank for embedded labels")
	rootCmd.PersistentFlags().IntVar(&settings.Detection.MinConfidence, "minconfidence", viper.GetInt("detection.minconfidence"), "Minimum winning confidence for a detection, percent (0-100)")
	rootCmd.PersistentFlags().IntVar(&settings.Detection.MinMargin, "minmargin", viper.GetInt("detection.minmargin"), "Minimum winner to runner-up margin, percent (0-100)")
	rootCmd.PersistentFlags().StringVar(&settings.Localizer.Strategy, "localizer", viper.GetString("localizer.strategy"), "Region proposal strategy (\"remote\", \"local\" or \"none\")")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
