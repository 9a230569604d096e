package realtime

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/palayguard/palayguard-go/internal/analysis"
	"github.com/palayguard/palayguard-go/internal/conf"
)

// Command creates the command for continuous scan-loop analysis.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "realtime",
		Short: "Scan the paddy in realtime mode",
		Long:  "Start the continuous scan loop: capture frames from the configured source and watch for rice pests.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return analysis.RealtimeAnalysis(settings)
		},
	}

	// Set up flags specific to the 'realtime' command
	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the realtime command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.Realtime.Source.Type, "source", viper.GetString("realtime.source.type"), "Frame capture source (\"http\" or \"directory\")")
	cmd.Flags().StringVar(&settings.Realtime.Source.URL, "url", viper.GetString("realtime.source.url"), "Snapshot endpoint URL for the http source")
	cmd.Flags().StringVar(&settings.Realtime.Source.Path, "watchpath", viper.GetString("realtime.source.path"), "Watch directory for the directory source")
	cmd.Flags().IntVar(&settings.Realtime.Scan.Interval, "scaninterval", viper.GetInt("realtime.scan.interval"), "Scan tick cadence in milliseconds (700-3000)")
	cmd.Flags().StringVar(&settings.Realtime.Export.Path, "clippath", viper.GetString("realtime.export.path"), "Path to save detection snapshots")
	cmd.Flags().StringVar(&settings.Realtime.Log.Path, "logpath", viper.GetString("realtime.log.path"), "Path to save the detection log")
	cmd.Flags().BoolVar(&settings.Realtime.ProcessingTime, "processingtime", viper.GetBool("realtime.processingtime"), "Report processing time for each detection")
	cmd.Flags().BoolVar(&settings.Realtime.Telemetry.Enabled, "telemetry", viper.GetBool("realtime.telemetry.enabled"), "Enable Prometheus telemetry endpoint")
	cmd.Flags().StringVar(&settings.Realtime.Telemetry.Listen, "listen", viper.GetString("realtime.telemetry.listen"), "Listen address and port of telemetry endpoint")
	cmd.Flags().BoolVar(&settings.Realtime.Dashboard.Enabled, "dashboard", viper.GetBool("realtime.dashboard.enabled"), "Enable the control API endpoint")

	// Bind flags to the viper settings
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
