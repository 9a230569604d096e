package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/palayguard/palayguard-go/cmd"
	"github.com/palayguard/palayguard-go/internal/conf"
	"github.com/palayguard/palayguard-go/internal/logging"
	"github.com/palayguard/palayguard-go/internal/telemetry"
)

// version and buildDate are set by the linker at build time.
var (
	version   = "dev"
	buildDate = time.Now().Format("2006-01-02")
)

func main() {
	logging.Init()

	settings, err := conf.Load()
	if err != nil {
		log.Fatalf("Error loading settings: %v", err)
	}
	settings.Version = version
	settings.BuildDate = buildDate

	if err := telemetry.Init(settings); err != nil {
		// Telemetry is best effort, the pipeline runs without it.
		fmt.Fprintf(os.Stderr, "telemetry init failed: %v\n", err)
	}
	defer telemetry.Flush(2 * time.Second)

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		telemetry.Flush(2 * time.Second)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
