// Package conf loads and validates the PalayGuard configuration through
// viper, with defaults from the embedded config.yaml.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

//go:embed config.yaml
var configFiles embed.FS

// Settings is the root configuration for the application.
type Settings struct {
	Debug bool // true to enable debug mode

	// Runtime values, not stored in config file
	Version   string `yaml:"-"` // version from build
	BuildDate string `yaml:"-"` // build date from build

	Main struct {
		Name      string    // node name, used to identify this field station
		TimeAs24h bool      // true for 24-hour time format
		Log       LogConfig // main application log
	}

	PaddyNet  PaddyNetConfig    // pest classification model
	Localizer LocalizerSettings // region proposal stage
	Detection DetectionSettings // reconciliation thresholds
	Realtime  RealtimeSettings  // continuous scanning
	Output    OutputSettings    // detection persistence
	Sentry    SentrySettings    // error telemetry, opt-in
}

// PaddyNetConfig holds the classifier model settings.
type PaddyNetConfig struct {
	Debug      bool    // true to enable debug logging
	ModelPath  string  // path to the PaddyNet TFLite model
	LabelPath  string  // path to the label file, empty for embedded labels
	Threads    int     // interpreter threads, 0 for automatic
	TopK       int     // ranked results kept per verdict
	UseXNNPACK bool    // true to enable the XNNPACK delegate
	Overlay    float64 // reserved for tiled inference, unused
}

// LocalizerSettings selects and configures the region proposal strategy.
type LocalizerSettings struct {
	Strategy       string  // "remote", "local" or "none"
	MinRegionScore float64 // acceptance gate applied by the scan pipeline

	Remote struct {
		Endpoint  string  // hosted detection endpoint URL
		APIKey    string  // endpoint API key, sent in the request body
		Timeout   int     // request timeout in seconds
		BoxOrigin string  // "center" or "topleft"
		RateLimit float64 // max requests per second, 0 to disable
	}

	Local struct {
		ModelPath string   // path to the detector TFLite model
		LabelPath string   // path to the detector label file
		AllowList []string // detector classes accepted as pest proxies
		MinScore  float64  // detector score floor before the pipeline gate
	}
}

// DetectionSettings holds the reconciliation thresholds.
type DetectionSettings struct {
	MinConfidence int    // minimum winning confidence, percent
	MinMargin     int    // minimum winner-runnerup margin, percent
	NoPestLabel   string // sentinel substring marking an empty-scene verdict
}

// RealtimeSettings groups everything the continuous scan daemon needs.
type RealtimeSettings struct {
	Interval       int  // duplicate event suppression window in seconds
	ProcessingTime bool // true to report processing time per iteration

	Scan struct {
		Interval int // tick cadence in milliseconds
	}

	Source struct {
		Type    string // "http" or "directory"
		URL     string // snapshot endpoint for the http source
		Path    string // watch directory for the directory source
		Timeout int    // capture timeout in seconds
	}

	Timeouts struct {
		Preprocess int // seconds
		Localize   int // seconds
		Classify   int // seconds
	}

	Export struct {
		Enabled   bool   // true to save detection snapshots
		Debug     bool   // true to enable debug logging
		Path      string // snapshot directory
		Retention struct {
			Enabled  bool   // true to enable retention cleanup
			Debug    bool   // true to enable debug logging
			MaxAge   string // age limit like "30d", "6m"
			MinClips int    // snapshots to keep per pest regardless of age
		}
	}

	Log LogConfig // flat detection log

	MQTT struct {
		Enabled  bool   // true to enable MQTT
		Debug    bool   // true to enable debug logging
		Broker   string // MQTT broker URL
		Topic    string // detection publish topic
		Username string
		Password string
		Retain   bool // true for retained messages
	}

	Spray struct {
		Enabled       bool     // true to publish spray commands
		Topic         string   // spray command topic
		MinConfidence int      // percent floor for actuation
		Cooldown      int      // seconds between commands per pest
		Duration      int      // spray run time in seconds
		DangerLevels  []string // catalog danger levels that qualify
	}

	Notification struct {
		Enabled        bool     // true to push farmer alerts
		Providers      []string // shoutrrr provider URLs
		MinDangerLevel string   // lowest danger level that alerts
		Interval       int      // seconds between alerts per pest
	}

	Telemetry struct {
		Enabled bool   // true to expose Prometheus metrics
		Listen  string // host:port
	}

	Dashboard struct {
		Enabled bool   // true to expose the control API
		Listen  string // host:port
	}
}

// OutputSettings configures detection persistence backends.
type OutputSettings struct {
	SQLite struct {
		Enabled bool   // true to enable SQLite
		Path    string // database file path
	}

	MySQL struct {
		Enabled  bool // true to enable MySQL
		Username string
		Password string
		Database string
		Host     string
		Port     string
	}
}

// SentrySettings configures opt-in crash and error reporting.
type SentrySettings struct {
	Enabled     bool   // false by default, privacy first
	DSN         string // project DSN
	Environment string // deployment environment tag
}

// LogConfig defines the configuration for a log file
type LogConfig struct {
	Enabled     bool         // true to enable this log
	Path        string       // path to the log file
	Rotation    RotationType // type of log rotation
	MaxSize     int64        // max size in bytes for RotationSize
	RotationDay string       // day of the week for RotationWeekly
}

// RotationType defines different types of log rotations.
type RotationType string

const (
	RotationDaily  RotationType = "daily"
	RotationWeekly RotationType = "weekly"
	RotationSize   RotationType = "size"
)

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment into a Settings
// instance, validates it, and installs it as the global instance.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}

	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded default config to the first
// config path and reads it back in.
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(getDefaultConfig()), 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// getDefaultConfig reads the default configuration from the embedded config.yaml file.
func getDefaultConfig() string {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}
	return string(data)
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, initializing it if necessary
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}

// SaveSettings writes the current settings back to the active config file.
func SaveSettings() error {
	settingsMutex.RLock()
	settingsCopy := *settingsInstance
	settingsMutex.RUnlock()

	configPath, err := FindConfigFile()
	if err != nil {
		return fmt.Errorf("error finding config file: %w", err)
	}

	if err := SaveYAMLConfig(configPath, &settingsCopy); err != nil {
		return fmt.Errorf("error saving config: %w", err)
	}

	log.Printf("Settings saved successfully to %s", configPath)
	return nil
}

// SaveYAMLConfig marshals settings to YAML and writes them atomically over
// the config file. Comments in the existing file are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary config file: %w", err)
	}
	tempName := tempFile.Name()

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		os.Remove(tempName)
		return fmt.Errorf("error writing temporary config file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		os.Remove(tempName)
		return fmt.Errorf("error closing temporary config file: %w", err)
	}

	if err := os.Rename(tempName, configPath); err != nil {
		os.Remove(tempName)
		return fmt.Errorf("error replacing config file: %w", err)
	}

	return nil
}
