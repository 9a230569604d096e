// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validatePaddyNetSettings(&settings.PaddyNet); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateLocalizerSettings(&settings.Localizer); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateDetectionSettings(&settings.Detection); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateRealtimeSettings(&settings.Realtime); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

// validatePaddyNetSettings validates the classifier settings
func validatePaddyNetSettings(settings *PaddyNetConfig) error {
	var errs []string

	if settings.ModelPath == "" {
		errs = append(errs, "PaddyNet model path must not be empty")
	}

	if settings.Threads < 0 {
		errs = append(errs, "PaddyNet threads must be at least 0")
	}

	if settings.TopK < 1 {
		errs = append(errs, "PaddyNet topk must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("PaddyNet settings errors: %v", errs)
	}
	return nil
}

// validateLocalizerSettings validates the region proposal settings
func validateLocalizerSettings(settings *LocalizerSettings) error {
	var errs []string

	switch settings.Strategy {
	case "remote", "local", "none":
	default:
		errs = append(errs, fmt.Sprintf("localizer strategy must be remote, local or none, got %q", settings.Strategy))
	}

	if settings.MinRegionScore < 0.4 || settings.MinRegionScore > 0.5 {
		errs = append(errs, fmt.Sprintf("localizer min region score must be between 0.4 and 0.5, got %v", settings.MinRegionScore))
	}

	if settings.Strategy == "remote" {
		if settings.Remote.Endpoint == "" {
			errs = append(errs, "remote localizer endpoint must not be empty")
		} else if u, err := url.Parse(settings.Remote.Endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Sprintf("remote localizer endpoint must be a http(s) URL, got %q", settings.Remote.Endpoint))
		}
		if settings.Remote.Timeout <= 0 {
			errs = append(errs, "remote localizer timeout must be greater than 0")
		}
		switch settings.Remote.BoxOrigin {
		case "center", "topleft":
		default:
			errs = append(errs, fmt.Sprintf("remote localizer box origin must be center or topleft, got %q", settings.Remote.BoxOrigin))
		}
	}

	if settings.Strategy == "local" {
		if settings.Local.ModelPath == "" {
			errs = append(errs, "local localizer model path must not be empty")
		}
		if settings.Local.MinScore < 0 || settings.Local.MinScore > 1 {
			errs = append(errs, "local localizer min score must be between 0 and 1")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("localizer settings errors: %v", errs)
	}
	return nil
}

// validateDetectionSettings validates the reconciliation thresholds
func validateDetectionSettings(settings *DetectionSettings) error {
	var errs []string

	if settings.MinConfidence < 0 || settings.MinConfidence > 100 {
		errs = append(errs, fmt.Sprintf("detection min confidence must be between 0 and 100, got %d", settings.MinConfidence))
	}

	if settings.MinMargin < 0 || settings.MinMargin > 100 {
		errs = append(errs, fmt.Sprintf("detection min margin must be between 0 and 100, got %d", settings.MinMargin))
	}

	if strings.TrimSpace(settings.NoPestLabel) == "" {
		errs = append(errs, "detection no-pest label must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("detection settings errors: %v", errs)
	}
	return nil
}

// validateRealtimeSettings validates the continuous scanning settings
func validateRealtimeSettings(settings *RealtimeSettings) error {
	var errs []string

	if settings.Interval < 0 {
		errs = append(errs, "realtime interval must be at least 0")
	}

	if settings.Scan.Interval < 700 || settings.Scan.Interval > 3000 {
		errs = append(errs, fmt.Sprintf("realtime scan interval must be between 700 and 3000 milliseconds, got %d", settings.Scan.Interval))
	}

	switch settings.Source.Type {
	case "http":
		if settings.Source.URL == "" {
			errs = append(errs, "realtime source url must not be empty for the http source")
		}
	case "directory":
		if settings.Source.Path == "" {
			errs = append(errs, "realtime source path must not be empty for the directory source")
		}
	default:
		errs = append(errs, fmt.Sprintf("realtime source type must be http or directory, got %q", settings.Source.Type))
	}

	if settings.Source.Timeout <= 0 {
		errs = append(errs, "realtime source timeout must be greater than 0")
	}

	for _, timeout := range []struct {
		name  string
		value int
	}{
		{"preprocess", settings.Timeouts.Preprocess},
		{"localize", settings.Timeouts.Localize},
		{"classify", settings.Timeouts.Classify},
	} {
		if timeout.value <= 0 {
			errs = append(errs, fmt.Sprintf("realtime %s timeout must be greater than 0", timeout.name))
		}
	}

	if settings.Telemetry.Enabled {
		if _, _, err := net.SplitHostPort(settings.Telemetry.Listen); err != nil {
			errs = append(errs, fmt.Sprintf("realtime telemetry listen address is invalid: %v", err))
		}
	}

	if settings.Dashboard.Enabled {
		if _, _, err := net.SplitHostPort(settings.Dashboard.Listen); err != nil {
			errs = append(errs, fmt.Sprintf("realtime dashboard listen address is invalid: %v", err))
		}
	}

	if settings.Spray.Enabled {
		if settings.Spray.MinConfidence < 0 || settings.Spray.MinConfidence > 100 {
			errs = append(errs, "spray min confidence must be between 0 and 100")
		}
		if settings.Spray.Cooldown < 0 {
			errs = append(errs, "spray cooldown must be at least 0")
		}
		if settings.Spray.Duration <= 0 {
			errs = append(errs, "spray duration must be greater than 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("realtime settings errors: %v", errs)
	}
	return nil
}
