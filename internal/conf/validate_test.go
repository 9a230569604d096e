package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() *Settings {
	s := &Settings{}
	s.PaddyNet.ModelPath = "models/paddynet.tflite"
	s.PaddyNet.TopK = 5
	s.Localizer.Strategy = "remote"
	s.Localizer.MinRegionScore = 0.45
	s.Localizer.Remote.Endpoint = "https://detect.example.com/rice-pests/2"
	s.Localizer.Remote.Timeout = 10
	s.Localizer.Remote.BoxOrigin = "center"
	s.Detection.MinConfidence = 90
	s.Detection.MinMargin = 10
	s.Detection.NoPestLabel = "no pest"
	s.Realtime.Scan.Interval = 1500
	s.Realtime.Source.Type = "http"
	s.Realtime.Source.URL = "http://camera.local/snapshot.jpg"
	s.Realtime.Source.Timeout = 5
	s.Realtime.Timeouts.Preprocess = 5
	s.Realtime.Timeouts.Localize = 10
	s.Realtime.Timeouts.Classify = 10
	return s
}

func TestValidateSettingsAcceptsDefaults(t *testing.T) {
	require.NoError(t, ValidateSettings(validSettings()))
}

func TestValidateSettingsRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Settings)
		want   string
	}{
		{
			name:   "empty model path",
			mutate: func(s *Settings) { s.PaddyNet.ModelPath = "" },
			want:   "model path",
		},
		{
			name:   "unknown strategy",
			mutate: func(s *Settings) { s.Localizer.Strategy = "hybrid" },
			want:   "strategy",
		},
		{
			name:   "region score out of band",
			mutate: func(s *Settings) { s.Localizer.MinRegionScore = 0.9 },
			want:   "region score",
		},
		{
			name:   "confidence over 100",
			mutate: func(s *Settings) { s.Detection.MinConfidence = 150 },
			want:   "confidence",
		},
		{
			name:   "empty sentinel",
			mutate: func(s *Settings) { s.Detection.NoPestLabel = "  " },
			want:   "no-pest label",
		},
		{
			name:   "scan interval too fast",
			mutate: func(s *Settings) { s.Realtime.Scan.Interval = 100 },
			want:   "scan interval",
		},
		{
			name:   "scan interval too slow",
			mutate: func(s *Settings) { s.Realtime.Scan.Interval = 10000 },
			want:   "scan interval",
		},
		{
			name:   "http source without url",
			mutate: func(s *Settings) { s.Realtime.Source.URL = "" },
			want:   "source url",
		},
		{
			name:   "zero classify timeout",
			mutate: func(s *Settings) { s.Realtime.Timeouts.Classify = 0 },
			want:   "classify timeout",
		},
		{
			name: "bad telemetry listen",
			mutate: func(s *Settings) {
				s.Realtime.Telemetry.Enabled = true
				s.Realtime.Telemetry.Listen = "no-port"
			},
			want: "telemetry listen",
		},
		{
			name: "spray with zero duration",
			mutate: func(s *Settings) {
				s.Realtime.Spray.Enabled = true
				s.Realtime.Spray.MinConfidence = 90
				s.Realtime.Spray.Duration = 0
			},
			want: "spray duration",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := validSettings()
			tc.mutate(s)
			err := ValidateSettings(s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidateLocalStrategy(t *testing.T) {
	s := validSettings()
	s.Localizer.Strategy = "local"
	s.Localizer.Local.ModelPath = "models/detector.tflite"
	s.Localizer.Local.MinScore = 0.3
	require.NoError(t, ValidateSettings(s))

	s.Localizer.Local.ModelPath = ""
	err := ValidateSettings(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "local localizer model path")
}

func TestParseRetentionPeriod(t *testing.T) {
	cases := []struct {
		input string
		hours int
		ok    bool
	}{
		{"24h", 24, true},
		{"7d", 168, true},
		{"1w", 168, true},
		{"3m", 2160, true},
		{"1y", 8760, true},
		{"48", 48, true},
		{"", 0, false},
		{"7x", 0, false},
		{"d", 0, false},
	}

	for _, tc := range cases {
		got, err := ParseRetentionPeriod(tc.input)
		if tc.ok {
			require.NoError(t, err, "input %q", tc.input)
			assert.Equal(t, tc.hours, got, "input %q", tc.input)
		} else {
			assert.Error(t, err, "input %q", tc.input)
		}
	}
}
