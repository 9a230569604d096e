package localizer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/antonholmquist/jason"
	"golang.org/x/time/rate"

	"github.com/palayguard/palayguard-go/internal/conf"
	"github.com/palayguard/palayguard-go/internal/errors"
	"github.com/palayguard/palayguard-go/internal/frame"
)

// maxResponseBytes bounds how much of a detection response is read.
const maxResponseBytes = 4 << 20

// RemoteDetector proposes regions by POSTing frames to a hosted
// detection endpoint. Authentication is an api_key field in the JSON
// body, not a header. Two response generations are in the wild, a flat
// prediction list and one nested under outputs, and both are accepted.
type RemoteDetector struct {
	endpoint     string
	apiKey       string
	centerOrigin bool
	httpClient   *http.Client
	limiter      *rate.Limiter
}

// remoteRequest is the body shape the hosted endpoint expects.
type remoteRequest struct {
	APIKey string       `json:"api_key"`
	Inputs remoteInputs `json:"inputs"`
}

type remoteInputs struct {
	Image remoteImage `json:"image"`
}

type remoteImage struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// NewRemoteDetector builds the remote strategy from configuration.
func NewRemoteDetector(settings *conf.Settings) (*RemoteDetector, error) {
	rc := settings.Localizer.Remote
	if rc.Endpoint == "" {
		return nil, errors.New(fmt.Errorf("remote localizer requires an endpoint")).
			Component("localizer").
			Category(errors.CategoryConfiguration).
			Build()
	}

	timeout := time.Duration(rc.Timeout) * time.Second
	if rc.Timeout <= 0 {
		timeout = 10 * time.Second
	}

	var limiter *rate.Limiter
	if rc.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(rc.RateLimit), 1)
	}

	return &RemoteDetector{
		endpoint:     rc.Endpoint,
		apiKey:       rc.APIKey,
		centerOrigin: rc.BoxOrigin != "topleft",
		httpClient:   &http.Client{Timeout: timeout},
		limiter:      limiter,
	}, nil
}

// Name implements Localizer.
func (rd *RemoteDetector) Name() string { return "remote" }

// DetectRegions implements Localizer. The HTTP request is tied to ctx;
// transport failures, non-2xx statuses and unparseable bodies all
// surface as localizer errors.
func (rd *RemoteDetector) DetectRegions(ctx context.Context, frm *frame.Frame) ([]Region, error) {
	start := time.Now()

	data := frm.Data()
	if len(data) == 0 {
		return nil, errors.New(fmt.Errorf("frame has been released")).
			Component("localizer").
			Category(errors.CategoryLocalizer).
			Context("strategy", "remote").
			Build()
	}

	if rd.limiter != nil {
		if err := rd.limiter.Wait(ctx); err != nil {
			return nil, errors.New(err).
				Component("localizer").
				Category(errors.CategoryLocalizer).
				Context("strategy", "remote").
				Context("operation", "rate_limiter_wait").
				Build()
		}
	}

	payload, err := json.Marshal(remoteRequest{
		APIKey: rd.apiKey,
		Inputs: remoteInputs{
			Image: remoteImage{
				Type:  "base64",
				Value: base64.StdEncoding.EncodeToString(data),
			},
		},
	})
	if err != nil {
		return nil, errors.New(err).
			Component("localizer").
			Category(errors.CategoryLocalizer).
			Context("strategy", "remote").
			Context("operation", "encode_request").
			Build()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rd.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.New(err).
			Component("localizer").
			Category(errors.CategoryLocalizer).
			Context("strategy", "remote").
			Context("operation", "build_request").
			Build()
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := rd.httpClient.Do(req)
	if err != nil {
		if m := getMetrics(); m != nil {
			m.IncrementDetectErrors("remote")
		}
		return nil, errors.New(err).
			Component("localizer").
			Category(errors.CategoryLocalizer).
			Context("strategy", "remote").
			Context("operation", "transport").
			Build()
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Warn("Failed to close detection response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		if m := getMetrics(); m != nil {
			m.IncrementDetectErrors("remote")
		}
		return nil, errors.New(fmt.Errorf("detection endpoint returned status %d", resp.StatusCode)).
			Component("localizer").
			Category(errors.CategoryLocalizer).
			Context("strategy", "remote").
			Context("status_code", resp.StatusCode).
			Build()
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.New(err).
			Component("localizer").
			Category(errors.CategoryLocalizer).
			Context("strategy", "remote").
			Context("operation", "read_response").
			Build()
	}

	regions, shape, err := rd.parseResponse(body)
	if err != nil {
		if m := getMetrics(); m != nil {
			m.IncrementDetectErrors("remote")
		}
		return nil, err
	}

	if m := getMetrics(); m != nil {
		m.IncrementDetectRequests("remote")
		m.IncrementResponseShape(shape)
		m.RecordDetectDuration("remote", time.Since(start).Seconds())
		m.RecordRegionCount("remote", len(regions))
	}

	logger.Debug("Remote detection complete",
		"source", frm.Source,
		"regions", len(regions),
		"shape", shape,
		"duration_ms", time.Since(start).Milliseconds())

	return regions, nil
}

// parseResponse normalizes both known response generations into
// regions. The flat shape carries predictions at the top level, the
// nested shape buries them under outputs[0].predictions.predictions.
func (rd *RemoteDetector) parseResponse(body []byte) ([]Region, string, error) {
	root, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return nil, "", errors.New(fmt.Errorf("unparseable detection response: %w", err)).
			Component("localizer").
			Category(errors.CategoryLocalizer).
			Context("strategy", "remote").
			Context("body_bytes", len(body)).
			Build()
	}

	shape := "flat"
	preds, err := root.GetObjectArray("predictions")
	if err != nil {
		outputs, oerr := root.GetObjectArray("outputs")
		if oerr != nil || len(outputs) == 0 {
			return nil, "", errors.New(fmt.Errorf("detection response has neither predictions nor outputs")).
				Component("localizer").
				Category(errors.CategoryLocalizer).
				Context("strategy", "remote").
				Build()
		}
		preds, err = outputs[0].GetObjectArray("predictions", "predictions")
		if err != nil {
			return nil, "", errors.New(fmt.Errorf("detection response outputs carry no predictions: %w", err)).
				Component("localizer").
				Category(errors.CategoryLocalizer).
				Context("strategy", "remote").
				Build()
		}
		shape = "nested"
	}

	regions := make([]Region, 0, len(preds))
	for i, p := range preds {
		x, errX := p.GetFloat64("x")
		y, errY := p.GetFloat64("y")
		w, errW := p.GetFloat64("width")
		h, errH := p.GetFloat64("height")
		if errX != nil || errY != nil || errW != nil || errH != nil {
			logger.Warn("Skipping malformed prediction", "index", i, "shape", shape)
			continue
		}
		score, err := p.GetFloat64("confidence")
		if err != nil {
			score = 0
		}
		label, err := p.GetString("class")
		if err != nil {
			label = ""
		}

		if rd.centerOrigin {
			regions = append(regions, RegionFromCenter(x, y, w, h, score, label))
		} else {
			regions = append(regions, Region{X: x, Y: y, Width: w, Height: h, Score: score, Label: label})
		}
	}

	return regions, shape, nil
}

// Close implements Localizer.
func (rd *RemoteDetector) Close() error {
	rd.httpClient.CloseIdleConnections()
	return nil
}
