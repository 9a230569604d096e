package frame

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"context"

	"github.com/palayguard/palayguard-go/internal/conf"
	"github.com/palayguard/palayguard-go/internal/errors"
)

// maxFrameBytes caps a single snapshot download. Field cameras produce
// frames well under this; anything larger is a misconfigured endpoint.
const maxFrameBytes = 20 << 20

// HTTPSource polls a still-image endpoint, the snapshot URL most IP
// cameras expose.
type HTTPSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource creates a source for the configured snapshot URL.
func NewHTTPSource(settings *conf.Settings) *HTTPSource {
	timeout := time.Duration(settings.Realtime.Source.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPSource{
		url: settings.Realtime.Source.URL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name implements Source.
func (s *HTTPSource) Name() string {
	return s.url
}

// Capture fetches one snapshot. Transport-level failures surface as
// capture-unavailable, a bad response as capture-failed.
func (s *HTTPSource) Capture(ctx context.Context) (*Frame, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, http.NoBody)
	if err != nil {
		return nil, errors.New(err).
			Component("frame").
			Category(errors.CategoryCaptureUnavailable).
			NetworkContext(s.url, s.client.Timeout).
			Build()
	}

	resp, err := s.client.Do(req)
	if err != nil {
		category := errors.CategoryCaptureUnavailable
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			category = errors.CategoryCaptureFailed
		}
		return nil, errors.New(err).
			Component("frame").
			Category(category).
			NetworkContext(s.url, s.client.Timeout).
			Build()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("snapshot endpoint returned %s", resp.Status).
			Component("frame").
			Category(errors.CategoryCaptureFailed).
			Context("status_code", resp.StatusCode).
			NetworkContext(s.url, s.client.Timeout).
			Build()
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFrameBytes+1))
	if err != nil {
		return nil, errors.New(fmt.Errorf("reading snapshot body: %w", err)).
			Component("frame").
			Category(errors.CategoryCaptureFailed).
			NetworkContext(s.url, s.client.Timeout).
			Build()
	}
	if len(data) == 0 {
		return nil, errors.Newf("snapshot endpoint returned an empty body").
			Component("frame").
			Category(errors.CategoryCaptureFailed).
			NetworkContext(s.url, s.client.Timeout).
			Build()
	}
	if len(data) > maxFrameBytes {
		return nil, errors.Newf("snapshot exceeds %d bytes", maxFrameBytes).
			Component("frame").
			Category(errors.CategoryCaptureFailed).
			NetworkContext(s.url, s.client.Timeout).
			Build()
	}

	frm, err := NewFrame(data, s.url)
	if err != nil {
		return nil, errors.New(fmt.Errorf("probing snapshot dimensions: %w", err)).
			Component("frame").
			Category(errors.CategoryCaptureFailed).
			Context("bytes", len(data)).
			Build()
	}

	logger.Debug("captured snapshot", "url", s.url, "bytes", len(data),
		"width", frm.Width, "height", frm.Height)
	return frm, nil
}
