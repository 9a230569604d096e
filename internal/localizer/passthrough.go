package localizer

import (
	"context"

	"github.com/palayguard/palayguard-go/internal/frame"
)

// Passthrough is the "none" strategy: every frame yields exactly one
// region covering the whole frame with score 1.0, so the classifier
// always sees the full image. Used on deployments without a detector
// model or endpoint.
type Passthrough struct{}

// NewPassthrough returns the whole-frame strategy.
func NewPassthrough() *Passthrough {
	return &Passthrough{}
}

// Name implements Localizer.
func (p *Passthrough) Name() string { return "none" }

// DetectRegions implements Localizer.
func (p *Passthrough) DetectRegions(_ context.Context, frm *frame.Frame) ([]Region, error) {
	return []Region{{
		X:      0,
		Y:      0,
		Width:  float64(frm.Width),
		Height: float64(frm.Height),
		Score:  1.0,
	}}, nil
}

// Close implements Localizer.
func (p *Passthrough) Close() error { return nil }
