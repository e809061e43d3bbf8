// Package mock provides a FrameAnalyzer for tests and local development.
package mock

import (
	"context"

	"github.com/vehiclereid/revid/pkg/models"
)

// Provider satisfies models.FrameAnalyzer for testing.
type Provider struct {
	Name_      string
	DetectFunc func(ctx context.Context, frame []byte) ([]models.Detection, error)
}

func (p *Provider) Name() string { return p.Name_ }

func (p *Provider) Detect(ctx context.Context, frame []byte) ([]models.Detection, error) {
	if p.DetectFunc != nil {
		return p.DetectFunc(ctx, frame)
	}
	return []models.Detection{}, nil
}

// NewProvider returns a Provider with a deterministic default detection.
func NewProvider() *Provider {
	return &Provider{
		Name_: "mock",
		DetectFunc: func(_ context.Context, _ []byte) ([]models.Detection, error) {
			return []models.Detection{
				{VehicleID: "mock-vehicle-1", BBox: [4]int{40, 60, 120, 90}, Confidence: 0.9},
			}, nil
		},
	}
}

// NewFailingProvider returns a Provider that always returns the given error.
func NewFailingProvider(err error) *Provider {
	return &Provider{
		Name_: "mock-failing",
		DetectFunc: func(_ context.Context, _ []byte) ([]models.Detection, error) {
			return nil, err
		},
	}
}

var _ models.FrameAnalyzer = (*Provider)(nil)
