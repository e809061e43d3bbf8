// Package analyzer provides FrameAnalyzer implementations. The engine and
// live sessions never talk to a detection backend directly — they hold the
// models.FrameAnalyzer interface built by NewAnalyzer.
package analyzer

import (
	"errors"
	"fmt"

	"github.com/vehiclereid/revid/internal/analyzer/mock"
	"github.com/vehiclereid/revid/internal/config"
	"github.com/vehiclereid/revid/pkg/models"
)

// Sentinel errors for analyzer failures.
var (
	ErrAnalyzerUnavailable = errors.New("analyzer unavailable")
	ErrInferenceTimeout    = errors.New("analyzer inference timeout")
	ErrInvalidResponse     = errors.New("analyzer returned invalid response")
)

// NewAnalyzer constructs the appropriate detection backend based on config.
// Called once at server startup.
func NewAnalyzer(cfg config.AnalyzerConfig) (models.FrameAnalyzer, error) {
	switch cfg.Provider {
	case "httpapi":
		return NewHTTPAnalyzer(cfg.HTTPAPI.BaseURL, cfg.InferenceTimeout), nil
	case "mock":
		return mock.NewProvider(), nil
	default:
		return nil, fmt.Errorf("unknown analyzer provider %q: must be one of httpapi, mock", cfg.Provider)
	}
}
