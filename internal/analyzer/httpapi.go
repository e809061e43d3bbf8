package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"time"

	"github.com/vehiclereid/revid/pkg/models"
)

// HTTPAnalyzer implements models.FrameAnalyzer against a remote inference
// server. The server accepts one JPEG frame per request and returns the
// detections found in it.
type HTTPAnalyzer struct {
	baseURL string
	client  *http.Client
}

// NewHTTPAnalyzer creates a new HTTPAnalyzer.
func NewHTTPAnalyzer(baseURL string, timeout time.Duration) *HTTPAnalyzer {
	return &HTTPAnalyzer{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (a *HTTPAnalyzer) Name() string { return "httpapi" }

type detectResponse struct {
	Vehicles []struct {
		ID         string  `json:"id"`
		BBox       []int   `json:"bbox"`
		Confidence float64 `json:"confidence"`
	} `json:"vehicles"`
}

func (a *HTTPAnalyzer) Detect(ctx context.Context, frame []byte) ([]models.Detection, error) {
	u := a.baseURL + "/v1/detect"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("build detect request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrInferenceTimeout
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, ErrInferenceTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrAnalyzerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: status %d", ErrAnalyzerUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrInvalidResponse, resp.StatusCode)
	}

	var body detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	detections := make([]models.Detection, 0, len(body.Vehicles))
	for _, v := range body.Vehicles {
		if len(v.BBox) != 4 {
			return nil, fmt.Errorf("%w: bbox must have 4 elements, got %d", ErrInvalidResponse, len(v.BBox))
		}
		detections = append(detections, models.Detection{
			VehicleID:  v.ID,
			BBox:       [4]int{v.BBox[0], v.BBox[1], v.BBox[2], v.BBox[3]},
			Confidence: v.Confidence,
		})
	}
	return detections, nil
}

var _ models.FrameAnalyzer = (*HTTPAnalyzer)(nil)
