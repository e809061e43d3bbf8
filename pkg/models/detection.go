package models

import "context"

// FrameAnalyzer is the core interface every detection backend must implement.
// Never call a specific inference backend directly — always inject this
// interface. Implementations may be slow (hundreds of ms per frame) and must
// honor context cancellation.
type FrameAnalyzer interface {
	// Detect runs vehicle detection/re-identification on one encoded
	// (JPEG) frame and returns all detections found in it.
	Detect(ctx context.Context, frame []byte) ([]Detection, error)
	// Name returns the backend identifier (e.g., "httpapi", "mock").
	Name() string
}

// Detection is a single detected vehicle within one frame.
// VehicleID is the re-identification label assigned by the analyzer; it is
// empty when the backend could not match the vehicle against its gallery.
type Detection struct {
	VehicleID  string  `json:"id,omitempty"`
	BBox       [4]int  `json:"bbox"` // x, y, w, h in pixels
	Confidence float64 `json:"confidence"`
}

// FrameDetections groups the detections of one sampled frame together with
// the frame's position in the source video.
type FrameDetections struct {
	FrameIndex   int         `json:"frame_index"`
	Timestamp    float64     `json:"timestamp"` // seconds from video start
	Detections   []Detection `json:"detections"`
	ArtifactName string      `json:"artifact,omitempty"`
}
