// Package reid aggregates per-frame detections into per-vehicle groups using
// the re-identification labels assigned by the frame analyzer.
package reid

import (
	"sort"

	"github.com/vehiclereid/revid/pkg/models"
)

// VehicleGroup is one distinct vehicle observed across a job's sampled frames.
type VehicleGroup struct {
	VehicleID      string  `json:"vehicle_id"`
	Sightings      int     `json:"sightings"`
	FirstSeenAt    float64 `json:"first_seen_at"` // seconds from video start
	LastSeenAt     float64 `json:"last_seen_at"`
	BestConfidence float64 `json:"best_confidence"`
}

// Group deduplicates detections by vehicle id. Detections the analyzer could
// not match against its gallery carry no id; each of those counts as its own
// sighting of an unidentified vehicle. Returns groups sorted by
// (Sightings DESC, VehicleID ASC). Returns empty slice for empty input (never nil).
func Group(frames []models.FrameDetections) []VehicleGroup {
	if len(frames) == 0 {
		return []VehicleGroup{}
	}

	groups := make(map[string]*VehicleGroup)
	var unmatched []VehicleGroup

	for _, frame := range frames {
		for _, det := range frame.Detections {
			if det.VehicleID == "" {
				unmatched = append(unmatched, VehicleGroup{
					Sightings:      1,
					FirstSeenAt:    frame.Timestamp,
					LastSeenAt:     frame.Timestamp,
					BestConfidence: det.Confidence,
				})
				continue
			}

			g, exists := groups[det.VehicleID]
			if !exists {
				g = &VehicleGroup{
					VehicleID:   det.VehicleID,
					FirstSeenAt: frame.Timestamp,
					LastSeenAt:  frame.Timestamp,
				}
				groups[det.VehicleID] = g
			}

			g.Sightings++
			if frame.Timestamp < g.FirstSeenAt {
				g.FirstSeenAt = frame.Timestamp
			}
			if frame.Timestamp > g.LastSeenAt {
				g.LastSeenAt = frame.Timestamp
			}
			if det.Confidence > g.BestConfidence {
				g.BestConfidence = det.Confidence
			}
		}
	}

	out := make([]VehicleGroup, 0, len(groups)+len(unmatched))
	for _, g := range groups {
		out = append(out, *g)
	}
	out = append(out, unmatched...)

	sort.Slice(out, func(i, j int) bool {
		if out[i].Sightings != out[j].Sightings {
			return out[i].Sightings > out[j].Sightings
		}
		return out[i].VehicleID < out[j].VehicleID
	})
	return out
}

// Metrics computes the aggregate numbers persisted on a completed job.
func Metrics(frames []models.FrameDetections) map[string]float64 {
	total := 0
	framesWith := 0
	confSum := 0.0

	for _, frame := range frames {
		if len(frame.Detections) > 0 {
			framesWith++
		}
		total += len(frame.Detections)
		for _, det := range frame.Detections {
			confSum += det.Confidence
		}
	}

	meanConf := 0.0
	if total > 0 {
		meanConf = confSum / float64(total)
	}

	return map[string]float64{
		"frames_processed":       float64(len(frames)),
		"frames_with_detections": float64(framesWith),
		"total_detections":       float64(total),
		"unique_vehicles":        float64(len(Group(frames))),
		"mean_confidence":        meanConf,
	}
}
