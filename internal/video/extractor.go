// Package video extracts sampled frames from uploaded videos by shelling out
// to ffmpeg/ffprobe. Sampling every Nth frame with a hard frame cap bounds
// the worst-case processing cost of arbitrarily long input.
package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

var ErrUnreadableVideo = errors.New("unreadable video")

// Frame is one sampled, JPEG-encoded frame.
type Frame struct {
	Index     int     // frame index within the source video
	Timestamp float64 // seconds from video start
	Data      []byte
}

// Metadata describes a probed video stream.
type Metadata struct {
	DurationSeconds float64
	FPS             float64
}

// Extractor is the frame extraction interface the engine depends on.
type Extractor interface {
	ExtractFrames(ctx context.Context, path string, stride, maxFrames int) ([]Frame, error)
}

// FFmpegExtractor implements Extractor via ffmpeg/ffprobe subprocesses.
type FFmpegExtractor struct {
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpegExtractor uses the given binary paths, defaulting to the ones on PATH.
func NewFFmpegExtractor(ffmpegPath, ffprobePath string) *FFmpegExtractor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpegExtractor{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// Probe reads stream metadata. A file ffprobe cannot parse is reported as
// ErrUnreadableVideo with the tool's diagnostic attached.
func (e *FFmpegExtractor) Probe(ctx context.Context, path string) (Metadata, error) {
	if _, err := os.Stat(path); err != nil {
		return Metadata{}, fmt.Errorf("%w: %s", ErrUnreadableVideo, path)
	}

	cmd := exec.CommandContext(ctx, e.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=avg_frame_rate:format=duration",
		"-of", "json",
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return Metadata{}, ctx.Err()
		}
		return Metadata{}, fmt.Errorf("%w: ffprobe: %s", ErrUnreadableVideo, firstLine(stderr.String()))
	}

	var probe struct {
		Streams []struct {
			AvgFrameRate string `json:"avg_frame_rate"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out, &probe); err != nil {
		return Metadata{}, fmt.Errorf("%w: parse ffprobe output: %v", ErrUnreadableVideo, err)
	}
	if len(probe.Streams) == 0 {
		return Metadata{}, fmt.Errorf("%w: no video stream", ErrUnreadableVideo)
	}

	meta := Metadata{
		FPS:             parseFrameRate(probe.Streams[0].AvgFrameRate),
		DurationSeconds: parseFloat(probe.Format.Duration),
	}
	if meta.FPS <= 0 {
		meta.FPS = 30
	}
	return meta, nil
}

// ExtractFrames decodes the video and returns every strideth frame as JPEG,
// capped at maxFrames. Timestamps derive from the probed frame rate.
func (e *FFmpegExtractor) ExtractFrames(ctx context.Context, path string, stride, maxFrames int) ([]Frame, error) {
	if stride < 1 {
		stride = 1
	}
	if maxFrames < 1 {
		maxFrames = 1
	}

	meta, err := e.Probe(ctx, path)
	if err != nil {
		return nil, err
	}

	outDir, err := os.MkdirTemp("", "revid-frames-*")
	if err != nil {
		return nil, fmt.Errorf("create frame dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	pattern := filepath.Join(outDir, "frame_%06d.jpg")
	cmd := exec.CommandContext(ctx, e.ffmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-i", path,
		"-vf", fmt.Sprintf("select=not(mod(n\\,%d))", stride),
		"-fps_mode", "passthrough",
		"-frames:v", strconv.Itoa(maxFrames),
		"-q:v", "2",
		pattern,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: ffmpeg: %s", ErrUnreadableVideo, firstLine(stderr.String()))
	}

	names, err := filepath.Glob(filepath.Join(outDir, "frame_*.jpg"))
	if err != nil {
		return nil, fmt.Errorf("glob frames: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no frames decoded", ErrUnreadableVideo)
	}
	sort.Strings(names)

	frames := make([]Frame, 0, len(names))
	for i, name := range names {
		data, err := os.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read frame: %w", err)
		}
		idx := i * stride
		frames = append(frames, Frame{
			Index:     idx,
			Timestamp: float64(idx) / meta.FPS,
			Data:      data,
		})
	}
	return frames, nil
}

// parseFrameRate handles ffprobe's rational form, e.g. "30000/1001".
func parseFrameRate(s string) float64 {
	num, den, found := strings.Cut(s, "/")
	if !found {
		return parseFloat(s)
	}
	n := parseFloat(num)
	d := parseFloat(den)
	if d == 0 {
		return 0
	}
	return n / d
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		s = "unknown error"
	}
	return s
}
