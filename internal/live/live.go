// Package live manages real-time analysis sessions. A session analyzes
// single frames pushed over a socket, rate limited so a fast client cannot
// monopolize the inference backend.
package live

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vehiclereid/revid/internal/config"
	"github.com/vehiclereid/revid/pkg/models"
)

var (
	// ErrFrameDropped means the frame arrived inside the minimum interval
	// and was discarded without analysis.
	ErrFrameDropped = errors.New("frame dropped by rate limit")
	// ErrFrameTooLarge means the frame exceeds the configured byte cap.
	ErrFrameTooLarge = errors.New("frame too large")
	// ErrSessionClosed means the session no longer accepts frames.
	ErrSessionClosed = errors.New("session closed")
)

// Session is one live analysis stream. Frames go through Analyze; the rate
// gate admits at most one frame per MinFrameInterval.
type Session struct {
	ID       string
	analyzer models.FrameAnalyzer
	cfg      config.LiveConfig

	mu             sync.Mutex
	closed         bool
	lastAnalyzed   time.Time
	framesAnalyzed int
	framesDropped  int
}

// Analyze runs detection on one frame. Frames inside the rate window return
// ErrFrameDropped; the caller stays silent about those.
func (s *Session) Analyze(ctx context.Context, frame []byte) ([]models.Detection, error) {
	if int64(len(frame)) > s.cfg.MaxFrameBytes {
		return nil, ErrFrameTooLarge
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	now := time.Now()
	if !s.lastAnalyzed.IsZero() && now.Sub(s.lastAnalyzed) < s.cfg.MinFrameInterval {
		s.framesDropped++
		s.mu.Unlock()
		return nil, ErrFrameDropped
	}
	s.lastAnalyzed = now
	s.framesAnalyzed++
	s.mu.Unlock()

	return s.analyzer.Detect(ctx, frame)
}

// Stats returns how many frames the session analyzed and dropped.
func (s *Session) Stats() (analyzed, dropped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.framesAnalyzed, s.framesDropped
}

func (s *Session) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Manager tracks open sessions by id.
type Manager struct {
	analyzer models.FrameAnalyzer
	cfg      config.LiveConfig
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(analyzer models.FrameAnalyzer, cfg config.LiveConfig, logger *slog.Logger) *Manager {
	return &Manager{
		analyzer: analyzer,
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Open starts a new session.
func (m *Manager) Open() *Session {
	s := &Session{
		ID:       uuid.New().String(),
		analyzer: m.analyzer,
		cfg:      m.cfg,
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.logger.Info("live session opened", "session_id", s.ID)
	return s
}

// Close ends a session. Idempotent; closing an unknown id is a no-op.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return
	}

	s.close()
	analyzed, dropped := s.Stats()
	m.logger.Info("live session closed", "session_id", id, "frames_analyzed", analyzed, "frames_dropped", dropped)
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
