package joblog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vehiclereid/revid/internal/joblog"
)

func newStore(t *testing.T) *joblog.Store {
	t.Helper()
	s, err := joblog.NewStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestAppendAndTail(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.Append(1, "processing_started", "", nil))
	require.NoError(t, s.Append(1, "frame_processed", "", map[string]any{"frame": float64(5)}))
	require.NoError(t, s.Append(1, "job_completed", "done", nil))

	entries, err := s.Tail(1, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "processing_started", entries[0].Event)
	assert.Equal(t, "frame_processed", entries[1].Event)
	assert.Equal(t, "job_completed", entries[2].Event)
	assert.Equal(t, float64(5), entries[1].Fields["frame"])
}

func TestTail_TimestampsNonDecreasing(t *testing.T) {
	s := newStore(t)

	for i := 0; i < 20; i++ {
		require.NoError(t, s.Append(7, "frame_processed", "", nil))
	}

	entries, err := s.Tail(7, 20)
	require.NoError(t, err)
	require.Len(t, entries, 20)
	for i := 1; i < len(entries); i++ {
		assert.GreaterOrEqual(t, entries[i].Timestamp, entries[i-1].Timestamp)
	}
}

func TestTail_LimitKeepsMostRecent(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.Append(2, "a", "", nil))
	require.NoError(t, s.Append(2, "b", "", nil))
	require.NoError(t, s.Append(2, "c", "", nil))

	entries, err := s.Tail(2, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].Event)
	assert.Equal(t, "c", entries[1].Event)
}

func TestTail_UnknownJob(t *testing.T) {
	s := newStore(t)

	entries, err := s.Tail(999, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReset(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.Append(3, "old_run", "", nil))
	require.NoError(t, s.Reset(3))
	require.NoError(t, s.Append(3, "processing_started", "", nil))

	entries, err := s.Tail(3, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "processing_started", entries[0].Event)
}

func TestJobsAreIsolated(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.Append(10, "only_ten", "", nil))
	require.NoError(t, s.Append(11, "only_eleven", "", nil))

	ten, err := s.Tail(10, 10)
	require.NoError(t, err)
	require.Len(t, ten, 1)
	assert.Equal(t, "only_ten", ten[0].Event)
}
