package idempotency

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func alwaysExists(ctx context.Context, jobID string) (bool, error) { return true, nil }
func neverExists(ctx context.Context, jobID string) (bool, error)  { return false, nil }

func TestSetIfAbsentThenGet(t *testing.T) {
	s := New(t.TempDir(), alwaysExists)
	ctx := context.Background()

	winner, ok, err := s.SetIfAbsent(ctx, "req-1", "job-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "job-1", winner)

	got, found, err := s.Get(ctx, "req-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "job-1", got)
}

func TestSetIfAbsentSecondWriterLoses(t *testing.T) {
	s := New(t.TempDir(), alwaysExists)
	ctx := context.Background()

	_, ok1, err := s.SetIfAbsent(ctx, "req-1", "job-1")
	require.NoError(t, err)
	require.True(t, ok1)

	winner, ok2, err := s.SetIfAbsent(ctx, "req-1", "job-2")
	require.NoError(t, err)
	require.False(t, ok2)
	require.Equal(t, "job-1", winner, "second writer must see the first writer's job id")
}

func TestGetAbsentReturnsNotFound(t *testing.T) {
	s := New(t.TempDir(), alwaysExists)
	_, found, err := s.Get(context.Background(), "never-seen")
	require.NoError(t, err)
	require.False(t, found)
}

func TestGetStaleMappingIsRemoved(t *testing.T) {
	s := New(t.TempDir(), neverExists)
	ctx := context.Background()

	_, ok, err := s.SetIfAbsent(ctx, "req-1", "job-gone")
	require.NoError(t, err)
	require.True(t, ok)

	_, found, err := s.Get(ctx, "req-1")
	require.NoError(t, err)
	require.False(t, found, "mapping pointing at a missing job must be treated as absent")

	// Second read confirms the stale file was actually unlinked, not just
	// masked this one time.
	_, found2, err := s.Get(ctx, "req-1")
	require.NoError(t, err)
	require.False(t, found2)
}

func TestPathForSanitizesRequestID(t *testing.T) {
	s := New(t.TempDir(), alwaysExists)
	ctx := context.Background()
	_, ok, err := s.SetIfAbsent(ctx, "../../etc/passwd", "job-1")
	require.NoError(t, err)
	require.True(t, ok)

	got, found, err := s.Get(ctx, "../../etc/passwd")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "job-1", got)
}
