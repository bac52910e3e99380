package claimlock

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTryAcquireThenRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.lock")

	token, ok, err := TryAcquire(path, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.FileExists(t, path)

	require.NoError(t, Release(path, token))
	require.NoFileExists(t, path)
}

func TestTryAcquireSecondHolderBlocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.lock")

	_, ok, err := TryAcquire(path, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = TryAcquire(path, time.Minute)
	require.NoError(t, err)
	require.False(t, ok, "a live, fresh lock must not be reclaimed")
}

func TestReleaseWithWrongTokenIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.lock")

	_, ok, err := TryAcquire(path, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, Release(path, "not-the-owner"))
	require.FileExists(t, path, "releasing with a mismatched token must be a no-op")
}

func TestTryAcquireReclaimsExpiredTTL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.lock")

	_, ok, err := TryAcquire(path, time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(5 * time.Millisecond)

	token2, ok, err := TryAcquire(path, time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok, "expired TTL lock must be reclaimable")
	require.NoError(t, Release(path, token2))
}

func TestTryAcquireReclaimsDeadPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.lock")

	// A PID that is virtually guaranteed not to be alive.
	body := `{"owner_token":"stale","pid":999999,"acquired_at":"` + time.Now().Add(-time.Hour).Format(time.RFC3339) + `"}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	token, ok, err := TryAcquire(path, time.Hour)
	require.NoError(t, err)
	require.True(t, ok, "a lock owned by a dead PID must be reclaimable regardless of TTL")
	require.NoError(t, Release(path, token))
}
