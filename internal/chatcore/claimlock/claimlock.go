// Package claimlock implements the per-job advisory file lock that keeps at
// most one worker processing a job at a time. Grounded on the owning
// repository's chat_lock_service.py, with a PID-liveness check added on top
// of its mtime-only staleness test.
package claimlock

import (
	"encoding/json"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// payload is the JSON body written into the lock file.
type payload struct {
	OwnerToken string    `json:"owner_token"`
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// maxRetries bounds liveness under pathological races: at most one
// stale-reclaim retry per acquire attempt.
const maxRetries = 2

// NewOwnerToken returns a random 128-bit token held only in memory by the
// acquirer; it is never looked up by value, only compared on release.
func NewOwnerToken() string {
	return uuid.New().String()
}

// TryAcquire attempts to create path exclusively. On success it returns the
// owner token the caller must hold onto to release the lock. On EEXIST it
// inspects the existing lock: if the owning PID is no longer alive, or the
// lock is older than ttl, the stale file is removed and acquisition is
// retried once. Otherwise it returns ok=false without error.
func TryAcquire(path string, ttl time.Duration) (ownerToken string, ok bool, err error) {
	token := NewOwnerToken()
	for attempt := 0; attempt < maxRetries; attempt++ {
		acquired, acquireErr := create(path, token)
		if acquireErr == nil && acquired {
			return token, true, nil
		}
		if acquireErr != nil && !os.IsExist(acquireErr) {
			return "", false, fmt.Errorf("claimlock: create %s: %w", path, acquireErr)
		}

		stale, staleErr := isStale(path, ttl)
		if staleErr != nil {
			// Stat failures during the staleness check mean the acquirer
			// gives up rather than guessing.
			return "", false, nil
		}
		if !stale {
			return "", false, nil
		}
		// Remove the stale lock and retry; ignore a race where another
		// process already removed or replaced it.
		_ = os.Remove(path)
	}
	return "", false, nil
}

func create(path, token string) (bool, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return false, err
	}
	defer f.Close()

	body := payload{OwnerToken: token, PID: os.Getpid(), AcquiredAt: time.Now().UTC()}
	enc := json.NewEncoder(f)
	if err := enc.Encode(body); err != nil {
		return false, fmt.Errorf("claimlock: write payload to %s: %w", path, err)
	}
	return true, nil
}

// isStale reports whether the lock at path is reclaimable: its owning
// process is dead, or it has outlived ttl.
func isStale(path string, ttl time.Duration) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	var body payload
	if err := json.Unmarshal(data, &body); err != nil {
		// An unparsable lock payload is treated as stale — it cannot have
		// been written by a live owner of this code.
		return true, nil
	}
	if !pidAlive(body.PID) {
		return true, nil
	}
	if ttl > 0 && time.Since(body.AcquiredAt) > ttl {
		return true, nil
	}
	return false, nil
}

// pidAlive probes process liveness via signal 0. Permission-denied is
// treated as alive (conservative): we cannot tell a live-but-unreachable
// process from a dead one, so we decline to reclaim its lock.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	if err == syscall.EPERM {
		return true
	}
	return false
}

// Release removes path only if the lock's recorded owner token matches.
// A mismatch is a no-op: releasing someone else's lock must never happen.
func Release(path, ownerToken string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("claimlock: read %s: %w", path, err)
	}
	var body payload
	if err := json.Unmarshal(data, &body); err != nil {
		return nil
	}
	if body.OwnerToken != ownerToken {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("claimlock: remove %s: %w", path, err)
	}
	return nil
}
