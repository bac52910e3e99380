// Package idempotency implements the request_id -> job_id mapping ingress
// uses to make repeated submissions with the same request_id safe. Grounded
// on the owning repository's chat_idempotency_service.py, minus the legacy
// consolidated-JSON-index fallback: per the resolved open question, the
// per-file O_EXCL map is the sole authority (no migration-era fallback).
package idempotency

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExistsFunc verifies a job record still exists, used to detect and clean
// up a stale mapping left behind after the referenced job was GC'd.
type ExistsFunc func(ctx context.Context, jobID string) (bool, error)

// Store maps request IDs to job IDs using one file per request under root.
type Store struct {
	root   string
	exists ExistsFunc
}

// New constructs a Store rooted at root, using exists to validate mapping
// targets still refer to a live job record.
func New(root string, exists ExistsFunc) *Store {
	return &Store{root: root, exists: exists}
}

func (s *Store) pathFor(requestID string) string {
	return filepath.Join(s.root, safeFilename(requestID)+".txt")
}

// safeFilename strips path separators from an externally supplied ID so it
// cannot be used to escape the idempotency root.
func safeFilename(id string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	return replacer.Replace(id)
}

// Get returns the job ID mapped to requestID, if any live mapping exists.
// A mapping pointing at a job record that no longer exists is removed and
// treated as absent.
func (s *Store) Get(ctx context.Context, requestID string) (jobID string, ok bool, err error) {
	path := s.pathFor(requestID)
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("idempotency: read %s: %w", path, readErr)
	}
	id := strings.TrimSpace(string(data))
	if id == "" {
		return "", false, nil
	}
	if s.exists != nil {
		live, existsErr := s.exists(ctx, id)
		if existsErr != nil {
			return "", false, fmt.Errorf("idempotency: check existence of %s: %w", id, existsErr)
		}
		if !live {
			_ = os.Remove(path)
			return "", false, nil
		}
	}
	return id, true, nil
}

// SetIfAbsent atomically creates the mapping requestID -> jobID if absent.
// It returns ok=false (with the winning job ID from Get) if another writer
// already won the race — the caller must treat this as "use the existing
// mapping", not an error.
func (s *Store) SetIfAbsent(ctx context.Context, requestID, jobID string) (winnerJobID string, ok bool, err error) {
	path := s.pathFor(requestID)
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return "", false, fmt.Errorf("idempotency: mkdir %s: %w", s.root, err)
	}
	f, createErr := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if createErr == nil {
		defer f.Close()
		if _, werr := f.WriteString(jobID); werr != nil {
			return "", false, fmt.Errorf("idempotency: write %s: %w", path, werr)
		}
		return jobID, true, nil
	}
	if !os.IsExist(createErr) {
		return "", false, fmt.Errorf("idempotency: create %s: %w", path, createErr)
	}
	existing, found, getErr := s.Get(ctx, requestID)
	if getErr != nil {
		return "", false, getErr
	}
	if !found {
		// The concurrent writer's record vanished between EEXIST and our
		// Get (e.g. GC'd); treat this path as absent for the caller to
		// retry rather than returning a contradictory state.
		return "", false, nil
	}
	return existing, false, nil
}
