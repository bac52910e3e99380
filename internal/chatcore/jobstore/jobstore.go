// Package jobstore owns the on-disk representation of a chat job: its
// directory layout, the atomic status transitions written to job.json, and
// startup crash-recovery. It is the durable side of the scheduler —
// lanestore and signalregistry hold only in-memory/transient coordination
// state, jobstore is the thing a crash leaves behind to recover from.
package jobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bobmcallan/vire-chat/internal/chatcore/fsatomic"
	"github.com/bobmcallan/vire-chat/internal/chatcore/lanestore"
	"github.com/bobmcallan/vire-chat/internal/chatcore/workerpool"
	"github.com/bobmcallan/vire-chat/internal/models"
)

// Paths returns the fixed set of file names inside a job's directory.
func Paths(jobDir string) (jobPath, eventsPath, seqPath, lockPath string) {
	return filepath.Join(jobDir, "job.json"),
		filepath.Join(jobDir, "events.jsonl"),
		filepath.Join(jobDir, "events.seq"),
		filepath.Join(jobDir, "claim.lock")
}

// Store manages job directories rooted under a single base path:
// <root>/<lane-sanitized>/<job_id>/.
type Store struct {
	root string

	mapMu  sync.Mutex
	perJob map[string]*sync.Mutex
}

// New constructs a Store rooted at root. root is created on first write if
// absent.
func New(root string) *Store {
	return &Store{root: root, perJob: make(map[string]*sync.Mutex)}
}

func sanitizeSegment(s string) string {
	r := make([]rune, 0, len(s))
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			r = append(r, c)
		default:
			r = append(r, '_')
		}
	}
	if len(r) == 0 {
		return "_"
	}
	return string(r)
}

// JobDir returns the directory a job with the given lane and job ID lives
// in, without creating it.
func (s *Store) JobDir(laneID, jobID string) string {
	return filepath.Join(s.root, sanitizeSegment(laneID), sanitizeSegment(jobID))
}

func (s *Store) mutexFor(jobID string) *sync.Mutex {
	s.mapMu.Lock()
	defer s.mapMu.Unlock()
	mu, ok := s.perJob[jobID]
	if !ok {
		mu = &sync.Mutex{}
		s.perJob[jobID] = mu
	}
	return mu
}

// Create writes a brand-new job.json for a queued job. Returns an error if
// the job directory already exists with a job.json (callers must route
// re-submission through idempotency, not Create).
func (s *Store) Create(job *models.ChatJob) (string, error) {
	dir := s.JobDir(job.LaneID, job.JobID)
	jobPath, _, _, _ := Paths(dir)

	if _, err := os.Stat(jobPath); err == nil {
		return "", fmt.Errorf("jobstore: job %s already exists", job.JobID)
	}

	mu := s.mutexFor(job.JobID)
	mu.Lock()
	defer mu.Unlock()

	if err := fsatomic.WriteJSON(jobPath, job); err != nil {
		return "", fmt.Errorf("jobstore: create %s: %w", job.JobID, err)
	}
	return dir, nil
}

// Load reads a job's current state from job.json.
func (s *Store) Load(laneID, jobID string) (*models.ChatJob, error) {
	dir := s.JobDir(laneID, jobID)
	jobPath, _, _, _ := Paths(dir)
	var job models.ChatJob
	if err := fsatomic.ReadJSON(jobPath, &job); err != nil {
		return nil, fmt.Errorf("jobstore: load %s: %w", jobID, err)
	}
	return &job, nil
}

// Transition applies mutate to the job's persisted state and writes the
// result atomically. The whole read-mutate-write is serialized per job ID
// so concurrent transitions (e.g. a cancel racing a worker's completion)
// never interleave.
func (s *Store) Transition(laneID, jobID string, mutate func(job *models.ChatJob) error) (*models.ChatJob, error) {
	mu := s.mutexFor(jobID)
	mu.Lock()
	defer mu.Unlock()

	dir := s.JobDir(laneID, jobID)
	jobPath, _, _, _ := Paths(dir)

	var job models.ChatJob
	if err := fsatomic.ReadJSON(jobPath, &job); err != nil {
		return nil, fmt.Errorf("jobstore: transition load %s: %w", jobID, err)
	}

	if err := mutate(&job); err != nil {
		return nil, err
	}
	job.UpdatedAt = time.Now().UTC()

	if err := fsatomic.WriteJSON(jobPath, &job); err != nil {
		return nil, fmt.Errorf("jobstore: transition write %s: %w", jobID, err)
	}
	return &job, nil
}

// Exists reports whether any lane directory under root holds a job.json
// for jobID. Used by the idempotency store to validate a remembered
// request_id -> job_id mapping still refers to a live job record; the
// caller knows only the job ID, not its lane.
func (s *Store) Exists(jobID string) bool {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return false
	}
	want := sanitizeSegment(jobID)
	for _, laneEntry := range entries {
		if !laneEntry.IsDir() {
			continue
		}
		jobPath := filepath.Join(s.root, laneEntry.Name(), want, "job.json")
		if _, err := os.Stat(jobPath); err == nil {
			return true
		}
	}
	return false
}

// Find locates jobID under any lane directory and returns its lane ID
// alongside the loaded record. Used by HTTP handlers that only have a job
// ID to work from (the stream, events, cancel, and job-detail endpoints).
func (s *Store) Find(jobID string) (laneID string, job *models.ChatJob, err error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return "", nil, fmt.Errorf("jobstore: find %s: %w", jobID, err)
	}
	want := sanitizeSegment(jobID)
	for _, laneEntry := range entries {
		if !laneEntry.IsDir() {
			continue
		}
		jobPath := filepath.Join(s.root, laneEntry.Name(), want, "job.json")
		var j models.ChatJob
		if rerr := fsatomic.ReadJSON(jobPath, &j); rerr == nil {
			// j.LaneID is the original (unsanitized) lane identifier the
			// lane store keys by; the directory name is sanitizeSegment's
			// filesystem-safe rendering of it and must not be used as a
			// lane store key.
			return j.LaneID, &j, nil
		}
	}
	return "", nil, fmt.Errorf("jobstore: job %s not found", jobID)
}

// RecoverRunning scans root for jobs left in a non-terminal status by a
// prior crash — still queued, or processing with no live claim lock
// (evidence the worker that owned it never finished) — and re-enqueues
// each through the exact Enqueue/Submit path normal ingress uses. This is
// the only way back to a consistent lane state for a backend like
// InlineStore, whose active/queue slots live purely in memory and are
// wiped by a restart: a job merely marked queued on disk again would sit
// forever, since nothing would ever re-register it with the lane store or
// hand it to the pool. Mirrors the donor's ResetRunningJobs startup step,
// generalized to also dispatch. lanes and pool may be the same values the
// caller wires into its ChatCore; pool may be nil if chat's gateway never
// initialized, in which case recovered jobs are re-enqueued but left for a
// later Submit to pick up once dispatch-capable.
func (s *Store) RecoverRunning(ctx context.Context, lanes lanestore.Store, pool *workerpool.Pool, claimTTL time.Duration) (int, error) {
	entries, err := os.ReadDir(s.root)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("jobstore: recover scan root: %w", err)
	}

	count := 0
	for _, laneEntry := range entries {
		if !laneEntry.IsDir() {
			continue
		}
		laneDir := filepath.Join(s.root, laneEntry.Name())
		jobEntries, err := os.ReadDir(laneDir)
		if err != nil {
			continue
		}
		for _, jobEntry := range jobEntries {
			if !jobEntry.IsDir() {
				continue
			}
			jobPath := filepath.Join(laneDir, jobEntry.Name(), "job.json")
			var job models.ChatJob
			if err := fsatomic.ReadJSON(jobPath, &job); err != nil {
				continue
			}

			switch job.Status {
			case models.ChatJobQueued:
				// already marked queued; still needs its lane-store slot
				// re-registered since InlineStore's state doesn't survive
				// a restart.
			case models.ChatJobProcessing:
				lockPath := filepath.Join(laneDir, jobEntry.Name(), "claim.lock")
				if _, err := os.Stat(lockPath); err == nil {
					continue // an owner may still hold this; leave it alone
				}
				job.Status = models.ChatJobQueued
				job.UpdatedAt = time.Now().UTC()
				if err := fsatomic.WriteJSON(jobPath, &job); err != nil {
					continue
				}
			default:
				continue // terminal status, nothing to recover
			}

			if lanes == nil {
				count++
				continue
			}
			result, err := lanes.Enqueue(ctx, job.LaneID, job.JobID, claimTTL)
			if err != nil {
				continue
			}
			if result.Dispatch && pool != nil {
				pool.Submit(workerpool.Dispatch{LaneID: job.LaneID, JobID: job.JobID})
			}
			count++
		}
	}
	return count, nil
}
