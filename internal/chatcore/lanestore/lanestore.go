// Package lanestore implements the per-lane FIFO queue + active-slot state
// machine that is the heart of the scheduler. It defines the Store
// interface shared by the in-process and distributed backends, grounded on
// a Lua-script-style state machine for atomic enqueue/finish.
package lanestore

import (
	"context"
	"time"
)

// FinishOutcome distinguishes "the caller's slot closed cleanly" from "the
// caller never held the slot" — an ambiguous nullable return in the source
// material is replaced here with a tagged result.
type FinishOutcome string

const (
	FinishOK       FinishOutcome = "finished"
	FinishNotOwner FinishOutcome = "not_owner"
)

// FinishResult is the return shape of Finish. When Outcome is FinishOK,
// Next is non-nil iff a queued job was popped into the active slot and must
// be dispatched exactly once by the caller.
type FinishResult struct {
	Outcome FinishOutcome
	Next    *string
}

// EnqueueResult is the return shape of Enqueue.
type EnqueueResult struct {
	Position  int  // 0 when Active, else 1-based queue position
	QueueSize int  // total queued (not counting the active slot)
	Active    bool // true if this job is now (or already was) the active slot
	Dispatch  bool // true iff the caller must schedule this job now
}

// LaneLoad summarizes a lane's current occupancy.
type LaneLoad struct {
	QueuedCount int
	ActiveCount int // 0 or 1
	Total       int
}

// LaneSummary pairs a lane's identity with its current occupancy, returned
// by ListLanes for the operator lane-depth view.
type LaneSummary struct {
	LaneID string
	Load   LaneLoad
}

// Store is the single trait every lane-store backend implements, selected
// by a factory at startup.
type Store interface {
	LaneLoad(ctx context.Context, laneID string) (LaneLoad, error)
	FindPosition(ctx context.Context, laneID, jobID string) (int, error)

	// Enqueue atomically makes jobID active (if the slot is free) or
	// appends it to the tail of the queue. claimTTL bounds how long the
	// active slot may be held before a distributed backend considers it
	// abandoned.
	Enqueue(ctx context.Context, laneID, jobID string, claimTTL time.Duration) (EnqueueResult, error)

	// Finish releases jobID's hold on the active slot (if it holds one)
	// and promotes the next queued job, if any.
	Finish(ctx context.Context, laneID, jobID string, claimTTL time.Duration) (FinishResult, error)

	// RegisterRecent records a debounce fingerprint -> job_id mapping with
	// the given TTL.
	RegisterRecent(ctx context.Context, laneID, fingerprint, jobID string, debounce time.Duration) error

	// RecentJob returns the job ID registered for fingerprint within its
	// debounce window, if any.
	RecentJob(ctx context.Context, laneID, fingerprint string) (jobID string, ok bool, err error)

	// ListLanes returns every lane currently tracked, with its occupancy —
	// the operator lane-depth view.
	ListLanes(ctx context.Context) ([]LaneSummary, error)
}

// LaneID builds the canonical lane identifier: role + actor + session. This
// is the sole place lane identity is computed so ingress and the stream
// endpoint's ownership check agree on it.
func LaneID(role, actorID, sessionID string) string {
	return string(role) + ":" + actorID + ":" + sessionID
}
