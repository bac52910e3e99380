package lanestore

import (
	"context"
	"fmt"
	"time"

	"github.com/bobmcallan/vire-chat/internal/common"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// SurrealStore is the distributed lane-store backend. No Go Redis client
// exists anywhere in this project's dependency surface, so the distributed
// atomic-script role is filled by SurrealDB — already this project's
// primary database client — using a `BEGIN TRANSACTION ... COMMIT
// TRANSACTION` block per operation in place of a Lua script. Table:
// chat_lane, one record per lane_id.
type SurrealStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewSurreal constructs a SurrealStore.
func NewSurreal(db *surrealdb.DB, logger *common.Logger) *SurrealStore {
	return &SurrealStore{db: db, logger: logger}
}

type laneRow struct {
	Active   string   `json:"active"`
	ActiveAt string   `json:"active_at"`
	Queue    []string `json:"queue"`
	Queued   []string `json:"queued"`
}

func (s *SurrealStore) recordID(laneID string) surrealmodels.RecordID {
	return surrealmodels.NewRecordID("chat_lane", laneID)
}

// ensureLane upserts an empty lane row if absent, so subsequent
// transactions can rely on the record existing.
func (s *SurrealStore) ensureLane(ctx context.Context, laneID string) error {
	sql := `UPDATE $rid MERGE { active: active OR '', queue: queue OR [], queued: queued OR [] }`
	_, err := surrealdb.Query[any](ctx, s.db, sql, map[string]any{"rid": s.recordID(laneID)})
	if err != nil {
		return fmt.Errorf("lanestore/surreal: ensure lane %s: %w", laneID, err)
	}
	return nil
}

func (s *SurrealStore) LaneLoad(ctx context.Context, laneID string) (LaneLoad, error) {
	if err := s.ensureLane(ctx, laneID); err != nil {
		return LaneLoad{}, err
	}
	sql := `SELECT active, queue, queued FROM $rid`
	rows, err := surrealdb.Query[[]laneRow](ctx, s.db, sql, map[string]any{"rid": s.recordID(laneID)})
	if err != nil {
		return LaneLoad{}, fmt.Errorf("lanestore/surreal: lane load %s: %w", laneID, err)
	}
	row, ok := firstRow(rows)
	if !ok {
		return LaneLoad{}, nil
	}
	active := 0
	if row.Active != "" {
		active = 1
	}
	return LaneLoad{QueuedCount: len(row.Queue), ActiveCount: active, Total: len(row.Queue) + active}, nil
}

func (s *SurrealStore) FindPosition(ctx context.Context, laneID, jobID string) (int, error) {
	if err := s.ensureLane(ctx, laneID); err != nil {
		return 0, err
	}
	sql := `SELECT active, queue FROM $rid`
	rows, err := surrealdb.Query[[]laneRow](ctx, s.db, sql, map[string]any{"rid": s.recordID(laneID)})
	if err != nil {
		return 0, fmt.Errorf("lanestore/surreal: find position %s: %w", laneID, err)
	}
	row, ok := firstRow(rows)
	if !ok {
		return 0, nil
	}
	if row.Active == jobID {
		return 0, nil
	}
	for i, id := range row.Queue {
		if id == jobID {
			return i + 1, nil
		}
	}
	return 0, nil
}

// enqueueResultRow is what the transactional enqueue statement returns.
type enqueueResultRow struct {
	Position  int  `json:"position"`
	QueueSize int  `json:"queue_size"`
	Active    bool `json:"active"`
	Dispatch  bool `json:"dispatch"`
}

// Enqueue replicates chat_redis_lane_store.py's _enqueue_script as a single
// SurrealQL transaction: read the lane row, branch on already-queued /
// active-occupied / slot-free, write the resulting state, and return the
// decision — all inside one BEGIN/COMMIT block so no other Enqueue or
// Finish on the same lane can interleave.
func (s *SurrealStore) Enqueue(ctx context.Context, laneID, jobID string, claimTTL time.Duration) (EnqueueResult, error) {
	if err := s.ensureLane(ctx, laneID); err != nil {
		return EnqueueResult{}, err
	}
	sql := `
BEGIN TRANSACTION;
LET $row = (SELECT active, queue, queued FROM $rid)[0];
LET $already = array::find_index($row.queued, $job) != NONE;
LET $result = IF $already THEN {
		position: IF $row.active == $job THEN 0 ELSE array::find_index($row.queue, $job) + 1 END,
		queue_size: array::len($row.queue),
		active: $row.active == $job,
		dispatch: false
	} ELSE IF $row.active != '' THEN {
		position: array::len($row.queue) + 1,
		queue_size: array::len($row.queue) + 1,
		active: false,
		dispatch: false
	} ELSE {
		position: 0,
		queue_size: array::len($row.queue),
		active: true,
		dispatch: true
	} END;
UPDATE $rid SET
	queued = IF $already THEN queued ELSE array::append(queued, $job) END,
	queue = IF $already THEN queue ELSE IF active != '' THEN array::append(queue, $job) ELSE queue END END,
	active = IF $already THEN active ELSE IF active != '' THEN active ELSE $job END END,
	active_at = IF $result.dispatch THEN time::now() ELSE active_at END;
RETURN $result;
COMMIT TRANSACTION;`
	vars := map[string]any{"rid": s.recordID(laneID), "job": jobID}
	rows, err := surrealdb.Query[[]enqueueResultRow](ctx, s.db, sql, vars)
	if err != nil {
		return EnqueueResult{}, fmt.Errorf("lanestore/surreal: enqueue %s/%s: %w", laneID, jobID, err)
	}
	row, ok := firstEnqueueRow(rows)
	if !ok {
		return EnqueueResult{}, fmt.Errorf("lanestore/surreal: enqueue %s/%s: empty transaction result", laneID, jobID)
	}
	return EnqueueResult{Position: row.Position, QueueSize: row.QueueSize, Active: row.Active, Dispatch: row.Dispatch}, nil
}

type finishResultRow struct {
	Outcome string  `json:"outcome"`
	Next    *string `json:"next"`
}

// Finish replicates _finish_script: remove jobID from queued, and if it
// held the active slot, pop the next queued job into it (or leave it
// empty). If it did not hold the slot, report NotOwner so the caller never
// double-dispatches.
func (s *SurrealStore) Finish(ctx context.Context, laneID, jobID string, claimTTL time.Duration) (FinishResult, error) {
	if err := s.ensureLane(ctx, laneID); err != nil {
		return FinishResult{}, err
	}
	sql := `
BEGIN TRANSACTION;
LET $row = (SELECT active, queue, queued FROM $rid)[0];
LET $owner = $row.active == $job;
LET $next = IF $owner AND array::len($row.queue) > 0 THEN $row.queue[0] ELSE NONE END;
LET $result = IF !$owner THEN { outcome: 'not_owner', next: NONE }
	ELSE { outcome: 'finished', next: $next } END;
UPDATE $rid SET
	queued = array::complement(queued, [$job]),
	queue = IF $owner AND array::len(queue) > 0 THEN array::slice(queue, 1) ELSE queue END,
	active = IF !$owner THEN active ELSE IF $next != NONE THEN $next ELSE '' END END,
	active_at = IF $owner AND $next != NONE THEN time::now() ELSE active_at END;
RETURN $result;
COMMIT TRANSACTION;`
	vars := map[string]any{"rid": s.recordID(laneID), "job": jobID}
	rows, err := surrealdb.Query[[]finishResultRow](ctx, s.db, sql, vars)
	if err != nil {
		return FinishResult{}, fmt.Errorf("lanestore/surreal: finish %s/%s: %w", laneID, jobID, err)
	}
	row, ok := firstFinishRow(rows)
	if !ok {
		return FinishResult{}, fmt.Errorf("lanestore/surreal: finish %s/%s: empty transaction result", laneID, jobID)
	}
	if row.Outcome == "not_owner" {
		return FinishResult{Outcome: FinishNotOwner}, nil
	}
	return FinishResult{Outcome: FinishOK, Next: row.Next}, nil
}

type laneTableRow struct {
	LaneID string   `json:"lane_id"`
	Active string   `json:"active"`
	Queue  []string `json:"queue"`
}

// ListLanes scans the chat_lane table directly rather than going through
// per-lane record IDs, since the operator view needs every lane at once.
// record::id() strips the table prefix so LaneID comes back exactly as
// LaneID() built it, matching InlineStore's map keys.
func (s *SurrealStore) ListLanes(ctx context.Context) ([]LaneSummary, error) {
	sql := `SELECT record::id(id) AS lane_id, active, queue FROM chat_lane`
	rows, err := surrealdb.Query[[]laneTableRow](ctx, s.db, sql, nil)
	if err != nil {
		return nil, fmt.Errorf("lanestore/surreal: list lanes: %w", err)
	}
	if rows == nil || len(*rows) == 0 {
		return nil, nil
	}
	out := make([]LaneSummary, 0, len((*rows)[0].Result))
	for _, row := range (*rows)[0].Result {
		active := 0
		if row.Active != "" {
			active = 1
		}
		out = append(out, LaneSummary{
			LaneID: row.LaneID,
			Load:   LaneLoad{QueuedCount: len(row.Queue), ActiveCount: active, Total: len(row.Queue) + active},
		})
	}
	return out, nil
}

func (s *SurrealStore) RegisterRecent(ctx context.Context, laneID, fingerprint, jobID string, debounce time.Duration) error {
	sql := `UPDATE $rid MERGE { recent: { fingerprint: $fp, job_id: $job, expire_at: $exp } }`
	vars := map[string]any{
		"rid": s.recordID(laneID),
		"fp":  fingerprint,
		"job": jobID,
		"exp": time.Now().Add(debounce),
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("lanestore/surreal: register recent %s: %w", laneID, err)
	}
	return nil
}

type recentRow struct {
	Recent *struct {
		Fingerprint string    `json:"fingerprint"`
		JobID       string    `json:"job_id"`
		ExpireAt    time.Time `json:"expire_at"`
	} `json:"recent"`
}

func (s *SurrealStore) RecentJob(ctx context.Context, laneID, fingerprint string) (string, bool, error) {
	sql := `SELECT recent FROM $rid`
	rows, err := surrealdb.Query[[]recentRow](ctx, s.db, sql, map[string]any{"rid": s.recordID(laneID)})
	if err != nil {
		return "", false, fmt.Errorf("lanestore/surreal: recent job %s: %w", laneID, err)
	}
	row, ok := firstRecentRow(rows)
	if !ok || row.Recent == nil {
		return "", false, nil
	}
	if row.Recent.Fingerprint != fingerprint {
		return "", false, nil
	}
	if time.Now().After(row.Recent.ExpireAt) {
		return "", false, nil
	}
	return row.Recent.JobID, true, nil
}

func firstRow(rows *[]surrealdb.QueryResult[[]laneRow]) (laneRow, bool) {
	if rows == nil || len(*rows) == 0 || len((*rows)[0].Result) == 0 {
		return laneRow{}, false
	}
	return (*rows)[0].Result[0], true
}

func firstEnqueueRow(rows *[]surrealdb.QueryResult[[]enqueueResultRow]) (enqueueResultRow, bool) {
	if rows == nil || len(*rows) == 0 || len((*rows)[0].Result) == 0 {
		return enqueueResultRow{}, false
	}
	return (*rows)[0].Result[0], true
}

func firstFinishRow(rows *[]surrealdb.QueryResult[[]finishResultRow]) (finishResultRow, bool) {
	if rows == nil || len(*rows) == 0 || len((*rows)[0].Result) == 0 {
		return finishResultRow{}, false
	}
	return (*rows)[0].Result[0], true
}

func firstRecentRow(rows *[]surrealdb.QueryResult[[]recentRow]) (recentRow, bool) {
	if rows == nil || len(*rows) == 0 || len((*rows)[0].Result) == 0 {
		return recentRow{}, false
	}
	return (*rows)[0].Result[0], true
}
