package server

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bobmcallan/vire-chat/internal/app"
	"github.com/bobmcallan/vire-chat/internal/chatcore/eventlog"
	"github.com/bobmcallan/vire-chat/internal/chatcore/lanestore"
	"github.com/bobmcallan/vire-chat/internal/chatcore/workerpool"
	"github.com/bobmcallan/vire-chat/internal/common"
	"github.com/bobmcallan/vire-chat/internal/models"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// chatCore fetches the app's ChatCore, writing a 503 and returning false if
// chat is not enabled on this instance.
func (s *Server) chatCore(w http.ResponseWriter) (*app.ChatCore, bool) {
	if s.app.ChatCore == nil {
		WriteError(w, http.StatusServiceUnavailable, "chat is not enabled on this instance")
		return nil, false
	}
	return s.app.ChatCore, true
}

// chatSubmitRequest is the body of POST /api/chat.
type chatSubmitRequest struct {
	Role          string              `json:"role"`
	Messages      []models.ChatMessage `json:"messages"`
	RequestID     string              `json:"request_id,omitempty"`
	SessionID     string              `json:"session_id"`
	TeacherID     string              `json:"teacher_id,omitempty"`
	StudentID     string              `json:"student_id,omitempty"`
	AttachmentIDs []string            `json:"attachment_ids,omitempty"`
}

// handleChatSubmit handles POST /api/chat — the sole ingress point for a
// chat turn. It validates the request, resolves idempotency and
// debounce-duplicate short-circuits, enforces the per-lane queue cap, and
// either enqueues a new job or reports the job an earlier equivalent
// request already created.
func (s *Server) handleChatSubmit(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	core, ok := s.chatCore(w)
	if !ok {
		return
	}

	var body chatSubmitRequest
	if !DecodeJSON(w, r, &body) {
		return
	}

	role := models.ChatRole(body.Role)
	if !role.Valid() {
		WriteErrorWithCode(w, http.StatusBadRequest, "role must be \"teacher\" or \"student\"", string(models.ErrKindValidation))
		return
	}
	if len(body.Messages) == 0 {
		WriteErrorWithCode(w, http.StatusBadRequest, "messages must not be empty", string(models.ErrKindValidation))
		return
	}
	if body.SessionID == "" {
		WriteErrorWithCode(w, http.StatusBadRequest, "session_id is required", string(models.ErrKindValidation))
		return
	}

	actorID := body.StudentID
	if role == models.ChatRoleTeacher {
		actorID = body.TeacherID
	}
	if actorID == "" {
		WriteErrorWithCode(w, http.StatusBadRequest, "teacher_id or student_id is required for the given role", string(models.ErrKindValidation))
		return
	}

	if !s.chatLimiters.allow(string(role) + ":" + actorID) {
		w.Header().Set("Retry-After", "1")
		WriteErrorWithCode(w, http.StatusTooManyRequests, "rate limit exceeded, slow down", string(models.ErrKindTransient))
		return
	}

	ctx := r.Context()
	laneID := lanestore.LaneID(string(role), actorID, body.SessionID)

	// An explicit request_id is the strong form of "have we seen this
	// before" — checked first since it is caller-intentional, unlike the
	// fingerprint debounce below which only catches accidental duplicates.
	if body.RequestID != "" {
		if existingJobID, found, err := core.Idempotent.Get(ctx, body.RequestID); err == nil && found {
			s.writeChatSubmitResult(w, r, core, laneID, existingJobID)
			return
		}
	}

	fingerprint := chatIngressFingerprint(laneID, body.Messages)
	if recentJobID, found, err := core.Lanes.RecentJob(ctx, laneID, fingerprint); err == nil && found {
		s.writeChatSubmitResult(w, r, core, laneID, recentJobID)
		return
	}

	load, err := core.Lanes.LaneLoad(ctx, laneID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to inspect lane: "+err.Error())
		return
	}
	if load.QueuedCount >= s.app.Config.Chat.MaxQueue() {
		w.Header().Set("Retry-After", "2")
		WriteErrorWithCode(w, http.StatusTooManyRequests, "lane is saturated, retry later", string(models.ErrKindLaneSaturated))
		return
	}

	now := time.Now().UTC()
	jobID := uuid.New().String()
	job := &models.ChatJob{
		JobID:         jobID,
		Role:          role,
		SessionID:     body.SessionID,
		TeacherID:     body.TeacherID,
		StudentID:     body.StudentID,
		RequestID:     body.RequestID,
		Messages:      body.Messages,
		AttachmentIDs: body.AttachmentIDs,
		CreatedAt:     now,
		UpdatedAt:     now,
		Status:        models.ChatJobQueued,
		LaneID:        laneID,
	}

	if body.RequestID != "" {
		winnerJobID, won, err := core.Idempotent.SetIfAbsent(ctx, body.RequestID, jobID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to record idempotency: "+err.Error())
			return
		}
		if !won {
			s.writeChatSubmitResult(w, r, core, laneID, winnerJobID)
			return
		}
	}

	if _, err := core.Jobs.Create(job); err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to create job: "+err.Error())
		return
	}

	dir := core.Jobs.JobDir(laneID, jobID)
	if _, err := core.Events.Append(dir, jobID, models.EventJobQueued, map[string]interface{}{"lane_id": laneID}); err != nil {
		s.logger.Warn().Str("job_id", jobID).Err(err).Msg("failed to append job.queued event")
	}

	if err := core.Lanes.RegisterRecent(ctx, laneID, fingerprint, jobID, s.app.Config.Chat.LaneDebounce()); err != nil {
		s.logger.Warn().Str("job_id", jobID).Err(err).Msg("failed to register debounce fingerprint")
	}

	result, err := core.Lanes.Enqueue(ctx, laneID, jobID, s.app.Config.Chat.ClaimTTL())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to enqueue job: "+err.Error())
		return
	}
	if result.Dispatch && core.Pool != nil {
		core.Pool.Submit(workerpool.Dispatch{LaneID: laneID, JobID: jobID})
	}

	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":              jobID,
		"lane_id":             laneID,
		"lane_queue_position": result.Position,
		"lane_queue_size":     result.QueueSize,
	})
}

// chatIngressFingerprint derives the debounce key for a submission: the lane
// plus the content of its last message, so two back-to-back identical
// submits on the same lane collapse into one job even without a client-
// supplied request_id.
func chatIngressFingerprint(laneID string, messages []models.ChatMessage) string {
	last := ""
	if len(messages) > 0 {
		last = messages[len(messages)-1].Content
	}
	sum := sha256.Sum256([]byte(laneID + "\x00" + last))
	return hex.EncodeToString(sum[:])
}

// writeChatSubmitResult answers a submit call with an existing job's lane
// position, used by both the idempotency and debounce short-circuits.
func (s *Server) writeChatSubmitResult(w http.ResponseWriter, r *http.Request, core *app.ChatCore, laneID, jobID string) {
	ctx := r.Context()
	position, _ := core.Lanes.FindPosition(ctx, laneID, jobID)
	load, _ := core.Lanes.LaneLoad(ctx, laneID)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":              jobID,
		"lane_id":             laneID,
		"lane_queue_position": position,
		"lane_queue_size":     load.QueuedCount,
	})
}

// chatCallerOwns reports whether the caller is authorized to read or cancel
// job. An admin may act on any job; anyone else must present the matching
// actor_id (the teacher_id or student_id that created the job, taken from
// UserContext when middleware populated one, else the actor_id query
// param) and, if the job recorded one, the matching session_id.
func chatCallerOwns(r *http.Request, job *models.ChatJob) bool {
	if uc := common.UserContextFromContext(r.Context()); uc != nil && uc.Role == models.RoleAdmin {
		return true
	}
	actorID := r.URL.Query().Get("actor_id")
	if uc := common.UserContextFromContext(r.Context()); uc != nil && uc.UserID != "" {
		actorID = uc.UserID
	}
	if actorID == "" || actorID != job.ActorID() {
		return false
	}
	if job.SessionID != "" && r.URL.Query().Get("session_id") != job.SessionID {
		return false
	}
	return true
}

// handleChatStream handles GET /api/chat/stream?job_id=...&last_event_id=...
// — a Server-Sent Events connection that replays events after the given
// cursor, then blocks on new ones until the job reaches a terminal status
// or the client disconnects.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	core, ok := s.chatCore(w)
	if !ok {
		return
	}

	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "job_id is required")
		return
	}
	laneID, job, err := core.Jobs.Find(jobID)
	if err != nil {
		WriteErrorWithCode(w, http.StatusNotFound, "job not found", string(models.ErrKindNotFound))
		return
	}
	if !chatCallerOwns(r, job) {
		WriteErrorWithCode(w, http.StatusForbidden, "not authorized for this job", string(models.ErrKindNotOwner))
		return
	}

	cursor := int64(0)
	if v := r.URL.Query().Get("last_event_id"); v != "" {
		if n, perr := strconv.ParseInt(v, 10, 64); perr == nil {
			cursor = n
		}
	}
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		if n, perr := strconv.ParseInt(v, 10, 64); perr == nil && n > cursor {
			cursor = n
		}
	}

	flusher, canFlush := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("retry: 1000\n\n"))
	if canFlush {
		flusher.Flush()
	}

	dir := core.Jobs.JobDir(laneID, jobID)
	ctx := r.Context()
	var offset int64
	terminal := job.Status.Terminal()

	for {
		events, nextOffset, err := eventlog.LoadIncremental(dir, cursor, offset, eventlog.DefaultReadLimit)
		if err != nil {
			s.logger.Warn().Str("job_id", jobID).Err(err).Msg("chat stream: failed to load events")
			return
		}
		offset = nextOffset
		for _, e := range events {
			frame, err := eventlog.EncodeSSE(e)
			if err != nil {
				continue
			}
			if _, err := w.Write([]byte(frame)); err != nil {
				return // client disconnected
			}
			cursor = e.EventID
			if e.Type.Terminal() {
				terminal = true
			}
		}
		if canFlush {
			flusher.Flush()
		}
		if terminal {
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		// Wait blocks up to its timeout for a new event, returning early if
		// one lands; the bounded timeout guarantees the loop periodically
		// re-checks ctx.Done() even on an otherwise idle job.
		core.Signals.Wait(ctx, jobID, cursor, 20*time.Second)
	}
}

// handleChatEvents handles GET /api/chat/events?job_id=...&after_event_id=...
// — the non-streaming counterpart to the SSE endpoint, for clients that
// poll rather than hold a connection open.
func (s *Server) handleChatEvents(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	core, ok := s.chatCore(w)
	if !ok {
		return
	}

	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "job_id is required")
		return
	}
	laneID, job, err := core.Jobs.Find(jobID)
	if err != nil {
		WriteErrorWithCode(w, http.StatusNotFound, "job not found", string(models.ErrKindNotFound))
		return
	}
	if !chatCallerOwns(r, job) {
		WriteErrorWithCode(w, http.StatusForbidden, "not authorized for this job", string(models.ErrKindNotOwner))
		return
	}

	after := int64(0)
	if v := r.URL.Query().Get("after_event_id"); v != "" {
		if n, perr := strconv.ParseInt(v, 10, 64); perr == nil {
			after = n
		}
	}
	limit := eventlog.DefaultReadLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, perr := strconv.Atoi(v); perr == nil && n > 0 {
			limit = n
		}
	}

	dir := core.Jobs.JobDir(laneID, jobID)
	events, nextOffset, err := eventlog.LoadIncremental(dir, after, 0, limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to load events: "+err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"events":      events,
		"next_offset": nextOffset,
	})
}

// chatCancelRequest is the body of POST /api/chat/cancel.
type chatCancelRequest struct {
	JobID string `json:"job_id"`
}

// handleChatCancel handles POST /api/chat/cancel. If the job is still
// queued, it is transitioned to cancelled and the job.cancelled event is
// appended here. If the job is already processing, the running agent loop
// owns the cancellation — it notices the status flip between rounds and
// appends the event itself, so this handler must not double-append.
func (s *Server) handleChatCancel(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	core, ok := s.chatCore(w)
	if !ok {
		return
	}

	var body chatCancelRequest
	if !DecodeJSON(w, r, &body) {
		return
	}
	if body.JobID == "" {
		WriteError(w, http.StatusBadRequest, "job_id is required")
		return
	}

	laneID, job, err := core.Jobs.Find(body.JobID)
	if err != nil {
		WriteErrorWithCode(w, http.StatusNotFound, "job not found", string(models.ErrKindNotFound))
		return
	}
	if !chatCallerOwns(r, job) {
		WriteErrorWithCode(w, http.StatusForbidden, "not authorized for this job", string(models.ErrKindNotOwner))
		return
	}

	if job.Status.Terminal() {
		WriteJSON(w, http.StatusOK, job)
		return
	}

	wasQueued := job.Status == models.ChatJobQueued
	updated, err := core.Jobs.Transition(laneID, body.JobID, func(j *models.ChatJob) error {
		if !j.Status.Terminal() {
			j.Status = models.ChatJobCancelled
		}
		return nil
	})
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to cancel job: "+err.Error())
		return
	}

	if wasQueued {
		dir := core.Jobs.JobDir(laneID, body.JobID)
		if _, err := core.Events.Append(dir, body.JobID, models.EventJobCancelled, nil); err != nil {
			s.logger.Warn().Str("job_id", body.JobID).Err(err).Msg("failed to append job.cancelled event")
		}
	}

	WriteJSON(w, http.StatusOK, updated)
}

// handleChatJobDetail handles GET /api/chat/jobs/{job_id} — the job's
// current persisted record.
func (s *Server) handleChatJobDetail(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	core, ok := s.chatCore(w)
	if !ok {
		return
	}

	jobID := strings.TrimPrefix(r.URL.Path, "/api/chat/jobs/")
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "job_id is required in path")
		return
	}

	_, job, err := core.Jobs.Find(jobID)
	if err != nil {
		WriteErrorWithCode(w, http.StatusNotFound, "job not found", string(models.ErrKindNotFound))
		return
	}
	if !chatCallerOwns(r, job) {
		WriteErrorWithCode(w, http.StatusForbidden, "not authorized for this job", string(models.ErrKindNotOwner))
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// chatLaneSummaries renders lanestore.LaneSummary values for the admin view.
func chatLaneSummaries(lanes []lanestore.LaneSummary) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(lanes))
	for _, l := range lanes {
		out = append(out, map[string]interface{}{
			"lane_id":      l.LaneID,
			"queued_count": l.Load.QueuedCount,
			"active_count": l.Load.ActiveCount,
			"total":        l.Load.Total,
		})
	}
	return out
}

// handleAdminChatLanes handles GET /api/admin/chat/lanes — a one-shot
// snapshot of every lane's occupancy, for operators without a WebSocket
// client handy.
func (s *Server) handleAdminChatLanes(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	if !s.requireAdmin(w, r) {
		return
	}
	if s.app.ChatCore == nil {
		WriteJSON(w, http.StatusOK, map[string]interface{}{"enabled": false})
		return
	}

	lanes, err := s.app.ChatCore.Lanes.ListLanes(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to list lanes: "+err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"enabled": true, "lanes": chatLaneSummaries(lanes)})
}

// chatLaneUpgrader accepts any origin: origin checking is left to the admin
// gate performed before upgrade, not to this layer.
var chatLaneUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleAdminChatLanesWS handles GET /api/admin/chat/lanes/ws — a
// WebSocket that pushes the lane-depth snapshot on a fixed interval.
// lanestore has no event-driven notification of its own the way the event
// log does, so occupancy is polled every 2 seconds rather than pushed on
// change, until the client disconnects or a write fails.
func (s *Server) handleAdminChatLanesWS(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	userID := r.Header.Get("X-Vire-User-ID")
	if userID == "" {
		WriteError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	user, err := s.app.Storage.InternalStore().GetUser(r.Context(), userID)
	if err != nil || user.Role != models.RoleAdmin {
		WriteError(w, http.StatusForbidden, "Admin access required")
		return
	}
	if s.app.ChatCore == nil {
		WriteError(w, http.StatusServiceUnavailable, "chat is not enabled")
		return
	}

	conn, err := chatLaneUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("chat lanes websocket upgrade failed")
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		lanes, err := s.app.ChatCore.Lanes.ListLanes(r.Context())
		if err == nil {
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if werr := conn.WriteJSON(map[string]interface{}{"lanes": chatLaneSummaries(lanes)}); werr != nil {
				return
			}
		}
		select {
		case <-done:
			return
		case <-ticker.C:
		}
	}
}
