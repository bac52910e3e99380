package models

import "time"

// ChatRole identifies which side of the teacher/student relationship issued
// a chat request.
type ChatRole string

const (
	ChatRoleTeacher ChatRole = "teacher"
	ChatRoleStudent ChatRole = "student"
)

// Valid reports whether r is one of the closed set of roles.
func (r ChatRole) Valid() bool {
	return r == ChatRoleTeacher || r == ChatRoleStudent
}

// ChatJobStatus is the closed set of lifecycle states a chat job passes
// through: queued -> processing -> {done, failed, cancelled}. A queued job
// can also be cancelled directly, and crash recovery puts a processing job
// with no claim.lock back to queued.
type ChatJobStatus string

const (
	ChatJobQueued     ChatJobStatus = "queued"
	ChatJobProcessing ChatJobStatus = "processing"
	ChatJobDone       ChatJobStatus = "done"
	ChatJobFailed     ChatJobStatus = "failed"
	ChatJobCancelled  ChatJobStatus = "cancelled"
)

// Terminal reports whether the status is one no further transition follows.
func (s ChatJobStatus) Terminal() bool {
	return s == ChatJobDone || s == ChatJobFailed || s == ChatJobCancelled
}

// ChatMessage is one turn in a chat job's running transcript. Role is
// "system", "user", "assistant", or "tool"; ToolCalls/ToolCallID are only
// populated on assistant/tool turns respectively.
type ChatMessage struct {
	Role       string          `json:"role"`
	Content    string          `json:"content,omitempty"`
	ToolCalls  []ChatToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Name       string          `json:"name,omitempty"`
}

// ChatToolCall is a single LLM-requested tool invocation.
type ChatToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ChatError carries the closed error_kind taxonomy (ERROR HANDLING DESIGN)
// alongside a human-readable, non-sensitive message.
type ChatError struct {
	Kind    ChatErrorKind `json:"error_kind"`
	Message string        `json:"message"`
}

func (e *ChatError) Error() string {
	if e == nil {
		return ""
	}
	return string(e.Kind) + ": " + e.Message
}

// ChatErrorKind is the closed set of error kinds the chat core defines.
type ChatErrorKind string

const (
	ErrKindValidation           ChatErrorKind = "validation"
	ErrKindLaneSaturated        ChatErrorKind = "lane_saturated"
	ErrKindNotOwner             ChatErrorKind = "not_owner"
	ErrKindNotFound             ChatErrorKind = "not_found"
	ErrKindToolInvalidArguments ChatErrorKind = "tool_invalid_arguments"
	ErrKindToolBudgetExceeded   ChatErrorKind = "tool_budget_exceeded"
	ErrKindGatewayFailure       ChatErrorKind = "gateway_failure"
	ErrKindTransient            ChatErrorKind = "transient"
	ErrKindInternal             ChatErrorKind = "internal"
)

// ChatJob is the persistent record for a single chat request, serialized as
// job.json inside the job's directory.
type ChatJob struct {
	JobID         string         `json:"job_id"`
	Role          ChatRole       `json:"role"`
	SessionID     string         `json:"session_id"`
	TeacherID     string         `json:"teacher_id,omitempty"`
	StudentID     string         `json:"student_id,omitempty"`
	RequestID     string         `json:"request_id"`
	Messages      []ChatMessage  `json:"messages"`
	AttachmentIDs []string       `json:"attachment_ids,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Status        ChatJobStatus  `json:"status"`
	LaneID        string         `json:"lane_id"`
	Reply         *ChatMessage   `json:"reply,omitempty"`
	Error         *ChatError     `json:"error,omitempty"`
}

// ActorID returns the teacher or student ID driving this job, matching
// whichever is set for the job's role.
func (j *ChatJob) ActorID() string {
	if j.Role == ChatRoleTeacher {
		return j.TeacherID
	}
	return j.StudentID
}

// ChatEventType is the closed set of event types the core emits.
type ChatEventType string

const (
	EventJobQueued      ChatEventType = "job.queued"
	EventJobProcessing  ChatEventType = "job.processing"
	EventToolStart      ChatEventType = "tool.start"
	EventToolResult     ChatEventType = "tool.result"
	EventAssistantDelta ChatEventType = "assistant.delta"
	EventAssistantDone  ChatEventType = "assistant.done"
	EventJobDone        ChatEventType = "job.done"
	EventJobFailed      ChatEventType = "job.failed"
	EventJobCancelled   ChatEventType = "job.cancelled"
)

// Terminal reports whether this event type ends a job's event stream.
func (t ChatEventType) Terminal() bool {
	return t == EventJobDone || t == EventJobFailed || t == EventJobCancelled
}

// ChatEventVersion is the wire version stamped on every event.
const ChatEventVersion = 1

// ChatEvent is one line of a job's events.jsonl. EventID is strictly
// increasing per job, starting at 1.
type ChatEvent struct {
	EventID      int64                  `json:"event_id"`
	EventVersion int                    `json:"event_version"`
	Type         ChatEventType          `json:"type"`
	Payload      map[string]interface{} `json:"payload"`
	Ts           time.Time              `json:"ts"`
}
