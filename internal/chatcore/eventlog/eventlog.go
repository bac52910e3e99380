// Package eventlog implements the append-only, monotonically-IDed event
// log each chat job writes to, plus its offset-hint-based incremental
// reader. Grounded on the owning repository's chat_event_stream_service.py
// (append_chat_event, load_chat_events_incremental, encode_sse_event).
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bobmcallan/vire-chat/internal/chatcore/fsatomic"
	"github.com/bobmcallan/vire-chat/internal/chatcore/signalregistry"
	"github.com/bobmcallan/vire-chat/internal/models"
)

// DefaultReadLimit caps a single incremental read; callers may request less
// but never more.
const DefaultReadLimit = 200

// maxReadLimit is the hard ceiling regardless of what a caller requests.
const maxReadLimit = 1000

// Paths returns the conventional events.jsonl / events.seq file paths for a
// job directory.
func Paths(jobDir string) (eventsPath, seqPath string) {
	return jobDir + "/events.jsonl", jobDir + "/events.seq"
}

// Log appends and reads one job's event stream. A Log is safe for
// concurrent use: each job's appends are serialized by a dedicated entry in
// a process-wide mutex map keyed by job ID, so concurrent jobs on
// different lanes never contend with one another.
type Log struct {
	mapMu   sync.Mutex
	perJob  map[string]*sync.Mutex
	signals *signalregistry.Registry
}

// New constructs a Log that notifies the given signal registry on every
// append and clears a job's signal entry on terminal events.
func New(signals *signalregistry.Registry) *Log {
	return &Log{perJob: make(map[string]*sync.Mutex), signals: signals}
}

func (l *Log) mutexFor(jobID string) *sync.Mutex {
	l.mapMu.Lock()
	defer l.mapMu.Unlock()
	m, ok := l.perJob[jobID]
	if !ok {
		m = &sync.Mutex{}
		l.perJob[jobID] = m
	}
	return m
}

// Append writes the next event for jobDir/jobID, notifies waiters, and
// clears the job's signal on terminal event types.
func (l *Log) Append(jobDir, jobID string, eventType models.ChatEventType, payload map[string]interface{}) (models.ChatEvent, error) {
	mu := l.mutexFor(jobID)
	mu.Lock()
	defer mu.Unlock()

	eventsPath, seqPath := Paths(jobDir)
	current, err := currentEventID(eventsPath, seqPath)
	if err != nil {
		return models.ChatEvent{}, fmt.Errorf("eventlog: read current id: %w", err)
	}
	event := models.ChatEvent{
		EventID:      current + 1,
		EventVersion: models.ChatEventVersion,
		Type:         eventType,
		Payload:      payload,
		Ts:           time.Now().UTC(),
	}
	if err := fsatomic.AppendLine(eventsPath, event); err != nil {
		return models.ChatEvent{}, fmt.Errorf("eventlog: append: %w", err)
	}
	// Best-effort: a failure here is recoverable by the next reader's
	// full-scan fallback, so its error is ignored rather than returned.
	_ = os.WriteFile(seqPath, []byte(strconv.FormatInt(event.EventID, 10)), 0o644)

	if l.signals != nil {
		l.signals.Notify(jobID)
		if eventType.Terminal() {
			l.signals.Clear(jobID)
		}
	}
	return event, nil
}

// currentEventID prefers the seq file; on any problem reading or parsing it,
// falls back to a full scan of the event log.
func currentEventID(eventsPath, seqPath string) (int64, error) {
	if data, err := os.ReadFile(seqPath); err == nil {
		if v, perr := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64); perr == nil {
			return v, nil
		}
	}
	return scanMaxEventID(eventsPath)
}

func scanMaxEventID(eventsPath string) (int64, error) {
	f, err := os.Open(eventsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()

	var max int64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e models.ChatEvent
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue // tolerate malformed lines
		}
		if e.EventID > max {
			max = e.EventID
		}
	}
	return max, nil
}

// Load returns all events with event_id > afterEventID, up to limit (capped
// at maxReadLimit), scanning from the start of the file every time. Used by
// the non-streaming /chat/events endpoint.
func Load(jobDir string, afterEventID int64, limit int) ([]models.ChatEvent, error) {
	events, _, err := LoadIncremental(jobDir, afterEventID, 0, limit)
	return events, err
}

// LoadIncremental reads events after afterEventID starting at offsetHint
// when it is valid (non-negative and within the current file size),
// otherwise from the start of the file. It returns the events collected and
// the byte offset a subsequent call should resume from.
func LoadIncremental(jobDir string, afterEventID, offsetHint int64, limit int) ([]models.ChatEvent, int64, error) {
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	if limit > maxReadLimit {
		limit = maxReadLimit
	}
	eventsPath, _ := Paths(jobDir)

	f, err := os.Open(eventsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("eventlog: open %s: %w", eventsPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("eventlog: stat %s: %w", eventsPath, err)
	}
	size := info.Size()

	start := int64(0)
	if offsetHint > 0 && offsetHint <= size {
		start = offsetHint
	}
	if start > 0 {
		if _, err := f.Seek(start, io.SeekStart); err != nil {
			return nil, 0, fmt.Errorf("eventlog: seek %s: %w", eventsPath, err)
		}
	}

	reader := bufio.NewReader(f)
	events := make([]models.ChatEvent, 0, limit)
	offset := start
	for len(events) < limit {
		line, err := reader.ReadString('\n')
		offset += int64(len(line))
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			var e models.ChatEvent
			if jerr := json.Unmarshal([]byte(trimmed), &e); jerr == nil {
				if e.EventID > afterEventID {
					events = append(events, e)
				}
			}
			// malformed lines are skipped; offset has already advanced
			// past them so the next call will not re-read them.
		}
		if err != nil {
			break // EOF or read error: stop, return what we have
		}
	}
	return events, offset, nil
}

// EncodeSSE renders an event as the three-line SSE frame the stream
// endpoint writes to the response body.
func EncodeSSE(e models.ChatEvent) (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("eventlog: marshal sse payload: %w", err)
	}
	return fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", e.EventID, e.Type, data), nil
}
