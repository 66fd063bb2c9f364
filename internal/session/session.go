// Package session records one supervisor request as a JSONL event log.
package session

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status constants for sessions.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// Event types for the session log.
const (
	EventRequestStart = "request_start"
	EventPhase        = "phase"       // Supervisor phase completed
	EventAgentStart   = "agent_start" // Agent dispatched
	EventAgentEnd     = "agent_end"   // Agent result received
	EventAlerts       = "alerts"      // Risk alerts raised during the run
	EventRequestEnd   = "request_end"
)

// ErrNotFound is returned by Load for an unknown session ID.
var ErrNotFound = errors.New("session not found")

// Session is the record of one request.
type Session struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	Status    string    `json:"status"`
	ReportID  string    `json:"report_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	Events    []Event   `json:"events"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	seq uint64
	mu  sync.Mutex
}

// Event is a single entry in the session log.
type Event struct {
	SeqID     uint64    `json:"seq"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	Agent   string `json:"agent,omitempty"`
	Phase   string `json:"phase,omitempty"`
	Content string `json:"content,omitempty"`

	// Outcome; nil Success means in progress.
	Success    *bool              `json:"success,omitempty"`
	TimedOut   bool               `json:"timed_out,omitempty"`
	Error      string             `json:"error,omitempty"`
	DurationMs int64              `json:"duration_ms,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
}

// AddEvent appends event with the next sequence number and returns it.
func (s *Session) AddEvent(event Event) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	event.SeqID = s.seq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	s.Events = append(s.Events, event)
	s.UpdatedAt = time.Now()
	return event.SeqID
}

// Phase records a completed supervisor phase.
func (s *Session) Phase(phase, detail string) {
	s.AddEvent(Event{Type: EventPhase, Phase: phase, Content: detail})
}

// AgentStart records an agent dispatch.
func (s *Session) AgentStart(name string) {
	s.AddEvent(Event{Type: EventAgentStart, Agent: name})
}

// AgentEnd records an agent outcome.
func (s *Session) AgentEnd(name string, success, timedOut bool, errMsg string, d time.Duration, metrics map[string]float64) {
	s.AddEvent(Event{
		Type:       EventAgentEnd,
		Agent:      name,
		Success:    &success,
		TimedOut:   timedOut,
		Error:      errMsg,
		DurationMs: d.Milliseconds(),
		Metrics:    metrics,
	})
}

// Finish marks the session complete, or failed when err is non-nil.
func (s *Session) Finish(reportID string, err error) {
	ok := err == nil
	ev := Event{Type: EventRequestEnd, Success: &ok, Content: reportID}

	s.mu.Lock()
	s.ReportID = reportID
	s.Status = StatusComplete
	if err != nil {
		s.Status = StatusFailed
		s.Error = err.Error()
		ev.Error = err.Error()
	}
	s.mu.Unlock()

	s.AddEvent(ev)
}

// EventsOf returns the events of the given type in order.
func (s *Session) EventsOf(typ string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.Events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// JSONL record types
const (
	RecordTypeHeader = "header" // Session metadata (first line)
	RecordTypeEvent  = "event"
	RecordTypeFooter = "footer" // Final state (last line)
)

// jsonlRecord wraps a JSONL line with type discrimination.
type jsonlRecord struct {
	RecordType string `json:"_type"`

	// header
	ID        string    `json:"id,omitempty"`
	Query     string    `json:"query,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`

	*Event `json:",omitempty"`

	// footer
	Status    string    `json:"status,omitempty"`
	ReportID  string    `json:"report_id,omitempty"`
	Err       string    `json:"session_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// FileStore keeps one <id>.jsonl file per session in a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the store directory.
func (fs *FileStore) Dir() string { return fs.dir }

// Create starts a running session for query and persists it.
func (fs *FileStore) Create(query string) (*Session, error) {
	now := time.Now()
	sess := &Session{
		ID:        uuid.NewString(),
		Query:     query,
		Status:    StatusRunning,
		Events:    []Event{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	sess.AddEvent(Event{Type: EventRequestStart, Content: query})
	if err := fs.Save(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Save rewrites the session file. The file is written to a temporary name
// and renamed so readers never see a partial log.
func (fs *FileStore) Save(sess *Session) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	var buf bytes.Buffer
	records := make([]jsonlRecord, 0, len(sess.Events)+2)
	records = append(records, jsonlRecord{
		RecordType: RecordTypeHeader,
		ID:         sess.ID,
		Query:      sess.Query,
		CreatedAt:  sess.CreatedAt,
	})
	for i := range sess.Events {
		evt := sess.Events[i]
		records = append(records, jsonlRecord{RecordType: RecordTypeEvent, Event: &evt})
	}
	records = append(records, jsonlRecord{
		RecordType: RecordTypeFooter,
		Status:     sess.Status,
		ReportID:   sess.ReportID,
		Err:        sess.Error,
		UpdatedAt:  sess.UpdatedAt,
	})
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}

	path := fs.path(sess.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// Load reads a session back.
func (fs *FileStore) Load(id string) (*Session, error) {
	f, err := os.Open(fs.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sess := &Session{Events: []Event{}}
	// bufio.Reader rather than Scanner: no line length limit.
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			if perr := parseLine(line, sess); perr != nil {
				return nil, perr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading JSONL: %w", err)
		}
	}
	if n := len(sess.Events); n > 0 {
		sess.seq = sess.Events[n-1].SeqID
	}
	return sess, nil
}

// List returns stored session IDs, newest file first.
func (fs *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, err
	}
	type item struct {
		id  string
		mod time.Time
	}
	var items []item
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		items = append(items, item{strings.TrimSuffix(name, ".jsonl"), info.ModTime()})
	}
	slices.SortFunc(items, func(a, b item) int { return b.mod.Compare(a.mod) })
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.id
	}
	return ids, nil
}

func (fs *FileStore) path(id string) string {
	return filepath.Join(fs.dir, id+".jsonl")
}

func parseLine(line []byte, sess *Session) error {
	var rec jsonlRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return fmt.Errorf("failed to parse JSONL line: %w", err)
	}
	switch rec.RecordType {
	case RecordTypeHeader:
		sess.ID = rec.ID
		sess.Query = rec.Query
		sess.CreatedAt = rec.CreatedAt
	case RecordTypeEvent:
		if rec.Event != nil {
			sess.Events = append(sess.Events, *rec.Event)
		}
	case RecordTypeFooter:
		sess.Status = rec.Status
		sess.ReportID = rec.ReportID
		sess.Error = rec.Err
		sess.UpdatedAt = rec.UpdatedAt
	}
	return nil
}
