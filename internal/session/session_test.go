package session

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func newStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "sessions"))
	if err != nil {
		t.Fatalf("create store error: %v", err)
	}
	return store
}

func TestFileStore_Create(t *testing.T) {
	store := newStore(t)

	sess, err := store.Create("What is our supplier risk?")
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	if sess.ID == "" {
		t.Error("session ID should not be empty")
	}
	if sess.Status != StatusRunning {
		t.Errorf("expected status running, got %s", sess.Status)
	}
	if len(sess.Events) != 1 || sess.Events[0].Type != EventRequestStart {
		t.Errorf("expected a request_start event, got %+v", sess.Events)
	}
	if _, err := os.Stat(filepath.Join(store.Dir(), sess.ID+".jsonl")); err != nil {
		t.Errorf("session file not written: %v", err)
	}
}

func TestFileStore_UniqueIDs(t *testing.T) {
	store := newStore(t)
	ids := make(map[string]bool)
	for i := 0; i < 50; i++ {
		sess, err := store.Create("q")
		if err != nil {
			t.Fatalf("create error: %v", err)
		}
		if ids[sess.ID] {
			t.Errorf("duplicate session ID: %s", sess.ID)
		}
		ids[sess.ID] = true
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	store := newStore(t)
	sess, _ := store.Create("Full review")

	sess.Phase("plan", "3 steps")
	sess.AgentStart("risk_agent")
	sess.AgentEnd("risk_agent", true, false, "", 1500*time.Millisecond, map[string]float64{"overall_risk_score": 0.46})
	sess.AgentEnd("data_analyst", false, true, "timed out after 2m0s", 2*time.Minute, nil)
	sess.Finish("report-1", nil)
	if err := store.Save(sess); err != nil {
		t.Fatalf("save error: %v", err)
	}

	loaded, err := store.Load(sess.ID)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if loaded.Query != "Full review" || loaded.Status != StatusComplete || loaded.ReportID != "report-1" {
		t.Errorf("unexpected session header/footer: %+v", loaded)
	}
	if len(loaded.Events) != 6 {
		t.Fatalf("expected 6 events, got %d", len(loaded.Events))
	}

	ends := loaded.EventsOf(EventAgentEnd)
	if len(ends) != 2 {
		t.Fatalf("expected 2 agent_end events, got %d", len(ends))
	}
	if ends[0].Success == nil || !*ends[0].Success || ends[0].DurationMs != 1500 {
		t.Errorf("unexpected first agent_end: %+v", ends[0])
	}
	if ends[0].Metrics["overall_risk_score"] != 0.46 {
		t.Errorf("metrics lost: %v", ends[0].Metrics)
	}
	if *ends[1].Success || !ends[1].TimedOut || ends[1].Error == "" {
		t.Errorf("unexpected second agent_end: %+v", ends[1])
	}

	for i, e := range loaded.Events {
		if e.SeqID != uint64(i+1) {
			t.Errorf("event %d has seq %d", i, e.SeqID)
		}
	}
	if next := loaded.AddEvent(Event{Type: EventPhase}); next != 7 {
		t.Errorf("sequence should continue after load, got %d", next)
	}
}

func TestSession_FinishWithError(t *testing.T) {
	store := newStore(t)
	sess, _ := store.Create("q")
	sess.Finish("", errors.New("planning failed: model unavailable"))
	if err := store.Save(sess); err != nil {
		t.Fatalf("save error: %v", err)
	}

	loaded, err := store.Load(sess.ID)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if loaded.Status != StatusFailed || !strings.Contains(loaded.Error, "planning failed") {
		t.Errorf("expected failed session, got status=%s error=%q", loaded.Status, loaded.Error)
	}
	end := loaded.EventsOf(EventRequestEnd)
	if len(end) != 1 || *end[0].Success {
		t.Errorf("unexpected request_end: %+v", end)
	}
}

func TestSession_ConcurrentEvents(t *testing.T) {
	sess := &Session{}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess.AgentStart("agent")
		}()
	}
	wg.Wait()

	seen := make(map[uint64]bool)
	for _, e := range sess.Events {
		if seen[e.SeqID] {
			t.Errorf("duplicate seq %d", e.SeqID)
		}
		seen[e.SeqID] = true
	}
	if len(seen) != 20 {
		t.Errorf("expected 20 events, got %d", len(seen))
	}
}

func TestFileStore_LoadNotFound(t *testing.T) {
	store := newStore(t)
	if _, err := store.Load("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFileStore_NoTempFilesLeft(t *testing.T) {
	store := newStore(t)
	sess, _ := store.Create("q")
	sess.Phase("plan", "ok")
	if err := store.Save(sess); err != nil {
		t.Fatalf("save error: %v", err)
	}

	entries, _ := os.ReadDir(store.Dir())
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temporary file left behind: %s", e.Name())
		}
	}
}

func TestFileStore_LargeLine(t *testing.T) {
	store := newStore(t)
	sess, _ := store.Create("q")
	big := strings.Repeat("x", 200*1024)
	sess.AddEvent(Event{Type: EventPhase, Content: big})
	if err := store.Save(sess); err != nil {
		t.Fatalf("save error: %v", err)
	}

	loaded, err := store.Load(sess.ID)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if got := loaded.Events[len(loaded.Events)-1].Content; len(got) != len(big) {
		t.Errorf("content truncated to %d bytes", len(got))
	}
}

func TestFileStore_List(t *testing.T) {
	store := newStore(t)
	first, _ := store.Create("first")
	second, _ := store.Create("second")
	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(filepath.Join(store.Dir(), second.ID+".jsonl"), later, later); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if err := os.WriteFile(filepath.Join(store.Dir(), "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	ids, err := store.List()
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if len(ids) != 2 || ids[0] != second.ID || ids[1] != first.ID {
		t.Errorf("expected [%s %s], got %v", second.ID, first.ID, ids)
	}
}
