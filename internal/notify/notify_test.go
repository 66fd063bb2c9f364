package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vinayprograms/omnisupply/internal/risk"
)

type message struct {
	subject string
	data    []byte
}

type fakeConn struct {
	sent     []message
	failOn   string
	flushErr error
	flushes  int
	closed   bool
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.failOn != "" && strings.HasSuffix(subject, f.failOn) {
		return errors.New("nats: connection closed")
	}
	f.sent = append(f.sent, message{subject, data})
	return nil
}

func (f *fakeConn) FlushWithContext(ctx context.Context) error {
	f.flushes++
	return f.flushErr
}

func (f *fakeConn) Close() { f.closed = true }

func alerts() []risk.Alert {
	return []risk.Alert{
		{ID: "a1", Severity: risk.SeverityCritical, Category: "overall", Title: "Critical overall risk", RiskScore: 0.85},
		{ID: "a2", Severity: risk.SeverityHigh, Category: "delivery", Title: "Carrier Maersk", AffectedEntities: []string{"Maersk"}},
	}
}

func TestPublish_SubjectsAndPayload(t *testing.T) {
	conn := &fakeConn{}
	p := New(conn, "supply.alerts.")

	if err := p.Publish(context.Background(), alerts()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(conn.sent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(conn.sent))
	}
	if conn.sent[0].subject != "supply.alerts.critical" || conn.sent[1].subject != "supply.alerts.high" {
		t.Errorf("subjects = %q, %q", conn.sent[0].subject, conn.sent[1].subject)
	}
	var got risk.Alert
	if err := json.Unmarshal(conn.sent[1].data, &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got.ID != "a2" || got.AffectedEntities[0] != "Maersk" {
		t.Errorf("payload = %+v", got)
	}
	if conn.flushes != 1 {
		t.Errorf("expected one flush, got %d", conn.flushes)
	}
}

func TestPublish_DefaultPrefix(t *testing.T) {
	p := New(&fakeConn{}, "")
	if got := p.Subject(risk.SeverityWarning); got != "omnisupply.alerts.warning" {
		t.Errorf("subject = %q", got)
	}
}

func TestPublish_PartialFailure(t *testing.T) {
	conn := &fakeConn{failOn: ".critical"}
	p := New(conn, DefaultPrefix)

	err := p.Publish(context.Background(), alerts())
	if err == nil || !strings.Contains(err.Error(), "alert a1") {
		t.Fatalf("expected error naming a1, got %v", err)
	}
	if len(conn.sent) != 1 || conn.sent[0].subject != "omnisupply.alerts.high" {
		t.Errorf("remaining alerts must still be sent, got %+v", conn.sent)
	}
}

func TestPublish_FlushError(t *testing.T) {
	conn := &fakeConn{flushErr: context.DeadlineExceeded}
	err := New(conn, "").Publish(context.Background(), alerts())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected flush error, got %v", err)
	}
}

func TestPublish_NothingToSend(t *testing.T) {
	conn := &fakeConn{}
	if err := New(conn, "").Publish(context.Background(), nil); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if conn.flushes != 0 {
		t.Error("no flush expected without alerts")
	}
}

func TestClose(t *testing.T) {
	conn := &fakeConn{}
	New(conn, "").Close()
	if !conn.closed {
		t.Error("connection not closed")
	}
}

func TestConnect_Unreachable(t *testing.T) {
	start := time.Now()
	if _, err := Connect("nats://127.0.0.1:1", ""); err == nil {
		t.Fatal("expected connection error")
	}
	if time.Since(start) > 10*time.Second {
		t.Error("connect should fail fast on a refused port")
	}
}
