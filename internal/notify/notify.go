// Package notify publishes risk alerts to NATS.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/vinayprograms/agentkit/logging"

	"github.com/vinayprograms/omnisupply/internal/risk"
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "omnisupply.alerts"

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// Publisher sends each alert as JSON to <prefix>.<severity>, with the
// severity lowercased (omnisupply.alerts.critical).
type Publisher struct {
	conn   Conn
	prefix string
	logger *logging.Logger
}

// Connect dials url and returns a publisher on the connection.
func Connect(url, prefix string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("omnisupply"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return New(nc, prefix), nil
}

// New wraps an established connection.
func New(conn Conn, prefix string) *Publisher {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Publisher{
		conn:   conn,
		prefix: prefix,
		logger: logging.New().WithComponent("notify"),
	}
}

// Subject returns the subject an alert of severity sev is published on.
func (p *Publisher) Subject(sev risk.Severity) string {
	return p.prefix + "." + strings.ToLower(string(sev))
}

// Publish sends alerts and flushes the connection. Every alert is attempted;
// the returned error joins the individual failures.
func (p *Publisher) Publish(ctx context.Context, alerts []risk.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	var errs []error
	sent := 0
	for _, a := range alerts {
		data, err := json.Marshal(a)
		if err != nil {
			errs = append(errs, fmt.Errorf("alert %s: %w", a.ID, err))
			continue
		}
		if err := p.conn.Publish(p.Subject(a.Severity), data); err != nil {
			errs = append(errs, fmt.Errorf("alert %s: %w", a.ID, err))
			continue
		}
		sent++
	}
	if sent > 0 {
		if err := p.conn.FlushWithContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		p.logger.Warn("publish_failed", map[string]interface{}{
			"sent":  sent,
			"total": len(alerts),
			"error": err.Error(),
		})
		return err
	}
	p.logger.Info("alerts_published", map[string]interface{}{
		"count":  sent,
		"prefix": p.prefix,
	})
	return nil
}

// Close closes the underlying connection.
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
