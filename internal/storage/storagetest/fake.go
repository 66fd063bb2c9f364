// Package storagetest provides an in-memory storage.Executor for tests.
package storagetest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/vinayprograms/omnisupply/internal/storage"
)

// Executor answers queries by substring match, first rule wins.
type Executor struct {
	mu      sync.Mutex
	rules   []rule
	queries []string
	Counts  map[string]int
}

type rule struct {
	match string
	table *storage.Table
	err   error
	delay time.Duration
}

// New creates a fake with no rules. Unmatched queries return an empty table.
func New() *Executor {
	return &Executor{}
}

// On returns table for queries containing match.
func (e *Executor) On(match string, table *storage.Table) *Executor {
	return e.add(rule{match: match, table: table})
}

// Fail returns err for queries containing match.
func (e *Executor) Fail(match string, err error) *Executor {
	return e.add(rule{match: match, err: err})
}

// Slow delays queries containing match by d unless the context ends first.
func (e *Executor) Slow(match string, d time.Duration, table *storage.Table) *Executor {
	return e.add(rule{match: match, table: table, delay: d})
}

func (e *Executor) add(r rule) *Executor {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, r)
	return e
}

// Queries returns every query received, in order.
func (e *Executor) Queries() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.queries...)
}

// Query implements storage.Executor.
func (e *Executor) Query(ctx context.Context, query string) (*storage.Table, error) {
	if err := storage.CheckReadOnly(query); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.queries = append(e.queries, query)
	var matched *rule
	for i := range e.rules {
		if strings.Contains(query, e.rules[i].match) {
			matched = &e.rules[i]
			break
		}
	}
	e.mu.Unlock()

	if matched == nil {
		return &storage.Table{}, nil
	}
	if matched.delay > 0 {
		select {
		case <-time.After(matched.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if matched.err != nil {
		return nil, matched.err
	}
	return matched.table, nil
}

// TableCounts implements storage.Executor.
func (e *Executor) TableCounts(ctx context.Context) (map[string]int, error) {
	if e.Counts == nil {
		return nil, errors.New("no counts configured")
	}
	return e.Counts, nil
}

// Table builds a table from column names and rows.
func Table(columns []string, rows ...[]any) *storage.Table {
	return &storage.Table{Columns: columns, Rows: rows}
}
