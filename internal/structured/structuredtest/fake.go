// Package structuredtest provides an in-memory structured.Caller for tests.
package structuredtest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/vinayprograms/omnisupply/internal/structured"
)

// Caller answers structured calls from canned JSON keyed by schema name.
// Replies are validated against the schema just like a live caller.
type Caller struct {
	mu        sync.Mutex
	responses map[string][]string
	errs      map[string]error
	calls     []Call
}

// Call is one recorded invocation.
type Call struct {
	Schema string
	Prompt string
}

// New creates an empty fake.
func New() *Caller {
	return &Caller{
		responses: make(map[string][]string),
		errs:      make(map[string]error),
	}
}

// Respond queues a JSON reply for schema. The last queued reply is reused once
// the queue is drained.
func (c *Caller) Respond(schema, raw string) *Caller {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses[schema] = append(c.responses[schema], raw)
	return c
}

// Fail makes every call for schema fail with a transport error wrapping err.
func (c *Caller) Fail(schema string, err error) *Caller {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs[schema] = err
	return c
}

// Calls returns the recorded invocations in order.
func (c *Caller) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// CallsFor counts invocations for schema.
func (c *Caller) CallsFor(schema string) int {
	n := 0
	for _, call := range c.Calls() {
		if call.Schema == schema {
			n++
		}
	}
	return n
}

// Call implements structured.Caller.
func (c *Caller) Call(ctx context.Context, prompt string, schema *structured.Schema, out any) error {
	c.mu.Lock()
	c.calls = append(c.calls, Call{Schema: schema.Name, Prompt: prompt})
	err := c.errs[schema.Name]
	var raw string
	queue := c.responses[schema.Name]
	if len(queue) > 0 {
		raw = queue[0]
		if len(queue) > 1 {
			c.responses[schema.Name] = queue[1:]
		}
	}
	c.mu.Unlock()

	if ctx.Err() != nil {
		return &structured.CallError{Kind: structured.KindCanceled, Schema: schema.Name, Err: ctx.Err()}
	}
	if err != nil {
		return &structured.CallError{Kind: structured.KindTransport, Schema: schema.Name, Err: err}
	}
	if raw == "" {
		return &structured.CallError{Kind: structured.KindTransport, Schema: schema.Name, Err: errors.New("no canned response")}
	}
	if err := schema.ValidateJSON([]byte(raw)); err != nil {
		return &structured.CallError{Kind: structured.KindSchema, Schema: schema.Name, Err: err}
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return &structured.CallError{Kind: structured.KindDecode, Schema: schema.Name, Err: err}
	}
	return nil
}
