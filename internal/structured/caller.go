// Package structured asks a language model for JSON that conforms to a schema
// and decodes it into Go values.
package structured

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failed structured call.
type Kind string

const (
	KindTransport Kind = "transport" // provider unreachable or returned an error
	KindExtract   Kind = "extract"   // no JSON object in the response
	KindSchema    Kind = "schema"    // JSON did not validate
	KindDecode    Kind = "decode"    // JSON valid but not decodable into the target
	KindCanceled  Kind = "canceled"  // context canceled or deadline exceeded
)

// CallError is returned by every Caller failure.
type CallError struct {
	Kind   Kind
	Schema string
	Err    error
}

func (e *CallError) Error() string {
	if e.Schema == "" {
		return fmt.Sprintf("structured call (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("structured call %s (%s): %v", e.Schema, e.Kind, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// KindOf returns the failure kind of err, or "" when err is not a CallError.
func KindOf(err error) Kind {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// Caller produces a value conforming to schema from a prompt.
// On success out holds the decoded value; on failure the error is a *CallError.
type Caller interface {
	Call(ctx context.Context, prompt string, schema *Schema, out any) error
}

// Decode is the typed form of Caller.Call.
func Decode[T any](ctx context.Context, c Caller, prompt string, schema *Schema) (T, error) {
	var v T
	if err := c.Call(ctx, prompt, schema, &v); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}
