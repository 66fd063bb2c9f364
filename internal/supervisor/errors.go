package supervisor

import (
	"fmt"
)

// Kind classifies a request-level failure.
type Kind string

const (
	KindInvalidQuery Kind = "invalid_query"
	KindPlanning     Kind = "planning"
	KindSelection    Kind = "selection"
)

// Failure is a hard failure of a whole request. Agent failures never produce
// one; they are reported per agent in Report.Results.
type Failure struct {
	Kind Kind
	Err  error
	// Capabilities lists the registered agents for selection failures.
	Capabilities map[string][]string
}

func (f *Failure) Error() string {
	switch f.Kind {
	case KindPlanning:
		return fmt.Sprintf("planning failed: %v", f.Err)
	case KindSelection:
		return fmt.Sprintf("agent selection failed: %v", f.Err)
	default:
		return fmt.Sprintf("invalid query: %v", f.Err)
	}
}

func (f *Failure) Unwrap() error { return f.Err }
