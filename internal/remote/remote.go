// Package remote defines the contracts between the batch engine and the
// remote endpoint that processes each batch: a shared session pool, the
// request built for a batch, the result sequence it returns, and the typed
// error the endpoint reports on failure.
package remote

import (
	"context"
	"time"
)

// Request variable names bound by the engine
const (
	// VariableURI carries the batch joined with the batch delimiter
	VariableURI = "URI"

	// VariableDoc carries the batch as a structured per-item value
	VariableDoc = "DOC"

	// VariableBatchRef carries the reference reported by the work item source
	VariableBatchRef = "BATCH_REF"
)

// BindMode selects how batch items are bound to a request
type BindMode string

const (
	// BindString joins the items into one string variable named URI
	BindString BindMode = "string"

	// BindStructured binds the items as a list variable named DOC
	BindStructured BindMode = "structured"
)

// Request describes one remote invocation
type Request struct {
	// Statement is the query or module the endpoint executes
	Statement string

	// Language selects the query language; empty means the endpoint default
	Language string

	// TimeZone, when set, is applied to the session before execution
	TimeZone *time.Location

	// Variables holds named string (string) and document ([]string) values
	Variables map[string]any
}

// NewRequest creates a request for the given statement
func NewRequest(statement string) *Request {
	return &Request{
		Statement: statement,
		Variables: make(map[string]any),
	}
}

// SetString binds a named string variable
func (r *Request) SetString(name, value string) {
	r.Variables[name] = value
}

// SetDocument binds a named structured variable holding one value per item
func (r *Request) SetDocument(name string, values []string) {
	r.Variables[name] = append([]string(nil), values...)
}

// Result is the sequence of values returned by a successful submission.
// Callers must Close it.
type Result interface {
	// Next advances to the next value, returning false when exhausted
	Next() bool

	// Values returns the current row of values
	Values() ([]any, error)

	// Err returns the error, if any, encountered during iteration
	Err() error

	// Close releases the result
	Close() error
}

// Session is a handle checked out from a SessionPool. It is owned by a
// single caller until closed.
type Session interface {
	// Submit executes the request and returns its result sequence
	Submit(ctx context.Context, req *Request) (Result, error)

	// Close returns the session to its pool
	Close() error
}

// SessionPool hands out sessions to a shared remote endpoint. The pool's
// lifecycle belongs to whoever created it.
type SessionPool interface {
	Get(ctx context.Context) (Session, error)
}
