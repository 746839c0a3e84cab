package job

import "context"

// WorkItemSource supplies the work items of a job. It is read by a single
// goroutine.
type WorkItemSource interface {
	// Open prepares the source for reading
	Open(ctx context.Context) error

	// HasNext reports whether another item is available
	HasNext() bool

	// Next returns the next item
	Next() (string, error)

	// TotalCount returns the number of items the source will deliver, or -1
	// when unknown
	TotalCount() int

	// Close releases the source
	Close() error
}

// BatchRefProvider is implemented by sources that carry a reference passed
// to every task as the BATCH_REF variable
type BatchRefProvider interface {
	BatchRef() string
}
