// Package task executes batches of work items against a remote endpoint.
// It provides the Task contract, the ProcessTask retry state machine, the
// failure log, and a pausable, resizable WorkerPool that applies
// backpressure to submitters and reports a typed Outcome for every task.
package task
