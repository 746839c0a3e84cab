// Package job runs one batch job end to end. It opens the work item source,
// dispatches batches to a task.WorkerPool, aggregates their outcomes,
// applies operator commands from a control file, and reports a JobResult.
package job
