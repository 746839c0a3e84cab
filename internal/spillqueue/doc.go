// Package spillqueue provides a FIFO queue that keeps a bounded number of
// elements in memory and spills the rest to a temporary file on disk.
//
// The queue is tuned for being filled once and then drained once, by a single
// goroutine. Interleaving offers and polls works and keeps FIFO order, but once
// anything has spilled every new offer goes to disk until the file is drained.
package spillqueue
