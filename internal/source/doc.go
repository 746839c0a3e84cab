// Package source provides the work item sources a job reads from. Each
// source buffers its items in a spill queue on Open so the total count is
// known before dispatch starts and memory stays bounded however many items
// there are.
package source
