package task

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/phrazzld/batchrun/internal/remote"
)

// Retry defaults
const (
	DefaultRetryLimit    = 2
	DefaultRetryInterval = 20 * time.Second
)

// RetryPolicy controls how failed attempts are classified and retried
type RetryPolicy struct {
	// Limit is the number of retries after the initial attempt
	Limit int

	// Interval is the fixed pause between attempts
	Interval time.Duration

	// ErrorCodes lists query error codes that are always retried
	ErrorCodes []string

	// ErrorMessages lists message fragments that make a failure retryable
	ErrorMessages []string
}

// DefaultRetryPolicy returns a RetryPolicy with the standard limit and interval
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Limit:    DefaultRetryLimit,
		Interval: DefaultRetryInterval,
	}
}

// Classify decides how a failed attempt is handled. Connection failures are
// fatal; remote failures are retryable when the endpoint flags them, when a
// permission failure advises a retry, when a query error code is allow-listed,
// or when the message contains an allow-listed fragment. Everything else is
// non-retryable.
func Classify(err error, policy RetryPolicy) ErrorClass {
	remoteErr, ok := remote.AsError(err)
	if !ok {
		return ClassNonRetryable
	}

	switch {
	case remoteErr.Kind == remote.KindConnection:
		return ClassFatalConnection
	case remoteErr.Retryable:
		return ClassRetryable
	case remoteErr.Kind == remote.KindPermission && remoteErr.RetryAdvised:
		return ClassRetryable
	case remoteErr.Kind == remote.KindQuery && remoteErr.Code != "" &&
		slices.Contains(policy.ErrorCodes, remoteErr.Code):
		return ClassRetryable
	}

	message := remoteErr.Error()
	for _, fragment := range policy.ErrorMessages {
		if fragment != "" && strings.Contains(message, fragment) {
			return ClassRetryable
		}
	}
	return ClassNonRetryable
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
