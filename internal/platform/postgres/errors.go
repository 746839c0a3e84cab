package postgres

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/batchrun/internal/remote"
)

// PostgreSQL error codes
const (
	// serializationFailureCode is raised when a serializable transaction conflicts
	serializationFailureCode = "40001"

	// deadlockDetectedCode is raised when the statement was chosen as a deadlock victim
	deadlockDetectedCode = "40P01"

	// lockNotAvailableCode is raised by NOWAIT locks and lock timeouts
	lockNotAvailableCode = "55P03"

	// tooManyConnectionsCode is raised when the server is out of connection slots
	tooManyConnectionsCode = "53300"

	// insufficientPrivilegeCode is the PostgreSQL error code for permission failures
	insufficientPrivilegeCode = "42501"

	adminShutdownCode    = "57P01"
	crashShutdownCode    = "57P02"
	cannotConnectNowCode = "57P03"
)

// PostgreSQL error classes, the first two characters of a code
const (
	connectionExceptionClass  = "08"
	operatorInterventionClass = "57"
	systemErrorClass          = "58"
)

// MapError converts a database error into a *remote.Error so the retry
// logic can classify it. Errors that already are remote errors pass through
// unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := remote.AsError(err); ok {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgError(pgErr, err)
	}

	if isConnectionFailure(err) {
		return &remote.Error{Kind: remote.KindConnection, Err: err}
	}
	return &remote.Error{Kind: remote.KindRequest, Err: err}
}

func mapPgError(pgErr *pgconn.PgError, err error) *remote.Error {
	remoteErr := &remote.Error{
		Kind:    remote.KindQuery,
		Code:    pgErr.Code,
		Message: pgErr.Message,
		Err:     err,
	}

	switch {
	case pgErr.Code == serializationFailureCode,
		pgErr.Code == deadlockDetectedCode,
		pgErr.Code == lockNotAvailableCode:
		remoteErr.Retryable = true
	case pgErr.Code == tooManyConnectionsCode, pgErr.Code == cannotConnectNowCode:
		remoteErr.Kind = remote.KindRequest
		remoteErr.Retryable = true
	case pgErr.Code == insufficientPrivilegeCode:
		remoteErr.Kind = remote.KindPermission
	case pgErr.Code == adminShutdownCode,
		pgErr.Code == crashShutdownCode,
		strings.HasPrefix(pgErr.Code, connectionExceptionClass),
		strings.HasPrefix(pgErr.Code, systemErrorClass):
		remoteErr.Kind = remote.KindConnection
	case strings.HasPrefix(pgErr.Code, operatorInterventionClass):
		remoteErr.Kind = remote.KindRequest
	}
	return remoteErr
}

// isConnectionFailure reports whether err means the connection or server is
// unusable
func isConnectionFailure(err error) bool {
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

// IsRetryable reports whether err maps to a failure PostgreSQL flags as
// transient
func IsRetryable(err error) bool {
	remoteErr, ok := remote.AsError(MapError(err))
	return ok && remoteErr.Retryable
}
