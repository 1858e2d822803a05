// Package rdfstore implements an RDF quad-store engine on top of PostgreSQL:
// deterministic term identity, per-space schema management, transactional
// and bulk write paths, and a streaming pattern-match reader.
package rdfstore

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ValidationError reports a malformed argument caught before any I/O is
// attempted (space id shape, identifier length, malformed term).
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

// SpaceNotFoundError is returned when an operation targets a space whose
// tables do not exist. It replaces the backend's verbose "relation does not
// exist" message with a stable, space-id-scoped one.
type SpaceNotFoundError struct {
	SpaceID string
}

func (e *SpaceNotFoundError) Error() string {
	return fmt.Sprintf("Invalid space '%s' does not exist", e.SpaceID)
}

// BackendError wraps any failure surfaced by the underlying database driver
// with the operation that triggered it.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend error during %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// ParseError reports an N-Triples syntax error, including the offending
// line number.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d: %s", e.Line, e.Msg)
}

// TransactionError reports misuse of a Transaction, such as committing or
// rolling back one whose connection has already been returned or closed.
type TransactionError struct {
	Reason string
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction error: %s", e.Reason)
}

// pgUndefinedTable is the PostgreSQL SQLSTATE for "relation does not exist",
// raised whenever a query touches a space's tables and that space was never
// created (or was already dropped).
const pgUndefinedTable = "42P01"

// wrapBackend translates a raw backend error into one of this package's
// error types. A pgUndefinedTable failure against a space id's tables comes
// back as SpaceNotFoundError, with the driver's verbose "relation ... does
// not exist" message stripped (spec §4.7/§4.8/§7); anything else is wrapped
// as a BackendError. spaceID may be empty for operations that are not
// scoped to one space (e.g. transaction lifecycle), in which case the
// 42P01 mapping never applies.
func wrapBackend(op, spaceID string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if spaceID != "" && errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable {
		return &SpaceNotFoundError{SpaceID: spaceID}
	}
	return &BackendError{Op: op, Err: err}
}
