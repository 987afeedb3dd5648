// Package forkdberr defines the typed error taxonomy the fork database
// surfaces across its boundary: corruption/invariant violations,
// unlinkable blocks, and not-found lookups on branch queries.
package forkdberr

import "fmt"

// Code distinguishes the three kinds of failure the fork database can
// surface, so a host can tell a missing id apart from internal corruption.
type Code string

const (
	// CodeForkDatabase covers corruption, invariant violations, duplicate
	// blocks, and validator rejections: fatal to the caller.
	CodeForkDatabase Code = "fork_database_exception"
	// CodeUnlinkable marks a block whose parent could not be resolved on
	// add; recoverable once the host obtains the parent.
	CodeUnlinkable Code = "unlinkable_block_exception"
	// CodeNotFound marks a missing id on a branch query.
	CodeNotFound Code = "fork_db_block_not_found"
)

// Error is the concrete error type returned across the fork database
// boundary. It wraps an optional cause so errors.Is/errors.As keep working
// through validator or codec failures.
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, forkdberr.ErrForkDatabase) etc. match by Code
// rather than by pointer identity, since each call site constructs its own
// *Error value.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Msg == "" && t.Err == nil
}

// Sentinel values usable with errors.Is(err, forkdberr.ErrForkDatabase).
var (
	ErrForkDatabase = &Error{Code: CodeForkDatabase}
	ErrUnlinkable   = &Error{Code: CodeUnlinkable}
	ErrNotFound     = &Error{Code: CodeNotFound}
)

// ForkDatabase builds a CodeForkDatabase error.
func ForkDatabase(format string, args ...any) error {
	return &Error{Code: CodeForkDatabase, Msg: fmt.Sprintf(format, args...)}
}

// ForkDatabaseWrap builds a CodeForkDatabase error wrapping cause, used when
// a validator or codec failure must be surfaced as a fork-database
// exception.
func ForkDatabaseWrap(cause error, format string, args ...any) error {
	return &Error{Code: CodeForkDatabase, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// Unlinkable builds a CodeUnlinkable error.
func Unlinkable(format string, args ...any) error {
	return &Error{Code: CodeUnlinkable, Msg: fmt.Sprintf(format, args...)}
}

// NotFound builds a CodeNotFound error.
func NotFound(format string, args ...any) error {
	return &Error{Code: CodeNotFound, Msg: fmt.Sprintf(format, args...)}
}
