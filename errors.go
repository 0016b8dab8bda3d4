package main

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoEndpoints is returned when the server is started without any database endpoint.
	ErrNoEndpoints = errors.New("no database endpoints configured")

	// ErrAdmissionLimit is returned when the pending transaction ceiling is reached.
	ErrAdmissionLimit = errors.New("too many pending transactions")

	// ErrTransactionNotFound is returned for ids that are unknown or were already removed.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrTransactionFinalized is returned when another caller (usually the
	// timeout monitor) finalized the transaction first.
	ErrTransactionFinalized = errors.New("transaction already finalized")

	// ErrRegistryClosed is returned by lookups after Shutdown.
	ErrRegistryClosed = errors.New("connection registry is shut down")
)

// ConfigError is a fatal startup problem: bad environment value or malformed endpoint.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Key, e.Reason)
}

// UnknownAliasError names the requested alias together with every valid one,
// so the caller can correct itself without listing databases first.
type UnknownAliasError struct {
	Alias string
	Known []string
}

func (e *UnknownAliasError) Error() string {
	return fmt.Sprintf("unknown database %q (available: %s)", e.Alias, strings.Join(e.Known, ", "))
}

// ClassificationError rejects a statement before any connection is acquired.
type ClassificationError struct {
	Path   string
	Reason string
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("statement rejected for %s: %s", e.Path, e.Reason)
}

// VerifyError is one endpoint failing its startup round trip.
type VerifyError struct {
	Alias string
	Err   error
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("database %s unreachable: %v", e.Alias, e.Err)
}

func (e *VerifyError) Unwrap() error { return e.Err }

// CommitError reports a failed COMMIT. The transaction has been rolled back
// and its connection released by the time the caller sees it.
type CommitError struct {
	ID    string
	Alias string
	Err   error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit of transaction %s on %s failed (rolled back): %v", e.ID, e.Alias, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }
