// Package errors provides centralized error definitions for mailarchive.
package errors

import (
	"errors"
	"fmt"
)

// Store errors.
var (
	// ErrDuplicate indicates a message with the same Message-ID is already archived.
	ErrDuplicate = errors.New("message already archived")

	// ErrAccountNotFound indicates the account does not exist or is disabled.
	ErrAccountNotFound = errors.New("account not found or disabled")

	// ErrMessageNotFound indicates the requested archived message does not exist.
	ErrMessageNotFound = errors.New("message not found")
)

// Sync errors.
var (
	// ErrSyncInProgress indicates another run for the same account has not finished.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrCredentialNotFound indicates no password is available for the account.
	ErrCredentialNotFound = errors.New("credential not found")
)

// ConnectError is a DNS, TCP or TLS failure while reaching the IMAP server.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// AuthError is a rejected LOGIN.
type AuthError struct {
	Username string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("login %s: %v", e.Username, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ProtocolError is a non-OK response to SELECT, SEARCH or FETCH.
type ProtocolError struct {
	Command string
	Err     error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("imap %s: %v", e.Command, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ParseError is a raw message that cannot be decomposed at all.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse message: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StoreError is a persistence failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
