package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an expected failure so callers and the HTTP layer
// can react without string matching.
type ErrorKind string

const (
	ErrNotFound         ErrorKind = "not_found"
	ErrUnauthorized     ErrorKind = "unauthorized"
	ErrConflict         ErrorKind = "conflict"
	ErrInvalidState     ErrorKind = "invalid_state"
	ErrTimeout          ErrorKind = "timeout"
	ErrStoreUnavailable ErrorKind = "store_unavailable"
)

// Well-known reasons carried by AppError
const (
	ReasonAlreadyInParty   = "already_in_party"
	ReasonPartyFull        = "party_full"
	ReasonQueueBusy        = "queue_busy"
	ReasonNotAMember       = "not_a_member"
	ReasonNotLeader        = "not_leader"
	ReasonMatchInProgress  = "match_in_progress"
	ReasonCannotKickSelf   = "cannot_kick_self"
	ReasonDuplicateInvite  = "duplicate_invite"
	ReasonInviteExpired    = "invite_expired"
	ReasonRosterIncomplete = "roster_incomplete"
	ReasonModeNotSet       = "mode_not_set"
)

// AppError is the result classification for every expected business-rule
// violation. Services return it as a plain error value; nothing panics for
// expected conditions.
type AppError struct {
	Kind   ErrorKind `json:"kind"`
	Reason string    `json:"reason,omitempty"`
	Msg    string    `json:"message"`
}

func (e *AppError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Reason, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// NewError builds an AppError with the given classification.
func NewError(kind ErrorKind, reason, msg string) *AppError {
	return &AppError{Kind: kind, Reason: reason, Msg: msg}
}

// NotFoundError is shorthand for a missing party/invite/candidate record.
func NotFoundError(msg string) *AppError {
	return &AppError{Kind: ErrNotFound, Msg: msg}
}

// StoreError wraps an infrastructure failure so upper layers degrade
// gracefully instead of crashing.
func StoreError(err error) *AppError {
	return &AppError{Kind: ErrStoreUnavailable, Msg: err.Error()}
}

// KindOf extracts the ErrorKind from err, defaulting unknown errors to
// StoreUnavailable.
func KindOf(err error) ErrorKind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ErrStoreUnavailable
}

// IsKind reports whether err carries the given classification.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
