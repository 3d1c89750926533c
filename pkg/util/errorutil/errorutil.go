package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups error codes by how a caller should react to them.
type Kind string

const (
	KindInvalidInput       Kind = "INVALID_INPUT"
	KindUnauthorized       Kind = "UNAUTHORIZED"
	KindForbidden          Kind = "FORBIDDEN"
	KindRateLimited        Kind = "RATE_LIMITED"
	KindConflict           Kind = "CONFLICT"
	KindNotFound           Kind = "NOT_FOUND"
	KindPreconditionFailed Kind = "PRECONDITION_FAILED"
	KindUnavailable        Kind = "UNAVAILABLE"
	KindInternal           Kind = "INTERNAL"
)

// Error codes surfaced to callers.
const (
	CodeValidationFailed     = "VALIDATION_FAILED"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeRateLimited          = "RATE_LIMITED"
	CodeConflict             = "CONFLICT"
	CodeStaleThread          = "STALE_THREAD"
	CodeThreadClosed         = "THREAD_CLOSED"
	CodeThreadAssigned       = "THREAD_ALREADY_ASSIGNED"
	CodeNotFound             = "NOT_FOUND"
	CodeThreadNotFound       = "THREAD_NOT_FOUND"
	CodeAgentSessionInactive = "AGENT_SESSION_INACTIVE"
	CodeAgentHasActiveTicket = "AGENT_HAS_ACTIVE_TICKET"
	CodeAgentNotAuthorized   = "AGENT_NOT_AUTHORIZED"
	CodeAuthorizationExpired = "AUTHORIZATION_EXPIRED"
	CodeNotAssigned          = "NOT_ASSIGNED"
	CodeUnavailable          = "STORE_UNAVAILABLE"
	CodeInternal             = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Kind       Kind
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may retry without changing anything.
func (e *DomainError) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindConflict, KindUnavailable:
		return true
	}
	return false
}

// NewDomainError constructs a DomainError.
func NewDomainError(kind Kind, code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Kind: kind, Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(KindInvalidInput, CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Kind:       KindNotFound,
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewThreadNotFound(ticketID string) error {
	return NewDomainError(KindNotFound, CodeThreadNotFound, "ticket not found", http.StatusNotFound,
		map[string]any{"ticket_id": ticketID})
}

func NewUnauthorized(message string) error {
	return NewDomainError(KindUnauthorized, CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(KindForbidden, CodeForbidden, message, http.StatusForbidden, nil)
}

func NewRateLimited(message string, details map[string]any) error {
	return NewDomainError(KindRateLimited, CodeRateLimited, message, http.StatusTooManyRequests, details)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(KindConflict, CodeConflict, message, http.StatusConflict, details)
}

func NewStaleThread(ticketID string) error {
	return NewDomainError(KindConflict, CodeStaleThread, "ticket changed concurrently; re-read and retry",
		http.StatusConflict, map[string]any{"ticket_id": ticketID})
}

func NewThreadClosed(ticketID string) error {
	return NewDomainError(KindConflict, CodeThreadClosed, "ticket is closed", http.StatusConflict,
		map[string]any{"ticket_id": ticketID})
}

func NewThreadAssigned(ticketID string) error {
	return NewDomainError(KindConflict, CodeThreadAssigned, "ticket is assigned to another agent",
		http.StatusConflict, map[string]any{"ticket_id": ticketID})
}

func newPrecondition(code, message string, details map[string]any) error {
	return NewDomainError(KindPreconditionFailed, code, message, http.StatusPreconditionFailed, details)
}

func NewAgentSessionInactive(agentID string) error {
	return newPrecondition(CodeAgentSessionInactive, "agent has no active session", map[string]any{"agent_id": agentID})
}

func NewAgentHasActiveTicket(agentID string) error {
	return newPrecondition(CodeAgentHasActiveTicket, "agent already holds an active ticket", map[string]any{"agent_id": agentID})
}

func NewAgentNotAuthorized(agentID string) error {
	return newPrecondition(CodeAgentNotAuthorized, "agent is not authorized for work", map[string]any{"agent_id": agentID})
}

func NewAuthorizationExpired(agentID string) error {
	return newPrecondition(CodeAuthorizationExpired, "agent authorization expired", map[string]any{"agent_id": agentID})
}

func NewNotAssigned(ticketID string) error {
	return newPrecondition(CodeNotAssigned, "ticket is not assigned to caller", map[string]any{"ticket_id": ticketID})
}

func NewUnavailable(err error) error {
	return &DomainError{
		Kind:       KindUnavailable,
		Code:       CodeUnavailable,
		Message:    "service temporarily unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Kind:       KindInternal,
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return NewInternalError(err).(*DomainError)
}

// MapError converts generic errors to DomainError.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}

// CodeOf returns the error code carried by err, or "" when err is nil.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	return ToDomainError(err).Code
}

// KindOf returns the error kind carried by err, or "" when err is nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return ToDomainError(err).Kind
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}
