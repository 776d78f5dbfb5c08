// Package apperr defines the domain error taxonomy shared by the API,
// services, and CLI. Every error carries a stable machine-readable kind
// and the HTTP status it maps to.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a domain error class. Kinds are part of the API
// contract and must not be renamed.
type Kind string

const (
	KindInvalidPriority      Kind = "invalid_priority"
	KindInvalidDecision      Kind = "invalid_decision"
	KindInvalidRequest       Kind = "invalid_request"
	KindUserNotFound         Kind = "user_not_found"
	KindProjectNotFound      Kind = "project_not_found"
	KindIssueNotFound        Kind = "issue_not_found"
	KindRescheduleNotFound   Kind = "reschedule_not_found"
	KindPermissionDenied     Kind = "permission_denied"
	KindProjectExists        Kind = "project_exists"
	KindRescheduleExists     Kind = "reschedule_exists"
	KindGitHubAPI            Kind = "github_api_error"
	KindMalformedLLMResponse Kind = "llm_malformed_response"
	KindIssueGenerate        Kind = "issue_generate_error"
	KindStorage              Kind = "storage_error"
)

// Error is a domain error with a stable kind and HTTP status.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

// Is matches two apperr.Errors by kind, so sentinel comparisons like
// errors.Is(err, apperr.RescheduleExists()) work.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an error with an explicit kind, status, and message.
func New(kind Kind, status int, format string, args ...any) *Error {
	return &Error{Kind: kind, Status: status, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches an underlying cause to a domain error.
func Wrap(err error, kind Kind, status int, format string, args ...any) *Error {
	return &Error{Kind: kind, Status: status, Message: fmt.Sprintf(format, args...), err: err}
}

// KindOf returns the kind of err, or "" if err is not a domain error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StatusOf returns the HTTP status for err, defaulting to 500 for
// non-domain errors.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return http.StatusInternalServerError
}

// Constructors for the common cases. Services use these rather than
// spelling out statuses at every call site.

func InvalidPriority(priority string, iteration int) *Error {
	return New(KindInvalidPriority, http.StatusBadRequest,
		"priority must be one of M, S, C, W and iteration must be >= 0 (got %q, %d)", priority, iteration)
}

func InvalidDecision(decision string) *Error {
	return New(KindInvalidDecision, http.StatusBadRequest, "unknown reschedule decision %q", decision)
}

func UserNotFound(id string) *Error {
	return New(KindUserNotFound, http.StatusNotFound, "user not found: %s", id)
}

func ProjectNotFound(id string) *Error {
	return New(KindProjectNotFound, http.StatusNotFound, "project not found: %s", id)
}

func IssueNotFound(number int) *Error {
	return New(KindIssueNotFound, http.StatusNotFound, "issue not found: #%d", number)
}

func RescheduleNotFound(id string) *Error {
	return New(KindRescheduleNotFound, http.StatusNotFound, "reschedule request not found: %s", id)
}

func PermissionDenied(msg string) *Error {
	return New(KindPermissionDenied, http.StatusForbidden, "%s", msg)
}

func RescheduleExists(projectID string, issueNumber int) *Error {
	return New(KindRescheduleExists, http.StatusConflict,
		"a pending reschedule request already exists for project %s issue #%d", projectID, issueNumber)
}

func GitHubAPI(status int, msg string) *Error {
	return New(KindGitHubAPI, http.StatusBadGateway, "github api returned %d: %s", status, msg)
}

func MalformedLLMResponse(err error) *Error {
	return Wrap(err, KindMalformedLLMResponse, http.StatusBadGateway, "model emitted a json fence with invalid content")
}

func IssueGenerate(format string, args ...any) *Error {
	return New(KindIssueGenerate, http.StatusBadGateway, format, args...)
}

func Storage(err error, op string) *Error {
	return Wrap(err, KindStorage, http.StatusInternalServerError, "%s", op)
}
