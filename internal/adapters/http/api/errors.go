package api

import (
	"errors"
	"net/http"

	"github.com/okian/talentsync/internal/domain/authz"
	"github.com/okian/talentsync/internal/domain/model"
	"github.com/okian/talentsync/internal/domain/reconcile"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
	ErrInternal   = errors.New("internal error")
)

// Error tags an underlying error with the operation that produced it and
// an optional kind sentinel used for status mapping.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Kind != nil:
		return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
	case e.Err != nil:
		return e.Op + ": " + e.Err.Error()
	case e.Kind != nil:
		return e.Op + ": " + e.Kind.Error()
	default:
		return e.Op
	}
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Wrap tags err with op. A nil err stays nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// WrapKind tags err with op and kind.
func WrapKind(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// NewKind returns an error of kind with no further cause.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// classify maps an error to the HTTP status and public code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, authz.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, authz.ErrPermissionDenied):
		return http.StatusForbidden, "permission_denied"
	case errors.Is(err, authz.ErrPermissionCheckFailed):
		return http.StatusInternalServerError, "permission_check_failed"
	case errors.Is(err, reconcile.ErrSyncInProgress):
		return http.StatusConflict, "sync_in_progress"
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// publicMessage hides internals behind a generic text for server errors.
func publicMessage(status int, err error) string {
	switch status {
	case http.StatusUnauthorized:
		return "missing or invalid bearer token"
	case http.StatusForbidden:
		return "caller lacks the required role"
	case http.StatusInternalServerError:
		if errors.Is(err, authz.ErrPermissionCheckFailed) {
			return "could not verify caller permissions"
		}
		return http.StatusText(status)
	}
	return err.Error()
}
