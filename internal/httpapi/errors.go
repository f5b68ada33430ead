package httpapi

import (
	"context"
	"errors"
	"fmt"

	"github.com/joelkehle/propquant/internal/audit"
	"github.com/joelkehle/propquant/internal/store"
	"github.com/joelkehle/propquant/internal/underwriting"
)

const (
	CodeValidation  = "validation"
	CodeNotFound    = "not_found"
	CodeTimeout     = "timeout"
	CodeUpstream    = "upstream"
	CodeUnavailable = "unavailable"
	CodeInternal    = "internal"
)

// Error is the wire error. Field names the offending input for validation
// errors; Stage names the failed audit stage.
type Error struct {
	Code      string
	Message   string
	Field     string
	Stage     string
	Transient bool
	Status    int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func statusForCode(code string) int {
	switch code {
	case CodeValidation:
		return 400
	case CodeNotFound:
		return 404
	case CodeUpstream:
		return 502
	case CodeUnavailable:
		return 503
	case CodeTimeout:
		return 504
	default:
		return 500
	}
}

func newError(code, message string, transient bool) *Error {
	return &Error{Code: code, Message: message, Transient: transient, Status: statusForCode(code)}
}

func NewValidationJSONError(err error) *Error {
	return newError(CodeValidation, "invalid json: "+err.Error(), false)
}

func newFieldError(field, message string) *Error {
	e := newError(CodeValidation, message, false)
	e.Field = field
	return e
}

// toError maps domain errors onto wire errors. Stage failures before
// underwriting come from the fetcher or the model and are reported as
// transient upstream errors.
func toError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	var se *audit.StageError
	if errors.As(err, &se) && se.Stage != audit.StageUnderwrite {
		out := newError(CodeUpstream, err.Error(), true)
		if errors.Is(err, context.DeadlineExceeded) {
			out = newError(CodeTimeout, err.Error(), true)
		}
		out.Stage = se.Stage
		return out
	}
	var ie *underwriting.InputError
	if errors.As(err, &ie) {
		out := newFieldError(ie.Field, ie.Error())
		if se != nil {
			out.Stage = se.Stage
		}
		return out
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return newError(CodeNotFound, err.Error(), false)
	case errors.Is(err, context.DeadlineExceeded):
		return newError(CodeTimeout, err.Error(), true)
	}
	return newError(CodeInternal, err.Error(), true)
}
