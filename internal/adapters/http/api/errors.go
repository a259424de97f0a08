package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/blastppv/internal/domain/features"
	"github.com/okian/blastppv/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest       = errors.New("bad request")
	ErrMethodNotAllowed = errors.New("method not allowed")
	ErrUnavailable      = errors.New("service unavailable")
	ErrInternal         = errors.New("internal error")
)

// KindError carries the failing operation and its sentinel kind next to the
// underlying cause. errors.Is matches both the kind and the cause.
type KindError struct {
	Op   string
	Kind error
	Err  error
}

func (e *KindError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *KindError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Message is the text returned to clients: the cause when there is one,
// otherwise the kind.
func (e *KindError) Message() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.Error()
}

// WrapKind attaches op and kind to err. A nil err yields nil.
func WrapKind(op string, kind, err error) error {
	if err == nil {
		return nil
	}
	return &KindError{Op: op, Kind: kind, Err: err}
}

// NewKind returns a KindError with no underlying cause.
func NewKind(op string, kind error) error {
	return &KindError{Op: op, Kind: kind}
}

// classify turns a prediction error into a KindError. The unavailable case
// drops the load reason, which may name server paths, and keeps only the
// public message.
func classify(op string, err error) error {
	var perr *features.ParseError
	switch {
	case errors.As(err, &perr):
		return WrapKind(op, ErrBadRequest, err)
	case errors.Is(err, model.ErrUnavailable):
		return WrapKind(op, ErrUnavailable, model.ErrUnavailable)
	default:
		return WrapKind(op, ErrInternal, err)
	}
}

// statusFor maps a kind to its HTTP status. Without granular mapping every
// prediction failure is a 500.
func statusFor(kind error, granular bool) int {
	switch {
	case errors.Is(kind, ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed
	case !granular:
		return http.StatusInternalServerError
	case errors.Is(kind, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(kind, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
