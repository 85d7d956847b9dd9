package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindInvalidInput is a malformed request from the caller.
	KindInvalidInput
	// KindNotFound is a conversation handle the assistant service does not know.
	KindNotFound
	// KindCredential is a failure to obtain the assistant service API key.
	KindCredential
	// KindUpstream is a failed call to the assistant service or a run that did not complete.
	KindUpstream
	// KindTimeout is a run that did not settle within the poll budget.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindCredential:
		return "credential"
	case KindUpstream:
		return "upstream"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstream:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func E(kind Kind, op string, err error) error {
	if err == nil {
		err = errors.New(kind.String())
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func InvalidInput(op string, err error) error { return E(KindInvalidInput, op, err) }
func NotFound(op string, err error) error     { return E(KindNotFound, op, err) }
func Credential(op string, err error) error   { return E(KindCredential, op, err) }
func Upstream(op string, err error) error     { return E(KindUpstream, op, err) }
func Timeout(op string, err error) error      { return E(KindTimeout, op, err) }

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ToHTTPError converts err into the echo error returned to the caller.
func ToHTTPError(err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	return echo.NewHTTPError(KindOf(err).HTTPStatus(), err.Error()).SetInternal(err)
}
