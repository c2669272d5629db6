// Package errs maps the errors handlers return onto HTTP responses.
package errs

import (
	"errors"
	"net/http"

	"github.com/ardanlabs/powsim/foundation/validate"
)

// Response is the body written for a failed request.
type Response struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Trusted is an expected error whose message is safe to show the client.
// It carries the status the request should fail with.
type Trusted struct {
	Err    error
	Status int
}

// NewTrusted wraps err so it is reported to the client with status.
func NewTrusted(err error, status int) error {
	return &Trusted{Err: err, Status: status}
}

// Error implements the error interface.
func (te *Trusted) Error() string {
	return te.Err.Error()
}

// Unwrap returns the wrapped error.
func (te *Trusted) Unwrap() error {
	return te.Err
}

// IsTrusted reports whether a Trusted error is in the chain.
func IsTrusted(err error) bool {
	var te *Trusted
	return errors.As(err, &te)
}

// GetTrusted returns the Trusted error in the chain or nil.
func GetTrusted(err error) *Trusted {
	var te *Trusted
	if !errors.As(err, &te) {
		return nil
	}
	return te
}

// StatusOf returns the HTTP status the error will be reported with.
func StatusOf(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case validate.IsFieldErrors(err):
		return http.StatusBadRequest
	case IsTrusted(err):
		return GetTrusted(err).Status
	}
	return http.StatusInternalServerError
}
