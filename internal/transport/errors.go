package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// Class groups transport failures by how the user can react to them
type Class string

const (
	ClassBadRequest    Class = "bad_request"
	ClassUnprocessable Class = "unprocessable" // e.g. no animal detected in the image
	ClassServer        Class = "server"
	ClassNetwork       Class = "network" // unreachable, timeout, cancelled
)

// Error is a failed call to the backend
type Error struct {
	Status  int // 0 when no response was received
	Class   Class
	Message string // detail reported by the backend, if any
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Err != nil:
		return fmt.Sprintf("backend %s: %v", e.Class, e.Err)
	case e.Message != "":
		return fmt.Sprintf("backend %s (%d): %s", e.Class, e.Status, e.Message)
	default:
		return fmt.Sprintf("backend %s (%d)", e.Class, e.Status)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// ClassOf maps an HTTP status to a failure class
func ClassOf(status int) Class {
	switch {
	case status == http.StatusUnprocessableEntity:
		return ClassUnprocessable
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ClassNetwork
	case status >= 500:
		return ClassServer
	case status >= 400:
		return ClassBadRequest
	default:
		return ClassServer
	}
}

// Classify returns the class of any error produced by this package. Errors
// that did not come from a backend response count as network failures.
func Classify(err error) Class {
	var te *Error
	if errors.As(err, &te) {
		return te.Class
	}
	return ClassNetwork
}
