package sdbclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned for common HTTP statuses and query failures.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
	ErrRateLimited  = errors.New("rate limited")
	ErrServer       = errors.New("server error")

	// ErrQuery matches every statement-level failure reported by SurrealDB.
	ErrQuery = errors.New("query failed")
	// ErrClosed is returned by calls on a closed connection.
	ErrClosed = errors.New("connection closed")
	// ErrTxDone is returned when a committed or cancelled transaction is reused.
	ErrTxDone = errors.New("transaction already finished")
)

// HTTPError captures the status and response message for non-2xx responses.
type HTTPError struct {
	Status  int
	Message string
	Err     error
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http error: status %d", e.Status)
	}
	return fmt.Sprintf("http error: status %d: %s", e.Status, e.Message)
}

func (e *HTTPError) Unwrap() error { return e.Err }

// QueryError is a statement that SurrealDB answered with status ERR.
type QueryError struct {
	// Index is the 1-based statement position, 0 when unknown.
	Index   int
	Message string
}

func (e *QueryError) Error() string {
	if e.Index > 0 {
		return fmt.Sprintf("query error at statement %d: %s", e.Index, e.Message)
	}
	return "query error: " + e.Message
}

func (e *QueryError) Unwrap() error { return ErrQuery }

// RPCError is an error frame returned by the websocket endpoint.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (e *RPCError) Unwrap() error { return ErrQuery }

// mapHTTPError converts a non-2xx response into an *HTTPError wrapping a sentinel.
func mapHTTPError(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	return &HTTPError{
		Status:  status,
		Message: errorMessage(body),
		Err:     classifyHTTPError(status),
	}
}

// errorMessage picks the most specific text out of a SurrealDB error body.
func errorMessage(body []byte) string {
	var payload struct {
		Details     string `json:"details"`
		Description string `json:"description"`
		Information string `json:"information"`
		Message     string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, msg := range []string{payload.Information, payload.Description, payload.Details, payload.Message} {
			if msg = strings.TrimSpace(msg); msg != "" {
				return msg
			}
		}
	}
	return strings.TrimSpace(string(body))
}

// classifyHTTPError maps an HTTP status code to a sentinel error when possible.
func classifyHTTPError(status int) error {
	switch status {
	case 400:
		return ErrBadRequest
	case 401:
		return ErrUnauthorized
	case 403:
		return ErrForbidden
	case 404:
		return ErrNotFound
	case 409:
		return ErrConflict
	case 422:
		return ErrValidation
	case 429:
		return ErrRateLimited
	}
	if status >= 500 {
		return ErrServer
	}
	return nil
}
