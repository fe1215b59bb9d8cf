package sdbclient

import (
	"encoding/json"
	"fmt"
	"strings"
)

// QueryResult is the outcome of one statement in a query batch.
type QueryResult struct {
	Status string          `json:"status"`
	Time   string          `json:"time,omitempty"`
	Result json.RawMessage `json:"result"`
}

// OK reports whether the statement succeeded.
func (r QueryResult) OK() bool {
	return strings.EqualFold(r.Status, "OK")
}

// Err returns a *QueryError for failed statements and nil otherwise.
func (r QueryResult) Err() error {
	if r.OK() {
		return nil
	}
	return &QueryError{Message: r.message()}
}

// Decode unmarshals the statement result into dst.
func (r QueryResult) Decode(dst any) error {
	if err := r.Err(); err != nil {
		return err
	}
	if len(r.Result) == 0 || string(r.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(r.Result, dst); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

func (r QueryResult) message() string {
	var msg string
	if err := json.Unmarshal(r.Result, &msg); err == nil {
		return msg
	}
	if len(r.Result) > 0 {
		return string(r.Result)
	}
	return "statement failed with status " + r.Status
}

// Decode unmarshals the i-th statement result into a T.
func Decode[T any](results []QueryResult, i int) (T, error) {
	var out T
	if i < 0 || i >= len(results) {
		return out, fmt.Errorf("result %d out of range (%d results)", i, len(results))
	}
	err := results[i].Decode(&out)
	return out, err
}

// CheckResults returns the first statement error in results. SurrealDB marks
// every statement of an aborted transaction as failed, so the statement that
// actually caused the abort is preferred over those generic entries.
func CheckResults(results []QueryResult) error {
	var first *QueryError
	for i, res := range results {
		if res.OK() {
			continue
		}
		qe := &QueryError{Index: i + 1, Message: res.message()}
		if !isCascadeFailure(qe.Message) {
			return qe
		}
		if first == nil {
			first = qe
		}
	}
	if first != nil {
		return first
	}
	return nil
}

func isCascadeFailure(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "failed transaction") || strings.Contains(lower, "transaction was cancelled")
}
