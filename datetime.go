package sdbclient

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Datetime decodes SurrealDB datetime values, which arrive as RFC 3339
// strings, optionally with the d'' literal prefix of the text protocol.
type Datetime struct {
	time.Time
}

func (t Datetime) MarshalJSON() ([]byte, error) {
	if t.Time.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

func (t *Datetime) UnmarshalJSON(data []byte) error {
	str := strings.Trim(string(data), "\"")
	str = strings.TrimSuffix(strings.TrimPrefix(str, "d'"), "'")
	if str == "" || str == "null" || str == "NONE" {
		t.Time = time.Time{}
		return nil
	}

	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05.999999999Z07:00"} {
		if parsed, err := time.Parse(layout, str); err == nil {
			t.Time = parsed
			return nil
		}
	}

	return fmt.Errorf("parse datetime: %s", str)
}
