package migrations

import sdbclient "github.com/eqr/sdbclient"

const (
	defaultLedgerTable        = "migrations"
	defaultIntrospectionTable = "introspections"
)

// VersionRecord stores bookkeeping data for an applied migration inside SurrealDB.
type VersionRecord struct {
	ID        string             `json:"id,omitempty"`
	Version   int                `json:"version"`
	Title     string             `json:"title,omitempty"`
	AppliedAt sdbclient.Datetime `json:"appliedAt"`
}

// IntrospectionRecord is a stored snapshot used as the baseline for generate.
type IntrospectionRecord struct {
	ID        string             `json:"id,omitempty"`
	Data      Snapshot           `json:"data"`
	Timestamp sdbclient.Datetime `json:"timestamp"`
}

// VersionInfo is the current ledger version for display.
type VersionInfo struct {
	Version int
	Title   string
}
