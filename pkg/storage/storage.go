// Package storage defines the domain records, report result types and the
// storage contract shared by the postgres and memdb implementations.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrConnectDB         = errors.New("unable to connect to DB")
	ErrDBNotResponding   = errors.New("DB is not responding")
	ErrUserAgentNotFound = errors.New("user agent not found")
)

// LogRecord is one parsed access-log line. It is transient: before a record
// reaches the store its UserAgent string is replaced by a dimension ID.
// Empty Referrer or UserAgent means the field was "-" in the source line.
type LogRecord struct {
	IPAddress  string
	Timestamp  time.Time
	Method     string
	Path       string
	StatusCode int
	BytesSent  int64
	Referrer   string
	UserAgent  string
}

// UserAgent is a row of the append-only user-agent dimension table.
// At most one row exists per distinct UserAgentString.
type UserAgent struct {
	ID              int64
	UserAgentString string
	OS              string
	Browser         string
	DeviceType      string
}

// Entry is the insert unit: a parsed record plus its resolved user-agent
// dimension ID. A nil UserAgentID means the line carried no user agent.
type Entry struct {
	Record      LogRecord
	UserAgentID *int64
}

// Report result rows, one named type per report.

type IPCount struct {
	IPAddress    string `json:"ip_address"`
	RequestCount int64  `json:"request_count"`
}

type StatusShare struct {
	StatusCode int     `json:"status_code"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

type HourCount struct {
	Hour         int   `json:"hour"`
	RequestCount int64 `json:"request_count"`
}

type PathCount struct {
	Path         string `json:"path"`
	RequestCount int64  `json:"request_count"`
}

type UserAgentCount struct {
	UserAgentString string `json:"user_agent"`
	RequestCount    int64  `json:"request_count"`
}

type OSCount struct {
	OS           string `json:"os"`
	RequestCount int64  `json:"request_count"`
}

type ErrorEntry struct {
	IPAddress  string    `json:"ip_address"`
	Timestamp  time.Time `json:"timestamp"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	StatusCode int       `json:"status_code"`
}

// Storage is the contract the ingestion pipeline and the report layer work
// against. The store owns timestamp normalization: entries are persisted in
// UTC with the zone stripped, and callers must hand over timestamps as parsed.
//
// Duplicate policy: a log entry colliding with the schema's uniqueness
// constraint over (ip_address, timestamp, path, status_code) is silently
// skipped. This is a fixed contract backed by the DDL, not a per-call option.
type Storage interface {
	// Bootstrap idempotently ensures the schema exists. Safe to call every run.
	Bootstrap(ctx context.Context) error

	// InsertEntries persists a batch of entries under the duplicate policy.
	InsertEntries(ctx context.Context, entries []Entry) error

	// FindUserAgent returns the dimension ID for an exact user-agent string,
	// or ErrUserAgentNotFound.
	FindUserAgent(ctx context.Context, ua string) (int64, error)

	// CreateUserAgent inserts a classified user agent and returns its ID.
	// When a concurrent caller already inserted the same string, the existing
	// row's ID is returned instead; the race never surfaces as an error.
	CreateUserAgent(ctx context.Context, ua UserAgent) (int64, error)

	TopIPs(ctx context.Context, limit int) ([]IPCount, error)
	StatusDistribution(ctx context.Context) ([]StatusShare, error)
	HourlyTraffic(ctx context.Context) ([]HourCount, error)
	TopPaths(ctx context.Context, limit int) ([]PathCount, error)
	UserAgentSummary(ctx context.Context, limit int) ([]UserAgentCount, error)
	TrafficByOS(ctx context.Context) ([]OSCount, error)
	ErrorLogsByDate(ctx context.Context, date time.Time) ([]ErrorEntry, error)

	Ping(ctx context.Context) error
	Close()
}
