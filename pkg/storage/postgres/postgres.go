// Package postgres implements the storage contract on top of PostgreSQL.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"loganalyzer/pkg/storage"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *pgxpool.Pool
}

func New(ctx context.Context, conStr string) (*Store, error) {
	db, err := pgxpool.Connect(ctx, conStr)
	if err != nil {
		return nil, err
	}
	s := Store{
		db: db,
	}

	return &s, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Store) Close() {
	s.db.Close()
}

// Bootstrap ensures the schema exists. All statements are IF NOT EXISTS, so
// calling it on every run is safe.
func (s *Store) Bootstrap(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schemaSQL)
	return err
}

// FindUserAgent looks up a dimension row by exact user-agent string.
func (s *Store) FindUserAgent(ctx context.Context, ua string) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		SELECT id FROM user_agents WHERE user_agent_string = $1
	`,
		ua,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = storage.ErrUserAgentNotFound
		}
		return 0, err
	}

	return id, nil
}

// CreateUserAgent inserts a classified user agent and returns its generated
// ID. When another writer inserted the same string first, the unique
// constraint on user_agent_string arbitrates: the losing insert is a no-op
// and the winner's ID is read back instead.
func (s *Store) CreateUserAgent(ctx context.Context, ua storage.UserAgent) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO user_agents (user_agent_string, os, browser, device_type)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_agent_string) DO NOTHING
		RETURNING id
	`,
		ua.UserAgentString,
		ua.OS,
		ua.Browser,
		ua.DeviceType,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return s.FindUserAgent(ctx, ua.UserAgentString)
	}
	if err != nil {
		return 0, err
	}

	return id, nil
}

// InsertEntries persists a batch of entries in a single transaction.
// Timestamps are normalized to UTC here; callers hand over timestamps as
// parsed from the log. A row colliding with the uniqueness constraint over
// (ip_address, timestamp, path, status_code) is skipped silently.
func (s *Store) InsertEntries(ctx context.Context, entries []storage.Entry) (err error) {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	batch := new(pgx.Batch)
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO log_entries
				(ip_address, timestamp, method, path, status_code, bytes_sent, referrer, user_agent_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (ip_address, timestamp, path, status_code) DO NOTHING
		`,
			e.Record.IPAddress,
			e.Record.Timestamp.UTC(),
			e.Record.Method,
			e.Record.Path,
			e.Record.StatusCode,
			e.Record.BytesSent,
			nullIfEmpty(e.Record.Referrer),
			e.UserAgentID,
		)
	}

	res := tx.SendBatch(ctx, batch)
	err = res.Close()
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *Store) TopIPs(ctx context.Context, limit int) (ips []storage.IPCount, err error) {
	rows, err := s.db.Query(ctx, `
		SELECT ip_address, COUNT(*) AS request_count
		FROM log_entries
		GROUP BY ip_address
		ORDER BY request_count DESC
		LIMIT $1
	`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var r storage.IPCount
		err := rows.Scan(&r.IPAddress, &r.RequestCount)
		if err != nil {
			return nil, err
		}
		ips = append(ips, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ips, nil
}

func (s *Store) StatusDistribution(ctx context.Context) (shares []storage.StatusShare, err error) {
	rows, err := s.db.Query(ctx, `
		SELECT
			status_code,
			COUNT(*) AS count,
			COUNT(*) * 100.0 / (SELECT COUNT(*) FROM log_entries) AS percentage
		FROM log_entries
		GROUP BY status_code
		ORDER BY count DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var r storage.StatusShare
		err := rows.Scan(&r.StatusCode, &r.Count, &r.Percentage)
		if err != nil {
			return nil, err
		}
		shares = append(shares, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return shares, nil
}

func (s *Store) HourlyTraffic(ctx context.Context) (hours []storage.HourCount, err error) {
	rows, err := s.db.Query(ctx, `
		SELECT EXTRACT(HOUR FROM timestamp)::int AS hour, COUNT(*) AS request_count
		FROM log_entries
		GROUP BY hour
		ORDER BY hour ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var r storage.HourCount
		err := rows.Scan(&r.Hour, &r.RequestCount)
		if err != nil {
			return nil, err
		}
		hours = append(hours, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return hours, nil
}

func (s *Store) TopPaths(ctx context.Context, limit int) (paths []storage.PathCount, err error) {
	rows, err := s.db.Query(ctx, `
		SELECT path, COUNT(*) AS request_count
		FROM log_entries
		GROUP BY path
		ORDER BY request_count DESC
		LIMIT $1
	`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var r storage.PathCount
		err := rows.Scan(&r.Path, &r.RequestCount)
		if err != nil {
			return nil, err
		}
		paths = append(paths, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return paths, nil
}

func (s *Store) UserAgentSummary(ctx context.Context, limit int) (agents []storage.UserAgentCount, err error) {
	rows, err := s.db.Query(ctx, `
		SELECT ua.user_agent_string, COUNT(*) AS request_count
		FROM log_entries le
		JOIN user_agents ua ON ua.id = le.user_agent_id
		GROUP BY ua.user_agent_string
		ORDER BY request_count DESC
		LIMIT $1
	`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var r storage.UserAgentCount
		err := rows.Scan(&r.UserAgentString, &r.RequestCount)
		if err != nil {
			return nil, err
		}
		agents = append(agents, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return agents, nil
}

func (s *Store) TrafficByOS(ctx context.Context) (oses []storage.OSCount, err error) {
	rows, err := s.db.Query(ctx, `
		SELECT ua.os, COUNT(*) AS request_count
		FROM log_entries le
		JOIN user_agents ua ON ua.id = le.user_agent_id
		GROUP BY ua.os
		ORDER BY request_count DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var r storage.OSCount
		err := rows.Scan(&r.OS, &r.RequestCount)
		if err != nil {
			return nil, err
		}
		oses = append(oses, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return oses, nil
}

func (s *Store) ErrorLogsByDate(ctx context.Context, date time.Time) (entries []storage.ErrorEntry, err error) {
	rows, err := s.db.Query(ctx, `
		SELECT ip_address, timestamp, method, path, status_code
		FROM log_entries
		WHERE status_code >= 400 AND timestamp::date = $1::date
		ORDER BY timestamp ASC
	`,
		date.Format("2006-01-02"),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var r storage.ErrorEntry
		err := rows.Scan(&r.IPAddress, &r.Timestamp, &r.Method, &r.Path, &r.StatusCode)
		if err != nil {
			return nil, err
		}
		r.Timestamp = r.Timestamp.UTC()
		entries = append(entries, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
