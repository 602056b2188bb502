// Package memdb is an in-memory storage implementation used in development
// mode and in tests. It mirrors the postgres store's semantics: timestamps
// normalized to UTC, duplicate fact rows skipped, one dimension row per
// distinct user-agent string.
package memdb

import (
	"context"
	"sort"
	"sync"
	"time"

	"loganalyzer/pkg/storage"
)

type entryKey struct {
	ip     string
	ts     time.Time
	path   string
	status int
}

type Store struct {
	mu      sync.Mutex
	entries map[entryKey]storage.Entry
	agents  map[string]storage.UserAgent
	nextID  int64
}

func New() *Store {
	db := Store{
		entries: make(map[entryKey]storage.Entry),
		agents:  make(map[string]storage.UserAgent),
		nextID:  1,
	}

	return &db
}

func (db *Store) Bootstrap(ctx context.Context) error { return nil }

func (db *Store) Ping(ctx context.Context) error { return nil }

func (db *Store) Close() {}

func (db *Store) FindUserAgent(ctx context.Context, ua string) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	agent, ok := db.agents[ua]
	if !ok {
		return 0, storage.ErrUserAgentNotFound
	}

	return agent.ID, nil
}

func (db *Store) CreateUserAgent(ctx context.Context, ua storage.UserAgent) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if existing, ok := db.agents[ua.UserAgentString]; ok {
		return existing.ID, nil
	}

	ua.ID = db.nextID
	db.nextID++
	db.agents[ua.UserAgentString] = ua

	return ua.ID, nil
}

func (db *Store) InsertEntries(ctx context.Context, entries []storage.Entry) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, e := range entries {
		e.Record.Timestamp = e.Record.Timestamp.UTC()
		key := entryKey{
			ip:     e.Record.IPAddress,
			ts:     e.Record.Timestamp,
			path:   e.Record.Path,
			status: e.Record.StatusCode,
		}
		if _, ok := db.entries[key]; ok {
			continue
		}
		db.entries[key] = e
	}

	return nil
}

// countBy groups all entries by a key function and returns (key, count)
// pairs sorted by count descending, key ascending for stable output.
func (db *Store) countBy(key func(storage.Entry) (string, bool)) []struct {
	Key   string
	Count int64
} {
	db.mu.Lock()
	counts := make(map[string]int64)
	for _, e := range db.entries {
		k, ok := key(e)
		if !ok {
			continue
		}
		counts[k]++
	}
	db.mu.Unlock()

	out := make([]struct {
		Key   string
		Count int64
	}, 0, len(counts))
	for k, c := range counts {
		out = append(out, struct {
			Key   string
			Count int64
		}{k, c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})

	return out
}

func (db *Store) TopIPs(ctx context.Context, limit int) ([]storage.IPCount, error) {
	counts := db.countBy(func(e storage.Entry) (string, bool) {
		return e.Record.IPAddress, true
	})

	var ips []storage.IPCount
	for i, c := range counts {
		if i >= limit {
			break
		}
		ips = append(ips, storage.IPCount{IPAddress: c.Key, RequestCount: c.Count})
	}

	return ips, nil
}

func (db *Store) StatusDistribution(ctx context.Context) ([]storage.StatusShare, error) {
	db.mu.Lock()
	total := len(db.entries)
	counts := make(map[int]int64)
	for _, e := range db.entries {
		counts[e.Record.StatusCode]++
	}
	db.mu.Unlock()

	var shares []storage.StatusShare
	for code, c := range counts {
		shares = append(shares, storage.StatusShare{
			StatusCode: code,
			Count:      c,
			Percentage: float64(c) * 100.0 / float64(total),
		})
	}
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].Count != shares[j].Count {
			return shares[i].Count > shares[j].Count
		}
		return shares[i].StatusCode < shares[j].StatusCode
	})

	return shares, nil
}

func (db *Store) HourlyTraffic(ctx context.Context) ([]storage.HourCount, error) {
	db.mu.Lock()
	counts := make(map[int]int64)
	for _, e := range db.entries {
		counts[e.Record.Timestamp.Hour()]++
	}
	db.mu.Unlock()

	var hours []storage.HourCount
	for h, c := range counts {
		hours = append(hours, storage.HourCount{Hour: h, RequestCount: c})
	}
	sort.Slice(hours, func(i, j int) bool {
		return hours[i].Hour < hours[j].Hour
	})

	return hours, nil
}

func (db *Store) TopPaths(ctx context.Context, limit int) ([]storage.PathCount, error) {
	counts := db.countBy(func(e storage.Entry) (string, bool) {
		return e.Record.Path, true
	})

	var paths []storage.PathCount
	for i, c := range counts {
		if i >= limit {
			break
		}
		paths = append(paths, storage.PathCount{Path: c.Key, RequestCount: c.Count})
	}

	return paths, nil
}

func (db *Store) UserAgentSummary(ctx context.Context, limit int) ([]storage.UserAgentCount, error) {
	counts := db.countBy(func(e storage.Entry) (string, bool) {
		if e.Record.UserAgent == "" {
			return "", false
		}
		return e.Record.UserAgent, true
	})

	var agents []storage.UserAgentCount
	for i, c := range counts {
		if i >= limit {
			break
		}
		agents = append(agents, storage.UserAgentCount{UserAgentString: c.Key, RequestCount: c.Count})
	}

	return agents, nil
}

func (db *Store) TrafficByOS(ctx context.Context) ([]storage.OSCount, error) {
	db.mu.Lock()
	byID := make(map[int64]string, len(db.agents))
	for _, a := range db.agents {
		byID[a.ID] = a.OS
	}
	db.mu.Unlock()

	counts := db.countBy(func(e storage.Entry) (string, bool) {
		if e.UserAgentID == nil {
			return "", false
		}
		os, ok := byID[*e.UserAgentID]
		return os, ok
	})

	var oses []storage.OSCount
	for _, c := range counts {
		oses = append(oses, storage.OSCount{OS: c.Key, RequestCount: c.Count})
	}

	return oses, nil
}

func (db *Store) ErrorLogsByDate(ctx context.Context, date time.Time) ([]storage.ErrorEntry, error) {
	wantDate := date.Format("2006-01-02")

	db.mu.Lock()
	var entries []storage.ErrorEntry
	for _, e := range db.entries {
		if e.Record.StatusCode < 400 {
			continue
		}
		if e.Record.Timestamp.Format("2006-01-02") != wantDate {
			continue
		}
		entries = append(entries, storage.ErrorEntry{
			IPAddress:  e.Record.IPAddress,
			Timestamp:  e.Record.Timestamp,
			Method:     e.Record.Method,
			Path:       e.Record.Path,
			StatusCode: e.Record.StatusCode,
		})
	}
	db.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.Before(entries[j].Timestamp)
		}
		return entries[i].Path < entries[j].Path
	})

	return entries, nil
}
