// Package useragent classifies raw user-agent strings and resolves them to
// dimension-table identities.
package useragent

import (
	"context"
	"errors"
	"strings"
	"sync"

	"loganalyzer/pkg/storage"
)

const (
	UnknownOS      = "Unknown OS"
	UnknownBrowser = "Unknown Browser"
	DeviceDesktop  = "Desktop"
	DeviceMobile   = "Mobile"
	DeviceTablet   = "Tablet"
)

type Classification struct {
	OS         string
	Browser    string
	DeviceType string
}

// Classify derives OS, browser and device type from a raw user-agent string
// using ordered case-insensitive substring rules; the first matching rule
// wins. It is pure: the same input always yields the same classification.
func Classify(ua string) Classification {
	c := Classification{
		OS:         UnknownOS,
		Browser:    UnknownBrowser,
		DeviceType: DeviceDesktop,
	}

	s := strings.ToLower(ua)

	switch {
	case strings.Contains(s, "windows"):
		c.OS = "Windows"
	case strings.Contains(s, "mac os"), strings.Contains(s, "macintosh"):
		c.OS = "macOS"
	case strings.Contains(s, "linux"):
		c.OS = "Linux"
	case strings.Contains(s, "android"):
		c.OS = "Android"
	case strings.Contains(s, "iphone"), strings.Contains(s, "ios"):
		c.OS = "iOS"
	}

	switch {
	case strings.Contains(s, "chrome") && strings.Contains(s, "safari"):
		c.Browser = "Chrome"
	case strings.Contains(s, "firefox"):
		c.Browser = "Firefox"
	case strings.Contains(s, "safari") && !strings.Contains(s, "chrome"):
		c.Browser = "Safari"
	case strings.Contains(s, "edge"):
		c.Browser = "Edge"
	}

	switch {
	case strings.Contains(s, "mobile"):
		c.DeviceType = DeviceMobile
	case strings.Contains(s, "tablet"), strings.Contains(s, "ipad"):
		c.DeviceType = DeviceTablet
	}

	return c
}

// Resolver maps raw user-agent strings to stable dimension IDs, creating and
// classifying unseen strings on first sight. Resolved IDs are memoized for
// the lifetime of the resolver, so repeated strings cost one lookup per
// invocation. The lookup-or-create sequence is serialized: the find and the
// conditional create are a check-then-act pair, and the user_agents unique
// constraint arbitrates when two processes race on the same unseen string.
type Resolver struct {
	db storage.Storage

	mu    sync.Mutex
	cache map[string]int64
}

func NewResolver(db storage.Storage) *Resolver {
	return &Resolver{
		db:    db,
		cache: make(map[string]int64),
	}
}

// Resolve returns the dimension ID for a raw user-agent string, creating the
// row on first sight. An empty input resolves to a nil ID without touching
// the store. Resolving the same string twice returns the same ID both times.
func (r *Resolver) Resolve(ctx context.Context, ua string) (*int64, error) {
	if ua == "" {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.cache[ua]; ok {
		return &id, nil
	}

	id, err := r.db.FindUserAgent(ctx, ua)
	if errors.Is(err, storage.ErrUserAgentNotFound) {
		c := Classify(ua)
		id, err = r.db.CreateUserAgent(ctx, storage.UserAgent{
			UserAgentString: ua,
			OS:              c.OS,
			Browser:         c.Browser,
			DeviceType:      c.DeviceType,
		})
	}
	if err != nil {
		return nil, err
	}

	r.cache[ua] = id
	return &id, nil
}
