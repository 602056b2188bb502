// Package parser turns raw combined-log-format lines into structured records.
package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"loganalyzer/pkg/storage"
)

var (
	ErrLineFormat    = errors.New("line does not match combined log format")
	ErrRequestFormat = errors.New("request is not 'METHOD PATH PROTOCOL'")
	ErrTimestamp     = errors.New("invalid timestamp")
)

// timeLayout matches the combined-log timestamp, e.g. 10/Oct/2024:13:55:36 +0200.
const timeLayout = "02/Jan/2006:15:04:05 -0700"

// linePattern captures ip, timestamp, request, status, bytes, referrer and
// user agent from a combined-log line. Lines with a "-" byte count do not
// match and are rejected.
var linePattern = regexp.MustCompile(
	`^(\d+\.\d+\.\d+\.\d+) - - \[([^\]]+)\] "([^"]*)" (\d{3}) (\d+) "([^"]*)" "([^"]*)"`,
)

// Parse parses one access-log line. Malformed lines are rejected with a
// sentinel error; a rejection is a reportable outcome, never a panic.
// Referrer and user-agent values of "-" map to the empty string.
func Parse(line string) (storage.LogRecord, error) {
	m := linePattern.FindStringSubmatch(line)
	if m == nil {
		return storage.LogRecord{}, ErrLineFormat
	}

	request := strings.Fields(m[3])
	if len(request) != 3 {
		return storage.LogRecord{}, ErrRequestFormat
	}

	ts, err := time.Parse(timeLayout, m[2])
	if err != nil {
		return storage.LogRecord{}, fmt.Errorf("%w: %v", ErrTimestamp, err)
	}

	status, err := strconv.Atoi(m[4])
	if err != nil {
		return storage.LogRecord{}, fmt.Errorf("invalid status code %q: %w", m[4], err)
	}

	bytesSent, err := strconv.ParseInt(m[5], 10, 64)
	if err != nil {
		return storage.LogRecord{}, fmt.Errorf("invalid byte count %q: %w", m[5], err)
	}

	rec := storage.LogRecord{
		IPAddress:  m[1],
		Timestamp:  ts,
		Method:     request[0],
		Path:       request[1],
		StatusCode: status,
		BytesSent:  bytesSent,
		Referrer:   emptyIfDash(m[6]),
		UserAgent:  emptyIfDash(m[7]),
	}

	return rec, nil
}

func emptyIfDash(s string) string {
	if s == "-" {
		return ""
	}
	return s
}
