package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"loganalyzer/pkg/storage"
	"loganalyzer/pkg/storage/memdb"
)

func TestMain(m *testing.M) {
	log.SetLevel(log.PanicLevel)
	exitCode := m.Run()
	os.Exit(exitCode)
}

func populatedDB(t *testing.T) *memdb.Store {
	t.Helper()

	db := memdb.New()
	ts := time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC)

	var entries []storage.Entry
	for i := 0; i < 5; i++ {
		entries = append(entries, storage.Entry{Record: storage.LogRecord{
			IPAddress:  "10.0.0.1",
			Timestamp:  ts.Add(time.Duration(i) * time.Second),
			Method:     "GET",
			Path:       "/home",
			StatusCode: 200,
			BytesSent:  100,
		}})
	}
	entries = append(entries, storage.Entry{Record: storage.LogRecord{
		IPAddress:  "10.0.0.2",
		Timestamp:  ts.Add(time.Hour),
		Method:     "GET",
		Path:       "/missing",
		StatusCode: 404,
		BytesSent:  100,
	}})

	err := db.InsertEntries(context.Background(), entries)
	if err != nil {
		t.Fatalf("unexpected error while populating DB: %v", err)
	}

	return db
}

func TestAPI_topIPsHandler(t *testing.T) {
	api := New(populatedDB(t))

	req := httptest.NewRequest(http.MethodGet, "/reports/top-ips?n=1", nil)
	rr := httptest.NewRecorder()

	api.Router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("want status code %v, got status code %v", http.StatusOK, rr.Code)
	}

	b, err := io.ReadAll(rr.Body)
	if err != nil {
		t.Fatalf("unexpected error while reading response body: %v", err)
	}

	var rows []storage.IPCount
	err = json.Unmarshal(b, &rows)
	if err != nil {
		t.Fatalf("unexpected error while unmarshaling rows: %v", err)
	}

	if len(rows) != 1 {
		t.Fatalf("want 1 row, got %d", len(rows))
	}
	if rows[0].IPAddress != "10.0.0.1" || rows[0].RequestCount != 5 {
		t.Errorf("want {10.0.0.1 5}, got %+v", rows[0])
	}
}

func TestAPI_limitTooBig(t *testing.T) {
	api := New(populatedDB(t))

	for _, path := range []string{"/reports/top-ips", "/reports/top-paths", "/reports/user-agents"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("%s?n=%d", path, maxLimit+1), nil)
			rr := httptest.NewRecorder()

			api.Router.ServeHTTP(rr, req)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("want status code %v, got status code %v", http.StatusBadRequest, rr.Code)
			}
		})
	}
}

func TestAPI_errorLogsHandlerDateValidation(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		statusWant int
	}{
		{name: "missing date", query: "", statusWant: http.StatusBadRequest},
		{name: "invalid date", query: "?date=01-01-2024", statusWant: http.StatusBadRequest},
		{name: "valid date", query: "?date=2024-01-01", statusWant: http.StatusOK},
	}

	api := New(populatedDB(t))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/reports/errors"+tt.query, nil)
			rr := httptest.NewRecorder()

			api.Router.ServeHTTP(rr, req)
			if rr.Code != tt.statusWant {
				t.Errorf("want status code %v, got status code %v", tt.statusWant, rr.Code)
			}
		})
	}
}

func TestAPI_errorLogsHandler(t *testing.T) {
	api := New(populatedDB(t))

	req := httptest.NewRequest(http.MethodGet, "/reports/errors?date=2024-01-01", nil)
	rr := httptest.NewRecorder()

	api.Router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("want status code %v, got status code %v", http.StatusOK, rr.Code)
	}

	var rows []storage.ErrorEntry
	if err := json.NewDecoder(rr.Body).Decode(&rows); err != nil {
		t.Fatalf("unexpected error while unmarshaling rows: %v", err)
	}

	if len(rows) != 1 {
		t.Fatalf("want 1 error row, got %d", len(rows))
	}
	if rows[0].Path != "/missing" || rows[0].StatusCode != 404 {
		t.Errorf("want {/missing 404}, got %+v", rows[0])
	}
}

func TestAPI_requestIDHeader(t *testing.T) {
	api := New(memdb.New())

	req := httptest.NewRequest(http.MethodGet, "/reports/hourly-traffic", nil)
	rr := httptest.NewRecorder()

	api.Router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("want status code %v, got status code %v", http.StatusOK, rr.Code)
	}
	if rr.Header().Get("X-Request-Id") == "" {
		t.Error("want generated X-Request-Id header, got none")
	}

	req = httptest.NewRequest(http.MethodGet, "/reports/hourly-traffic", nil)
	req.Header.Set("X-Request-Id", "test-id")
	rr = httptest.NewRecorder()

	api.Router.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Request-Id"); got != "test-id" {
		t.Errorf("want X-Request-Id %q echoed back, got %q", "test-id", got)
	}
}
