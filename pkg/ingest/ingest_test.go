package ingest

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"

	"loganalyzer/pkg/storage/memdb"
)

func TestMain(m *testing.M) {
	log.SetLevel(log.PanicLevel)
	exitCode := m.Run()
	os.Exit(exitCode)
}

const chromeUA = "Mozilla/5.0 (Windows NT 10.0) Chrome/91 Safari/537"

func logLine(ip string, second int, path string, status int, ua string) string {
	return fmt.Sprintf(
		`%s - - [01/Jan/2024:10:%02d:%02d +0000] "GET %s HTTP/1.1" %d 1024 "-" "%s"`,
		ip, second/60, second%60, path, status, ua,
	)
}

func TestProcessor_Process(t *testing.T) {
	// 95 well-formed lines, 60 of them from one loud client, plus 5
	// malformed lines scattered through the file.
	var lines []string
	for i := 0; i < 60; i++ {
		lines = append(lines, logLine("10.0.0.1", i, "/home", 200, chromeUA))
	}
	for i := 0; i < 35; i++ {
		lines = append(lines, logLine(fmt.Sprintf("10.0.1.%d", i), i, "/about", 200, chromeUA))
	}
	malformed := []string{
		"complete garbage",
		`1.2.3.4 - - [notadate] "GET / HTTP/1.1" 200 10 "-" "-"`,
		`1.2.3.4 - - [01/Jan/2024:10:00:00 +0000] "GET /" 200 10 "-" "-"`,
		`1.2.3.4 - - [01/Jan/2024:10:00:00 +0000] "GET / HTTP/1.1" xxx 10 "-" "-"`,
		`1.2.3.4 - - [01/Jan/2024:10:00:00 +0000] "GET / HTTP/1.1" 200 - "-" "-"`,
	}
	for i, m := range malformed {
		lines = append(lines[:i*20], append([]string{m}, lines[i*20:]...)...)
	}
	if len(lines) != 100 {
		t.Fatalf("test setup: want 100 lines, got %d", len(lines))
	}

	db := memdb.New()
	p := NewProcessor(db)
	p.BatchSize = 16 // force multiple flushes

	sum, err := p.Process(context.Background(), strings.NewReader(strings.Join(lines, "\n")))
	if err != nil {
		t.Fatalf("Process() returned error: %v", err)
	}

	if sum.Accepted != 95 {
		t.Errorf("want 95 accepted lines, got %d", sum.Accepted)
	}
	if sum.Rejected != 5 {
		t.Errorf("want 5 rejected lines, got %d", sum.Rejected)
	}

	ips, err := db.TopIPs(context.Background(), 1)
	if err != nil {
		t.Fatalf("TopIPs() returned error: %v", err)
	}
	if len(ips) != 1 || ips[0].IPAddress != "10.0.0.1" || ips[0].RequestCount != 60 {
		t.Errorf("want top IP {10.0.0.1 60}, got %+v", ips)
	}
}

func TestProcessor_ProcessCreatesOneDimensionRow(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 10; i++ {
		sb.WriteString(logLine("10.0.0.1", i, fmt.Sprintf("/p%d", i), 200, chromeUA))
		sb.WriteString("\n")
	}

	db := memdb.New()
	sum, err := NewProcessor(db).Process(context.Background(), strings.NewReader(sb.String()))
	if err != nil {
		t.Fatalf("Process() returned error: %v", err)
	}
	if sum.Accepted != 10 {
		t.Fatalf("want 10 accepted lines, got %d", sum.Accepted)
	}

	agents, err := db.UserAgentSummary(context.Background(), 10)
	if err != nil {
		t.Fatalf("UserAgentSummary() returned error: %v", err)
	}
	if len(agents) != 1 {
		t.Fatalf("want 1 distinct user agent, got %d", len(agents))
	}
	if agents[0].UserAgentString != chromeUA || agents[0].RequestCount != 10 {
		t.Errorf("want {%q 10}, got %+v", chromeUA, agents[0])
	}
}

func TestProcessor_ProcessMissingUserAgent(t *testing.T) {
	line := `10.0.0.1 - - [01/Jan/2024:10:00:00 +0000] "GET / HTTP/1.1" 200 10 "-" "-"`

	db := memdb.New()
	sum, err := NewProcessor(db).Process(context.Background(), strings.NewReader(line))
	if err != nil {
		t.Fatalf("Process() returned error: %v", err)
	}
	if sum.Accepted != 1 {
		t.Fatalf("want 1 accepted line, got %d", sum.Accepted)
	}

	// No dimension row may be created for an absent user agent.
	agents, err := db.UserAgentSummary(context.Background(), 10)
	if err != nil {
		t.Fatalf("UserAgentSummary() returned error: %v", err)
	}
	if len(agents) != 0 {
		t.Errorf("want no user agent rows, got %+v", agents)
	}
}

func TestProcessor_ProcessFileNotExist(t *testing.T) {
	_, err := NewProcessor(memdb.New()).ProcessFile(context.Background(), "no/such/file.log")
	if err == nil {
		t.Error("want error for missing file, got nil")
	}
}
