// Package report renders report result sets as terminal tables.
package report

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"loganalyzer/pkg/storage"
)

// Table is a rendered-ready result set: a header row plus data rows, all
// stringified.
type Table struct {
	Headers []string
	Rows    [][]string
}

func (t Table) Render(w io.Writer) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(t.Headers)
	tw.SetAutoFormatHeaders(false)
	tw.AppendBulk(t.Rows)
	tw.Render()
}

func TopIPs(rows []storage.IPCount) Table {
	t := Table{Headers: []string{"ip_address", "request_count"}}
	for _, r := range rows {
		t.Rows = append(t.Rows, []string{r.IPAddress, fmt.Sprint(r.RequestCount)})
	}
	return t
}

func StatusDistribution(rows []storage.StatusShare) Table {
	t := Table{Headers: []string{"status_code", "count", "percentage"}}
	for _, r := range rows {
		t.Rows = append(t.Rows, []string{
			fmt.Sprint(r.StatusCode),
			fmt.Sprint(r.Count),
			fmt.Sprintf("%.2f", r.Percentage),
		})
	}
	return t
}

func HourlyTraffic(rows []storage.HourCount) Table {
	t := Table{Headers: []string{"hour_of_day", "request_count"}}
	for _, r := range rows {
		t.Rows = append(t.Rows, []string{
			fmt.Sprintf("%02d:00", r.Hour),
			fmt.Sprint(r.RequestCount),
		})
	}
	return t
}

func TopPaths(rows []storage.PathCount) Table {
	t := Table{Headers: []string{"path", "request_count"}}
	for _, r := range rows {
		t.Rows = append(t.Rows, []string{r.Path, fmt.Sprint(r.RequestCount)})
	}
	return t
}

func UserAgentSummary(rows []storage.UserAgentCount) Table {
	t := Table{Headers: []string{"user_agent", "request_count"}}
	for _, r := range rows {
		t.Rows = append(t.Rows, []string{r.UserAgentString, fmt.Sprint(r.RequestCount)})
	}
	return t
}

func TrafficByOS(rows []storage.OSCount) Table {
	t := Table{Headers: []string{"os", "request_count"}}
	for _, r := range rows {
		t.Rows = append(t.Rows, []string{r.OS, fmt.Sprint(r.RequestCount)})
	}
	return t
}

func ErrorLogs(rows []storage.ErrorEntry) Table {
	t := Table{Headers: []string{"ip_address", "timestamp", "method", "path", "status_code"}}
	for _, r := range rows {
		t.Rows = append(t.Rows, []string{
			r.IPAddress,
			r.Timestamp.Format("2006-01-02 15:04:05"),
			r.Method,
			r.Path,
			fmt.Sprint(r.StatusCode),
		})
	}
	return t
}
