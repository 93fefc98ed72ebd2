package daemon

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetricsEndpoint(t *testing.T) {
	linesRead.WithLabelValues("info").Inc()
	sessionsStarted.WithLabelValues("main").Inc()

	srv := httptest.NewServer(metricsMux())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, name := range []string{
		"logcatview_lines_read_total",
		"logcatview_sessions_started_total",
		"logcatview_history_entries",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
