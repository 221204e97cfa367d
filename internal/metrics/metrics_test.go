package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestObserveAndWrite(t *testing.T) {
	m := New()
	m.Observe("/api/tools", "GET", 200, 15*time.Millisecond)
	m.Observe("/api/tools", "GET", 200, 5*time.Millisecond)
	m.Write("tools", "delete", 3)
	m.Write("tools", "update", 0)

	out := scrape(t, m)
	for _, want := range []string{
		`toolcatalog_http_requests_total{method="GET",route="/api/tools",status="200"} 2`,
		`toolcatalog_http_request_duration_seconds_count{method="GET",route="/api/tools"} 2`,
		`toolcatalog_catalog_writes_total{op="delete",resource="tools"} 3`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, `op="update"`) {
		t.Fatal("zero writes should not create a series")
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.Observe("/api/customers", "POST", 201, time.Millisecond)
	if strings.Contains(scrape(t, b), `route="/api/customers"`) {
		t.Fatal("metrics leaked between registries")
	}
}
