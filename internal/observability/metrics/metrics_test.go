package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("reason", "last_manager"),
		attribute.String("user_id", "456"),
		attribute.String("kind", "effective_role"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "reason" && attrs[1].Key != "reason" {
		t.Fatalf("expected reason to be retained")
	}
	if attrs[0].Key != "kind" && attrs[1].Key != "kind" {
		t.Fatalf("expected kind to be retained")
	}
}

func TestHTTPMetricsRecordsRequests(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newHTTPMetrics(registry)

	m.requests.WithLabelValues("GET", "/api/orgs/:org_id/roles", "200").Inc()
	m.requests.WithLabelValues("GET", "/api/orgs/:org_id/roles", "200").Inc()
	m.requests.WithLabelValues("POST", "/api/orgs/:org_id/members", "409").Inc()

	got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/api/orgs/:org_id/roles", "200"))
	if got != 2 {
		t.Fatalf("expected 2 recorded requests, got %v", got)
	}
}
