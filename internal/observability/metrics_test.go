package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/kiosk-inventory/internal/inventory"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesLedgerMetrics(t *testing.T) {
	metrics := NewMetrics()

	body := scrape(t, metrics)
	if !strings.Contains(body, `kiosk_ledger_movements_total{event_type="CHECKOUT"} 0`) {
		t.Fatalf("expected zeroed movement series, got: %s", body)
	}
	if !strings.Contains(body, "kiosk_ledger_drift_items 0") {
		t.Fatalf("expected drift gauge, got: %s", body)
	}
}

func TestMetricsObserveLedger(t *testing.T) {
	metrics := NewMetrics()
	recorder := inventory.NewRecorder(metrics)

	recorder.Committed(
		inventory.LedgerEntry{Ref: inventory.ProductRef(1), EventType: inventory.EventCheckout, Delta: -2},
		inventory.LedgerEntry{Ref: inventory.ProductRef(2), EventType: inventory.EventCheckout, Delta: -1},
	)
	metrics.MovementRejected(inventory.MovementRejectedEvent{Ref: inventory.ProductRef(1), Reason: inventory.RejectInsufficientStock})
	metrics.SetDriftItems(4)

	body := scrape(t, metrics)
	for _, want := range []string{
		`kiosk_ledger_movements_total{event_type="CHECKOUT"} 2`,
		`kiosk_ledger_rejections_total{reason="insufficient_stock"} 1`,
		"kiosk_ledger_drift_items 4",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q, got: %s", want, body)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var metrics *Metrics
	metrics.SetDriftItems(3)
	metrics.MovementRecorded(inventory.MovementRecordedEvent{})

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/checkout")

	req := httptest.NewRequest(http.MethodPost, "/checkout", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status %d, got %d", http.StatusConflict, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, "kiosk_http_requests_total{code=\"409\",route=\"/checkout\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, "kiosk_http_request_duration_seconds_bucket{route=\"/checkout\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", body)
	}
}
