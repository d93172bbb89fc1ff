package reconcile_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/kiosk-inventory/internal/reconcile"
)

func newTestRouter(f fixture) http.Handler {
	r := chi.NewRouter()
	reconcile.NewHandler(nil, f.svc).MountRoutes(r)
	return r
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerAuditReport(t *testing.T) {
	f := newFixture(t, nil)
	f.inv.Tamper(productA, 9)
	router := newTestRouter(f)

	rec := do(router, http.MethodGet, "/audit/product/1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		LedgerSum  int64 `json:"ledger_sum"`
		LiveStock  int64 `json:"live_stock"`
		Drift      int64 `json:"drift"`
		Consistent bool  `json:"consistent"`
		Timeline   []struct {
			EventType string `json:"event_type"`
		} `json:"timeline"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, int64(10), body.LedgerSum)
	require.Equal(t, int64(9), body.LiveStock)
	require.Equal(t, int64(-1), body.Drift)
	require.False(t, body.Consistent)
	require.Len(t, body.Timeline, 1)

	rec = do(router, http.MethodGet, "/audit/pallet/1", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(router, http.MethodGet, "/audit/aircon/404", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerCorrectDrift(t *testing.T) {
	f := newFixture(t, nil)
	f.inv.Tamper(productB, 6)
	router := newTestRouter(f)

	rec := do(router, http.MethodPost, "/audit/product/2/correct", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(router, http.MethodPost, "/audit/product/2/correct", `{"note":"late delivery booked by hand"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Drift     int64 `json:"drift"`
		Corrected bool  `json:"corrected"`
		Entry     struct {
			EventType  string `json:"event_type"`
			Delta      int64  `json:"delta"`
			StockAfter int64  `json:"stock_after"`
		} `json:"entry"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, int64(2), body.Drift)
	require.True(t, body.Corrected)
	require.Equal(t, "ADJUSTMENT", body.Entry.EventType)
	require.Equal(t, int64(6), body.Entry.StockAfter)

	rec = do(router, http.MethodGet, "/audit/drift", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var summary reconcile.ScanSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	require.Empty(t, summary.Items)
}
