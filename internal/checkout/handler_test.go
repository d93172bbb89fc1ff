package checkout_test

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/kiosk-inventory/internal/checkout"
	"github.com/odyssey-erp/kiosk-inventory/internal/inventory"
)

func newTestRouter(f fixture) http.Handler {
	r := chi.NewRouter()
	checkout.NewHandler(nil, f.svc).MountRoutes(r)
	return r
}

func post(router http.Handler, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerCheckoutSuccess(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f)

	rec := post(router, "/checkout", `{"vendorId":100,"items":[{"productId":1,"quantity":2},{"manualName":"Tape","quantity":1,"unitPrice":"3.50"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body struct {
		Success       bool                     `json:"success"`
		TransactionID int64                    `json:"transactionId"`
		Code          string                   `json:"code"`
		TotalAmount   string                   `json:"totalAmount"`
		StockSnapshot []checkout.StockSnapshot `json:"stockSnapshot"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Success)
	require.NotZero(t, body.TransactionID)
	require.NotEmpty(t, body.Code)
	require.Equal(t, "243.5", body.TotalAmount)
	require.Len(t, body.StockSnapshot, 1)
	require.Equal(t, int64(8), body.StockSnapshot[0].ExpectedStock)
}

func TestHandlerCheckoutShortage(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f)

	rec := post(router, "/checkout", `{"vendorId":100,"items":[{"productId":1,"quantity":1},{"productId":2,"quantity":5}]}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	var body struct {
		Success   bool   `json:"success"`
		Type      string `json:"type"`
		Shortages []struct {
			ProductID int64 `json:"productId"`
			Available int64 `json:"available"`
			Requested int64 `json:"requested"`
		} `json:"shortages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.False(t, body.Success)
	require.Equal(t, "insufficient-stock", body.Type)
	require.Len(t, body.Shortages, 1)
	require.Equal(t, productB, body.Shortages[0].ProductID)
	require.Equal(t, int64(3), body.Shortages[0].Available)
	require.Equal(t, int64(5), body.Shortages[0].Requested)
	require.Equal(t, int64(10), f.inv.Qty(inventory.ProductRef(productA)))
}

func TestHandlerCheckoutValidation(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f)

	cases := map[string]string{
		"no items":         `{"vendorId":100,"items":[]}`,
		"product and name": `{"vendorId":100,"items":[{"productId":1,"manualName":"x","quantity":1}]}`,
		"bad date":         `{"vendorId":100,"isProxy":true,"transactionDate":"yesterday","items":[{"productId":1,"quantity":1}]}`,
		"malformed":        `{"vendorId":`,
		"huge quantity":    `{"vendorId":100,"items":[{"productId":1,"quantity":4611686018427387904}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := post(router, "/checkout", body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestHandlerDuplicateSubmit(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f)
	body := `{"vendorId":100,"items":[{"productId":1,"quantity":1}]}`

	rec := post(router, "/checkout", body, "Idempotency-Key", "kiosk-2:7")
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = post(router, "/checkout", body, "Idempotency-Key", "kiosk-2:7")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, int64(9), f.inv.Qty(inventory.ProductRef(productA)))
}

func TestHandlerAirconReturnTwice(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f)

	rec := post(router, "/checkout/aircon", `{"vendorId":100,"items":[{"modelNumber":"RAS-2210TX"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Logs      []checkout.AirconLog `json:"logs"`
		Unmatched []string             `json:"unmatched"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Len(t, created.Logs, 1)
	require.Empty(t, created.Unmatched)

	path := "/aircon-logs/" + strconv.FormatInt(created.Logs[0].ID, 10) + "/return"
	rec = post(router, path, ``)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = post(router, path, ``)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, int64(2), f.inv.Qty(inventory.AirconRef(unitRAS)))
}
