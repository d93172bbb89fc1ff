package orders_test

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/kiosk-inventory/internal/orders"
)

func TestHandlerReceiveReportsStatus(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct(1, "PIPE-2", 0, 0, 1)
	repo.addProduct(2, "TAPE-W", 0, 0, 1)
	svc := newService(repo)
	router := chi.NewRouter()
	orders.NewHandler(nil, svc, orders.ReorderPolicy{Multiplier: 2}).MountRoutes(router)

	o := placedOrder(t, svc, orders.ItemInput{ProductID: 1, Quantity: 5}, orders.ItemInput{ProductID: 2, Quantity: 3})

	body := `{"orderItemId":` + strconv.FormatInt(o.Items[0].ID, 10) + `,"quantity":5}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/order-items/receive", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Success bool          `json:"success"`
		OrderID int64         `json:"orderId"`
		Status  orders.Status `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, o.ID, resp.OrderID)
	require.Equal(t, orders.StatusPartial, resp.Status)

	path := "/order-items/" + strconv.FormatInt(o.Items[1].ID, 10) + "/receive"
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"quantity":4}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code, "overage")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"quantity":3}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, orders.StatusReceived, resp.Status)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"quantity":1}`)))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerReorderDrafts(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct(1, "PIPE-2", 1, 5, 1)
	svc := newService(repo)
	router := chi.NewRouter()
	orders.NewHandler(nil, svc, orders.ReorderPolicy{Multiplier: 3}).MountRoutes(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/reorder-drafts", nil))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		Created bool         `json:"created"`
		Order   orders.Order `json:"order"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Created)
	require.Equal(t, int64(14), resp.Order.Items[0].QtyOrdered)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/reorder-drafts", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
