package inventory_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/kiosk-inventory/internal/inventory"
	"github.com/odyssey-erp/kiosk-inventory/internal/inventory/inventorytest"
	"github.com/odyssey-erp/kiosk-inventory/internal/shared"
)

func newTestRouter(store *inventorytest.Store) http.Handler {
	svc := inventory.NewService(store, inventory.NewRecorder(nil), nil, nil)
	r := chi.NewRouter()
	inventory.NewHandler(nil, svc).MountRoutes(r)
	return r
}

func TestHandlerAdjustmentAndStockCard(t *testing.T) {
	store := inventorytest.NewStore()
	store.Seed(inventory.ProductRef(5), "BRKT-L", 4)
	router := newTestRouter(store)

	body := `{"kind":"product","id":5,"delta":-1,"reason":"bent in transit"}`
	req := httptest.NewRequest(http.MethodPost, "/movements", strings.NewReader(body))
	req = req.WithContext(shared.ContextWithActor(context.Background(), 3))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var entry inventory.EntryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	require.Equal(t, inventory.EventAdjustment, entry.EventType)
	require.Equal(t, int64(3), entry.StockAfter)
	require.Equal(t, int64(3), entry.ActorID)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stock-card?kind=product&id=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var card struct {
		Stock   int64                     `json:"stock"`
		Entries []inventory.EntryResponse `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &card))
	require.Equal(t, int64(3), card.Stock)
	require.Len(t, card.Entries, 2)
}

func TestHandlerRejectsAdjustmentWithoutReason(t *testing.T) {
	store := inventorytest.NewStore()
	store.Seed(inventory.ProductRef(5), "BRKT-L", 4)
	router := newTestRouter(store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/movements", strings.NewReader(`{"kind":"product","id":5,"delta":2}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, int64(4), store.Qty(inventory.ProductRef(5)))
}

func TestHandlerStockCardUnknownKind(t *testing.T) {
	router := newTestRouter(inventorytest.NewStore())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stock-card?kind=bin&id=1", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
