package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/boddenberg/finance-core/internal/domain"
	"github.com/boddenberg/finance-core/internal/handler"
	"github.com/boddenberg/finance-core/internal/infra/cache"
	"github.com/boddenberg/finance-core/internal/infra/docstore"
	"github.com/boddenberg/finance-core/internal/infra/memory"
	"github.com/boddenberg/finance-core/internal/infra/observability"
	"github.com/boddenberg/finance-core/internal/port"
	"github.com/boddenberg/finance-core/internal/service"

	"go.uber.org/zap"
)

const testSecret = "test-secret"

var testNow = time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)

type testServer struct {
	router http.Handler
	auth   *service.AuthService
}

type downStore struct{}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func newTestServer(t *testing.T, store handler.Pinger) *testServer {
	t.Helper()

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	clock := port.ClockFunc(func() time.Time { return testNow })

	mem := memory.NewStore()
	repo := docstore.New(mem, "memory", metrics)
	catCache := cache.New[[]domain.Category](time.Minute, cache.WithMetrics("categories", metrics))
	t.Cleanup(catCache.Close)

	merchants := service.NewMerchantAggregator(repo, clock, metrics, logger)
	auth := service.NewAuthService(testSecret, time.Hour, logger)

	if store == nil {
		store = mem
	}

	router := handler.NewRouter(handler.Services{
		Transactions: service.NewTransactionService(repo, merchants, clock, 0, metrics, logger),
		Categories:   service.NewCategoryService(repo, catCache, clock, metrics, logger),
		Merchants:    merchants,
		Statistics:   service.NewStatisticsAggregator(repo, repo, clock, time.Monday, metrics, logger),
		Auth:         auth,
		Store:        store,
		Backend:      "memory",
	}, metrics, logger)

	return &testServer{router: router, auth: auth}
}

func (s *testServer) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		token, err := s.auth.IssueAccessToken(userID)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

// --- Operational ---

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	health := decode[domain.HealthStatus](t, rec)
	if health.Status != "healthy" {
		t.Errorf("expected healthy, got %s", health.Status)
	}
	if len(health.Services) != 2 {
		t.Errorf("expected 2 services, got %d", len(health.Services))
	}
}

func TestHealthz_DegradedStore(t *testing.T) {
	srv := newTestServer(t, downStore{})

	health := decode[domain.HealthStatus](t, srv.do(t, http.MethodGet, "/healthz", "", nil))
	if health.Status != "degraded" {
		t.Errorf("expected degraded, got %s", health.Status)
	}
}

func TestReadyz(t *testing.T) {
	if rec := newTestServer(t, nil).do(t, http.MethodGet, "/readyz", "", nil); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec := newTestServer(t, downStore{}).do(t, http.MethodGet, "/readyz", "", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	rec := newTestServer(t, nil).do(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

// --- Auth ---

func TestAPI_RequiresToken(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/v1/transactions", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestAPI_RejectsMalformedToken(t *testing.T) {
	srv := newTestServer(t, nil)

	for _, header := range []string{"Token abc", "Bearer not-a-jwt"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/categories", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		srv.router.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%q: expected 401, got %d", header, rec.Code)
		}
	}
}

// --- Transactions ---

func TestCreateTransaction_WithMerchant(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodPost, "/v1/transactions", "u1", domain.TransactionInput{
		Amount:       12.5,
		Type:         domain.TransactionExpense,
		CategoryID:   "food",
		CategoryName: "Food",
		MerchantName: "Corner Cafe",
		Date:         testNow,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	result := decode[domain.TransactionResult](t, rec)
	if result.Transaction == nil || result.Transaction.ID == "" {
		t.Fatal("expected persisted transaction with id")
	}
	if result.Merchant == nil {
		t.Fatal("expected merchant in result")
	}
	if result.Merchant.Stats.VisitCount != 1 {
		t.Errorf("expected 1 visit, got %d", result.Merchant.Stats.VisitCount)
	}
	if result.MerchantError != "" {
		t.Errorf("unexpected merchant error: %s", result.MerchantError)
	}
}

func TestCreateTransaction_Invalid(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodPost, "/v1/transactions", "u1", domain.TransactionInput{
		Amount:     -1,
		Type:       domain.TransactionExpense,
		CategoryID: "food",
		Date:       testNow,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestCreateTransaction_BadBody(t *testing.T) {
	srv := newTestServer(t, nil)
	token, _ := srv.auth.IssueAccessToken("u1")

	req := httptest.NewRequest(http.MethodPost, "/v1/transactions", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestTransactions_ListLimitAndOwnership(t *testing.T) {
	srv := newTestServer(t, nil)

	for i := 0; i < 3; i++ {
		rec := srv.do(t, http.MethodPost, "/v1/transactions", "u1", domain.TransactionInput{
			Amount:     float64(i + 1),
			Type:       domain.TransactionIncome,
			CategoryID: "salary",
			Date:       testNow.Add(-time.Duration(i) * time.Hour),
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("create %d: got %d", i, rec.Code)
		}
	}

	list := decode[struct {
		Transactions []domain.Transaction `json:"transactions"`
	}](t, srv.do(t, http.MethodGet, "/v1/transactions?limit=2", "u1", nil))
	if len(list.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(list.Transactions))
	}
	if list.Transactions[0].Amount != 1 {
		t.Errorf("expected newest first, got amount %v", list.Transactions[0].Amount)
	}

	other := decode[struct {
		Transactions []domain.Transaction `json:"transactions"`
	}](t, srv.do(t, http.MethodGet, "/v1/transactions", "u2", nil))
	if len(other.Transactions) != 0 {
		t.Errorf("expected no transactions for u2, got %d", len(other.Transactions))
	}

	if rec := srv.do(t, http.MethodGet, "/v1/transactions?limit=abc", "u1", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", rec.Code)
	}
}

func TestTransactions_UpdateAndDelete(t *testing.T) {
	srv := newTestServer(t, nil)

	created := decode[domain.TransactionResult](t, srv.do(t, http.MethodPost, "/v1/transactions", "u1", domain.TransactionInput{
		Amount:     10,
		Type:       domain.TransactionExpense,
		CategoryID: "food",
		Date:       testNow,
	}))
	id := created.Transaction.ID

	rec := srv.do(t, http.MethodPut, "/v1/transactions/"+id, "u1", domain.TransactionInput{
		Amount:     20,
		Type:       domain.TransactionExpense,
		CategoryID: "food",
		Date:       testNow,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	updated := decode[domain.TransactionResult](t, rec)
	if updated.Transaction.Amount != 20 {
		t.Errorf("expected amount 20, got %v", updated.Transaction.Amount)
	}

	if rec := srv.do(t, http.MethodPut, "/v1/transactions/"+id, "u2", domain.TransactionInput{
		Amount: 1, Type: domain.TransactionExpense, CategoryID: "food", Date: testNow,
	}); rec.Code != http.StatusNotFound {
		t.Errorf("foreign update: expected 404, got %d", rec.Code)
	}

	if rec := srv.do(t, http.MethodDelete, "/v1/transactions/"+id, "u1", nil); rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rec.Code)
	}
	if rec := srv.do(t, http.MethodGet, "/v1/transactions/"+id, "u1", nil); rec.Code != http.StatusNotFound {
		t.Errorf("after delete: expected 404, got %d", rec.Code)
	}
}

// --- Statistics ---

func TestStatistics(t *testing.T) {
	srv := newTestServer(t, nil)

	inputs := []domain.TransactionInput{
		{Amount: 100, Type: domain.TransactionIncome, CategoryID: "salary", CategoryName: "Salary", Date: testNow.AddDate(0, 0, -1)},
		{Amount: 30, Type: domain.TransactionExpense, CategoryID: "food", CategoryName: "Food", Date: testNow},
		// previous month, outside the month period
		{Amount: 999, Type: domain.TransactionExpense, CategoryID: "food", CategoryName: "Food", Date: testNow.AddDate(0, -1, 0)},
	}
	for _, in := range inputs {
		if rec := srv.do(t, http.MethodPost, "/v1/transactions", "u1", in); rec.Code != http.StatusCreated {
			t.Fatalf("create: got %d", rec.Code)
		}
	}

	rec := srv.do(t, http.MethodGet, "/v1/statistics?period=month", "u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	stats := decode[domain.TransactionStatistics](t, rec)
	if stats.TotalIncome != 100 || stats.TotalExpense != 30 {
		t.Errorf("expected income 100 expense 30, got %v/%v", stats.TotalIncome, stats.TotalExpense)
	}
	if len(stats.CategoryBreakdown) != 2 {
		t.Fatalf("expected 2 breakdown rows, got %d", len(stats.CategoryBreakdown))
	}
	if stats.CategoryBreakdown[0].CategoryID != "salary" {
		t.Errorf("expected salary first, got %s", stats.CategoryBreakdown[0].CategoryID)
	}
}

func TestStatistics_InvalidPeriod(t *testing.T) {
	srv := newTestServer(t, nil)

	if rec := srv.do(t, http.MethodGet, "/v1/statistics?period=decade", "u1", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

// --- Categories ---

func TestCategories_SeedAddDelete(t *testing.T) {
	srv := newTestServer(t, nil)

	seeded := decode[struct {
		Categories []domain.Category `json:"categories"`
	}](t, srv.do(t, http.MethodPost, "/v1/categories/seed", "u1", nil))
	if len(seeded.Categories) == 0 {
		t.Fatal("expected default categories")
	}

	if rec := srv.do(t, http.MethodDelete, "/v1/categories/"+seeded.Categories[0].ID, "u1", nil); rec.Code != http.StatusForbidden {
		t.Errorf("delete default: expected 403, got %d", rec.Code)
	}

	rec := srv.do(t, http.MethodPost, "/v1/categories", "u1", domain.Category{Name: "Pets", Icon: "🐶", Color: "#795548"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	pets := decode[domain.Category](t, rec)

	if rec := srv.do(t, http.MethodPost, "/v1/categories", "u1", domain.Category{Name: "Pets"}); rec.Code != http.StatusConflict {
		t.Errorf("duplicate: expected 409, got %d", rec.Code)
	}

	list := decode[struct {
		Categories []domain.Category `json:"categories"`
	}](t, srv.do(t, http.MethodGet, "/v1/categories", "u1", nil))
	if len(list.Categories) != len(seeded.Categories)+1 {
		t.Errorf("expected %d categories, got %d", len(seeded.Categories)+1, len(list.Categories))
	}

	if rec := srv.do(t, http.MethodDelete, "/v1/categories/"+pets.ID, "u1", nil); rec.Code != http.StatusOK {
		t.Errorf("delete custom: expected 200, got %d", rec.Code)
	}
}

// --- Merchants ---

func TestMerchants_ResolveRecordAndNote(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodPost, "/v1/merchants/resolve", "u1", domain.MerchantSelection{Name: "Green Grocer"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("resolve: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	resolved := decode[struct {
		Merchant *domain.Merchant `json:"merchant"`
		Created  bool             `json:"created"`
	}](t, rec)
	if !resolved.Created || resolved.Merchant.MerchantKey != "greengrocer" {
		t.Fatalf("unexpected resolve result: %+v", resolved)
	}
	id := resolved.Merchant.ID

	again := srv.do(t, http.MethodPost, "/v1/merchants/resolve", "u1", domain.MerchantSelection{Name: "  green grocer "})
	if again.Code != http.StatusOK {
		t.Errorf("second resolve: expected 200, got %d", again.Code)
	}

	rec = srv.do(t, http.MethodPost, "/v1/merchants/"+id+"/transactions", "u1", domain.RecentTransaction{
		ID:     "t1",
		Amount: 8,
		Date:   testNow,
		Type:   domain.TransactionExpense,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("record: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	m := decode[domain.Merchant](t, rec)
	if m.Stats.VisitCount != 1 || m.Stats.TotalSpending != 8 {
		t.Errorf("unexpected stats: %+v", m.Stats)
	}

	rating := 4
	rec = srv.do(t, http.MethodPut, "/v1/merchants/"+id+"/note", "u1", domain.MerchantNote{Rating: &rating, Tips: []string{"ask for the day's special"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("note: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	bad := 9
	if rec := srv.do(t, http.MethodPut, "/v1/merchants/"+id+"/note", "u1", domain.MerchantNote{Rating: &bad}); rec.Code != http.StatusBadRequest {
		t.Errorf("bad rating: expected 400, got %d", rec.Code)
	}

	list := decode[struct {
		Merchants []domain.Merchant `json:"merchants"`
	}](t, srv.do(t, http.MethodGet, "/v1/merchants?search=grocer", "u1", nil))
	if len(list.Merchants) != 1 {
		t.Fatalf("expected 1 merchant, got %d", len(list.Merchants))
	}
	if list.Merchants[0].Note.Rating == nil || *list.Merchants[0].Note.Rating != 4 {
		t.Errorf("expected rating 4 to be persisted")
	}

	if rec := srv.do(t, http.MethodGet, "/v1/merchants/"+id, "u2", nil); rec.Code != http.StatusNotFound {
		t.Errorf("foreign get: expected 404, got %d", rec.Code)
	}

	if rec := srv.do(t, http.MethodDelete, "/v1/merchants/"+id, "u1", nil); rec.Code != http.StatusOK {
		t.Errorf("delete: expected 200, got %d", rec.Code)
	}
	if rec := srv.do(t, http.MethodGet, "/v1/merchants/"+id, "u1", nil); rec.Code != http.StatusNotFound {
		t.Errorf("after delete: expected 404, got %d", rec.Code)
	}
}

func TestMerchants_RecordUnknown(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodPost, "/v1/merchants/missing/transactions", "u1", domain.RecentTransaction{
		ID: "t1", Amount: 1, Date: testNow, Type: domain.TransactionExpense,
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestCoreMetrics(t *testing.T) {
	srv := newTestServer(t, nil)

	srv.do(t, http.MethodPost, "/v1/merchants/resolve", "u1", domain.MerchantSelection{Name: "Bakery"})

	rec := srv.do(t, http.MethodGet, "/v1/metrics/core", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	snap := decode[domain.CoreMetrics](t, rec)
	if snap.EventsEmitted[string(domain.EventMerchantsChanged)] != 1 {
		t.Errorf("expected 1 merchantsChanged event, got %v", snap.EventsEmitted)
	}
}
