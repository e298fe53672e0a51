package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cartscout/comparison"
	"cartscout/config"
	"cartscout/models"
	"cartscout/scraper"
	"cartscout/services"

	"github.com/gorilla/mux"
)

type fakeDiscovery struct {
	discoverFn func(ctx context.Context, products []models.CartProduct, currentHostname string) ([]models.HostnameScore, error)
}

func (f fakeDiscovery) DiscoverSites(ctx context.Context, products []models.CartProduct, currentHostname string) ([]models.HostnameScore, error) {
	return f.discoverFn(ctx, products, currentHostname)
}

type fakeShopper struct {
	shopFn func(ctx context.Context, site string, products []models.CartProduct) (*models.AlternativeCart, error)
}

func (f fakeShopper) ShopSite(ctx context.Context, site string, products []models.CartProduct) (*models.AlternativeCart, error) {
	return f.shopFn(ctx, site, products)
}

// testHandlers builds the handler set around an orchestrator with fake
// collaborators, so no browser, search API or database is touched.
func testHandlers(t *testing.T, discovery comparison.SiteDiscoverer, shopper comparison.CartShopper) *Handlers {
	t.Helper()

	cfg := &config.Config{
		SiteBatchSize: 2,
		MaxAttempts:   4,
		MaxResults:    3,
		SiteTimeout:   2 * time.Second,
	}
	apiCfg := config.DefaultAPIConfig()
	orch := comparison.NewOrchestrator(cfg, discovery, shopper, nil)

	h := NewHandlers(cfg, apiCfg, orch, scraper.NewBrowserController(cfg), scraper.NewExtractor(cfg, nil, nil), services.NewAPIKeyService(apiCfg))
	t.Cleanup(h.Close)
	return h
}

func oneSiteDiscovery(host string) fakeDiscovery {
	return fakeDiscovery{discoverFn: func(context.Context, []models.CartProduct, string) ([]models.HostnameScore, error) {
		return []models.HostnameScore{{Hostname: host, NormalizedHostname: host, FinalScore: 1.0}}, nil
	}}
}

// fullCartShopper matches every product at 80% of its line cost, so
// every shopped site yields a complete, cheaper cart.
func fullCartShopper() fakeShopper {
	return fakeShopper{shopFn: func(ctx context.Context, site string, products []models.CartProduct) (*models.AlternativeCart, error) {
		cart := &models.AlternativeCart{OriginalProducts: products}
		for _, p := range products {
			cart.Products = append(cart.Products, models.AlternativeProduct{
				ProductName: p.ProductName,
				Price:       0.8 * p.Price * float64(p.Quantity),
				URL:         "https://" + site + "/product",
				SiteURL:     site,
			})
		}
		return cart, nil
	}}
}

func compareRequestBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(models.ComparisonRequest{
		Hostname: "shop.example.com",
		CartProducts: []models.CartProduct{
			{ProductName: "Widget", Price: 100, Quantity: 1},
			{ProductName: "Gadget", Price: 50, Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("marshalling request: %v", err)
	}
	return body
}

func decodeError(t *testing.T, body *bytes.Buffer) string {
	t.Helper()
	var payload map[string]string
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return payload["error"]
}

func TestCompareCarts_ReturnsAlternatives(t *testing.T) {
	h := testHandlers(t, oneSiteDiscovery("cheap.example.com"), fullCartShopper())

	w := httptest.NewRecorder()
	h.CompareCarts(w, httptest.NewRequest(http.MethodPost, "/api/v1/compare", bytes.NewReader(compareRequestBody(t))))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}

	var resp models.ComparisonResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.OriginalTotal != 200 {
		t.Errorf("OriginalTotal = %v, want 200", resp.OriginalTotal)
	}
	if resp.SitesAttempted != 1 {
		t.Errorf("SitesAttempted = %d, want 1", resp.SitesAttempted)
	}
	if len(resp.AlternativeCarts) != 1 {
		t.Fatalf("got %d alternative carts, want 1", len(resp.AlternativeCarts))
	}
	cart := resp.AlternativeCarts[0]
	if cart.SiteURL != "cheap.example.com" {
		t.Errorf("SiteURL = %q, want cheap.example.com", cart.SiteURL)
	}
	if cart.Total != 160 || cart.Savings != 40 {
		t.Errorf("Total = %v, Savings = %v, want 160 and 40", cart.Total, cart.Savings)
	}
}

func TestCompareCarts_RejectsBadJSON(t *testing.T) {
	h := testHandlers(t, oneSiteDiscovery("cheap.example.com"), fullCartShopper())

	w := httptest.NewRecorder()
	h.CompareCarts(w, httptest.NewRequest(http.MethodPost, "/api/v1/compare", strings.NewReader("{not json")))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if msg := decodeError(t, w.Body); msg != "Invalid request body" {
		t.Errorf("error = %q, want invalid body message", msg)
	}
}

func TestCompareCarts_RejectsInvalidRequest(t *testing.T) {
	h := testHandlers(t, fakeDiscovery{discoverFn: func(context.Context, []models.CartProduct, string) ([]models.HostnameScore, error) {
		t.Error("discovery ran for an invalid request")
		return nil, nil
	}}, fullCartShopper())

	w := httptest.NewRecorder()
	h.CompareCarts(w, httptest.NewRequest(http.MethodPost, "/api/v1/compare", strings.NewReader(`{"hostname":"shop.example.com","cartProducts":[]}`)))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if msg := decodeError(t, w.Body); !strings.Contains(msg, "cartProducts") {
		t.Errorf("error = %q, want a cartProducts validation message", msg)
	}
}

func TestCompareCarts_EnforcesPlanCartLimit(t *testing.T) {
	h := testHandlers(t, oneSiteDiscovery("cheap.example.com"), fullCartShopper())

	products := make([]models.CartProduct, 6)
	for i := range products {
		products[i] = models.CartProduct{ProductName: "Item", Price: 10, Quantity: 1}
	}
	body, err := json.Marshal(models.ComparisonRequest{Hostname: "shop.example.com", CartProducts: products})
	if err != nil {
		t.Fatalf("marshalling request: %v", err)
	}

	w := httptest.NewRecorder()
	h.CompareCarts(w, httptest.NewRequest(http.MethodPost, "/api/v1/compare", bytes.NewReader(body)))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if msg := decodeError(t, w.Body); !strings.Contains(msg, "Free plan allows 5") {
		t.Errorf("error = %q, want the free plan cart limit", msg)
	}
}

func TestCompareCarts_EngineFailureReturns500(t *testing.T) {
	h := testHandlers(t, fakeDiscovery{discoverFn: func(context.Context, []models.CartProduct, string) ([]models.HostnameScore, error) {
		return nil, context.DeadlineExceeded
	}}, fullCartShopper())

	w := httptest.NewRecorder()
	h.CompareCarts(w, httptest.NewRequest(http.MethodPost, "/api/v1/compare", bytes.NewReader(compareRequestBody(t))))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if msg := decodeError(t, w.Body); msg != "Comparison failed" {
		t.Errorf("error = %q, want the generic failure message", msg)
	}
}

func TestCompareCartsAsync_CompletesTask(t *testing.T) {
	h := testHandlers(t, oneSiteDiscovery("cheap.example.com"), fullCartShopper())

	w := httptest.NewRecorder()
	h.CompareCartsAsync(w, httptest.NewRequest(http.MethodPost, "/api/v1/compare/async", bytes.NewReader(compareRequestBody(t))))

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body %s)", w.Code, w.Body.String())
	}

	var accepted map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&accepted); err != nil {
		t.Fatalf("decoding accept body: %v", err)
	}
	taskID, _ := accepted["task_id"].(string)
	if taskID == "" {
		t.Fatalf("accept body %v has no task_id", accepted)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		task := getTask(t, h, taskID)
		if task.Status == models.TaskStatusCompleted {
			if task.Progress != 100 {
				t.Errorf("Progress = %d, want 100", task.Progress)
			}
			if task.Result == nil || task.Result.OriginalTotal != 200 {
				t.Errorf("Result = %+v, want the comparison response", task.Result)
			}
			return
		}
		if task.Status == models.TaskStatusFailed {
			t.Fatalf("task failed: %s", task.Error)
		}
		if time.Now().After(deadline) {
			t.Fatalf("task %s never completed, last status %s", taskID, task.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// getTask polls the task status endpoint the way the extension does
func getTask(t *testing.T, h *Handlers, taskID string) models.ComparisonTask {
	t.Helper()

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/"+taskID, nil)
	h.GetTaskStatus(w, mux.SetURLVars(r, map[string]string{"taskId": taskID}))

	if w.Code != http.StatusOK {
		t.Fatalf("task status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	var task models.ComparisonTask
	if err := json.NewDecoder(w.Body).Decode(&task); err != nil {
		t.Fatalf("decoding task: %v", err)
	}
	return task
}

func TestGetTaskStatus_UnknownTask(t *testing.T) {
	h := testHandlers(t, oneSiteDiscovery("cheap.example.com"), fullCartShopper())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/task_missing", nil)
	h.GetTaskStatus(w, mux.SetURLVars(r, map[string]string{"taskId": "task_missing"}))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if msg := decodeError(t, w.Body); msg != "Task not found" {
		t.Errorf("error = %q, want not-found message", msg)
	}
}

func TestGenerateAPIKey_ValidatesRequest(t *testing.T) {
	h := testHandlers(t, oneSiteDiscovery("cheap.example.com"), fullCartShopper())

	t.Run("missing user", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.GenerateAPIKey(w, httptest.NewRequest(http.MethodPost, "/api/v1/api-keys/generate", strings.NewReader(`{"plan":"free"}`)))

		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
		if msg := decodeError(t, w.Body); msg != "user_id is required" {
			t.Errorf("error = %q, want user_id message", msg)
		}
	})

	t.Run("unknown plan", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.GenerateAPIKey(w, httptest.NewRequest(http.MethodPost, "/api/v1/api-keys/generate", strings.NewReader(`{"user_id":"u1","plan":"platinum"}`)))

		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
		if msg := decodeError(t, w.Body); !strings.Contains(msg, "Unknown plan: platinum") {
			t.Errorf("error = %q, want unknown plan message", msg)
		}
	})
}

func TestHealthCheck(t *testing.T) {
	h := testHandlers(t, oneSiteDiscovery("cheap.example.com"), fullCartShopper())

	w := httptest.NewRecorder()
	h.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var payload map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&payload); err != nil {
		t.Fatalf("decoding health body: %v", err)
	}
	if payload["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", payload["status"])
	}
	limits, ok := payload["rate_limits"].(map[string]interface{})
	if !ok || len(limits) != 4 {
		t.Errorf("rate_limits = %v, want entries for all four plans", payload["rate_limits"])
	}
	if limits["free"] != "30 requests/minute" {
		t.Errorf("free limit = %v, want 30 requests/minute", limits["free"])
	}
}

func TestServeAPIDocs(t *testing.T) {
	h := testHandlers(t, oneSiteDiscovery("cheap.example.com"), fullCartShopper())

	w := httptest.NewRecorder()
	h.ServeAPIDocs(w, httptest.NewRequest(http.MethodGet, "/api/docs", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var payload map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&payload); err != nil {
		t.Fatalf("decoding docs body: %v", err)
	}
	if payload["service"] != "CartScout API" {
		t.Errorf("service = %v, want CartScout API", payload["service"])
	}
	endpoints, ok := payload["endpoints"].([]interface{})
	if !ok || len(endpoints) == 0 {
		t.Errorf("endpoints = %v, want a non-empty list", payload["endpoints"])
	}
}
