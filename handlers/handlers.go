package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"cartscout/comparison"
	"cartscout/config"
	"cartscout/middleware"
	"cartscout/models"
	"cartscout/repository"
	"cartscout/scheduler"
	"cartscout/scraper"
	"cartscout/services"

	"github.com/gorilla/mux"
)

type Handlers struct {
	cfg           *config.Config
	apiCfg        *config.APIConfig
	orchestrator  *comparison.Orchestrator
	browser       *scraper.BrowserController
	extractor     *scraper.Extractor
	historyRepo   *repository.HistoryRepository
	cacheRepo     *repository.CacheRepository
	apiKeyService *services.APIKeyService
	taskManager   *scheduler.TaskManager
	startedAt     time.Time
}

func NewHandlers(cfg *config.Config, apiCfg *config.APIConfig, orchestrator *comparison.Orchestrator, browser *scraper.BrowserController, extractor *scraper.Extractor, apiKeyService *services.APIKeyService) *Handlers {
	handlers := &Handlers{
		cfg:           cfg,
		apiCfg:        apiCfg,
		orchestrator:  orchestrator,
		browser:       browser,
		extractor:     extractor,
		historyRepo:   repository.NewHistoryRepository(),
		cacheRepo:     repository.NewCacheRepository(),
		apiKeyService: apiKeyService,
		startedAt:     time.Now(),
	}

	// Initialize task manager with 5 max workers
	handlers.taskManager = scheduler.NewTaskManager(orchestrator.Compare, 5, cfg.RequestTimeout())

	return handlers
}

// Close stops the background task workers
func (h *Handlers) Close() {
	if h.taskManager != nil {
		h.taskManager.Stop()
	}
}

// CompareCarts runs a synchronous cart comparison and returns the
// cheaper alternative carts
func (h *Handlers) CompareCarts(w http.ResponseWriter, r *http.Request) {
	var req models.ComparisonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	plan := middleware.PlanFromContext(r.Context(), h.apiCfg)
	if err := h.apiKeyService.CheckCartSize(plan, len(req.CartProducts)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.RequestTimeout())
	defer cancel()

	response, err := h.orchestrator.Compare(ctx, &req)
	if err != nil {
		log.Printf("❌ Comparison failed for %s: %v", req.Hostname, err)
		writeError(w, http.StatusInternalServerError, "Comparison failed")
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// CompareCartsAsync queues a comparison and returns a task ID the
// client can poll. Long carts on slow sites exceed extension fetch
// timeouts, so the extension submits here and polls /tasks/{taskId}.
func (h *Handlers) CompareCartsAsync(w http.ResponseWriter, r *http.Request) {
	var req models.ComparisonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	plan := middleware.PlanFromContext(r.Context(), h.apiCfg)
	if err := h.apiKeyService.CheckCartSize(plan, len(req.CartProducts)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	apiKey := middleware.APIKeyFromContext(r.Context())
	if apiKey != "" && plan.MaxAsyncTasks > 0 {
		active := 0
		for _, task := range h.taskManager.GetActiveTasks() {
			if owner, ok := task.Metadata["api_key"].(string); ok && owner == apiKey {
				active++
			}
		}
		if active >= plan.MaxAsyncTasks {
			writeError(w, http.StatusTooManyRequests, fmt.Sprintf("The %s plan allows %d concurrent tasks", plan.Name, plan.MaxAsyncTasks))
			return
		}
	}

	task := h.taskManager.SubmitTask(req, apiKey)
	if task.Status == models.TaskStatusFailed {
		writeError(w, http.StatusServiceUnavailable, task.Error)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"task_id": task.ID,
		"status":  task.Status,
		"message": "Comparison queued for processing",
	})
}

// GetTaskStatus returns the current state of an async comparison task
func (h *Handlers) GetTaskStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	taskID := vars["taskId"]

	task, exists := h.taskManager.GetTask(taskID)
	if !exists {
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}

	writeJSON(w, http.StatusOK, task)
}

// GetTaskStats returns task queue statistics
func (h *Handlers) GetTaskStats(w http.ResponseWriter, r *http.Request) {
	stats := h.taskManager.GetStats()
	stats["timestamp"] = time.Now().Format(time.RFC3339)
	writeJSON(w, http.StatusOK, stats)
}

// GetHistory returns recent comparison runs
func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	records, err := h.historyRepo.GetRecent(limit)
	if err != nil {
		log.Printf("Failed to fetch comparison history: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch history")
		return
	}
	if records == nil {
		records = []models.ComparisonRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"history": records,
		"count":   len(records),
	})
}

// GenerateAPIKey creates a new API key for a user
func (h *Handlers) GenerateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req models.APIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.Plan == "" {
		req.Plan = "free"
	}
	if _, exists := h.apiCfg.GetPlan(req.Plan); !exists {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown plan: %s", req.Plan))
		return
	}

	apiKey, err := h.apiKeyService.GenerateAPIKey(req.UserID, req.Plan, req.Prefix)
	if err != nil {
		log.Printf("Failed to generate API key for user %s: %v", req.UserID, err)
		writeError(w, http.StatusInternalServerError, "Failed to generate API key")
		return
	}

	writeJSON(w, http.StatusCreated, models.APIKeyResponse{
		APIKey:    apiKey.Key,
		KeyInfo:   apiKey.ToAPIKeyInfo(),
		CreatedAt: apiKey.CreatedAt,
	})
}

// GetAPIKeyInfo returns details for the calling API key
func (h *Handlers) GetAPIKeyInfo(w http.ResponseWriter, r *http.Request) {
	apiKey := middleware.ExtractAPIKey(r)
	if apiKey == "" {
		writeError(w, http.StatusUnauthorized, "API key is required")
		return
	}

	info, err := h.apiKeyService.GetAPIKeyInfo(apiKey)
	if err != nil {
		writeError(w, http.StatusNotFound, "API key not found")
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// GetUsageStats returns usage and plan limits for the calling API key
func (h *Handlers) GetUsageStats(w http.ResponseWriter, r *http.Request) {
	apiKey := middleware.ExtractAPIKey(r)
	if apiKey == "" {
		writeError(w, http.StatusUnauthorized, "API key is required")
		return
	}

	stats, err := h.apiKeyService.GetUsageStats(apiKey)
	if err != nil {
		writeError(w, http.StatusNotFound, "API key not found")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// HealthCheck returns service health and plan rate limits
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	rateLimits := make(map[string]string)
	for key, plan := range h.apiCfg.SubscriptionPlans {
		rateLimits[key] = fmt.Sprintf("%d requests/minute", plan.RateLimit)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"service":     "cartscout",
		"version":     "1.0.0",
		"api_version": "v1",
		"timestamp":   time.Now().Format(time.RFC3339),
		"rate_limits": rateLimits,
	})
}

// GetMetrics returns runtime, cache and task metrics
func (h *Handlers) GetMetrics(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	hits, misses := h.extractor.CacheStats()

	cacheEntries := 0
	if count, err := h.cacheRepo.Count(); err == nil {
		cacheEntries = count
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"system": map[string]interface{}{
			"goroutines":      runtime.NumGoroutine(),
			"memory_alloc_mb": mem.Alloc / 1024 / 1024,
			"memory_total_mb": mem.TotalAlloc / 1024 / 1024,
			"memory_sys_mb":   mem.Sys / 1024 / 1024,
			"gc_runs":         mem.NumGC,
			"uptime_seconds":  int64(time.Since(h.startedAt).Seconds()),
		},
		"extraction_cache": map[string]interface{}{
			"hits":    hits,
			"misses":  misses,
			"entries": cacheEntries,
		},
		"tasks": h.taskManager.GetStats(),
		"browser": map[string]interface{}{
			"running": h.browser.IsRunning(),
		},
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// GetStatus returns aggregate engine status
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := h.historyRepo.GetStats()
	if err != nil {
		log.Printf("Failed to load comparison stats: %v", err)
		stats = map[string]interface{}{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"comparisons":  stats,
		"active_tasks": len(h.taskManager.GetActiveTasks()),
		"browser": map[string]interface{}{
			"running": h.browser.IsRunning(),
		},
		"system_health": "operational",
		"timestamp":     time.Now().Format(time.RFC3339),
	})
}

// ServeAPIDocs returns a JSON description of the API surface
func (h *Handlers) ServeAPIDocs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":     "CartScout API",
		"version":     "v1",
		"description": "Cross-site price comparison for shopping carts",
		"endpoints": []map[string]string{
			{"method": "POST", "path": "/api/v1/compare", "description": "Compare a cart against alternative retailers"},
			{"method": "POST", "path": "/api/v1/compare/async", "description": "Queue a comparison and poll for the result"},
			{"method": "GET", "path": "/api/v1/tasks/{taskId}", "description": "Status of an async comparison"},
			{"method": "GET", "path": "/api/v1/tasks/stats", "description": "Task queue statistics"},
			{"method": "GET", "path": "/api/v1/history", "description": "Recent comparison runs"},
			{"method": "POST", "path": "/api/v1/api-keys/generate", "description": "Create an API key"},
			{"method": "GET", "path": "/api/v1/api-keys/info", "description": "Details for the calling API key"},
			{"method": "GET", "path": "/api/v1/api-keys/usage", "description": "Usage and limits for the calling API key"},
			{"method": "GET", "path": "/health", "description": "Service health"},
			{"method": "GET", "path": "/metrics", "description": "Runtime and cache metrics"},
			{"method": "GET", "path": "/status", "description": "Aggregate engine status"},
		},
		"authentication": "Pass an API key via the X-API-Key header, a Bearer token, or the api_key query parameter",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
