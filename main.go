package main

import (
	"log"
	"net/http"
	"strings"

	"cartscout/cache"
	"cartscout/comparison"
	"cartscout/config"
	"cartscout/database"
	"cartscout/discovery"
	"cartscout/handlers"
	"cartscout/middleware"
	"cartscout/repository"
	"cartscout/scheduler"
	"cartscout/scraper"
	"cartscout/services"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	apiCfg := config.DefaultAPIConfig()

	// Initialize database
	if err := database.InitDatabase(cfg.DatabaseURL); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.CloseDatabase()

	// Create tables
	if err := database.CreateTables(); err != nil {
		log.Fatalf("Failed to create tables: %v", err)
	}

	// Extraction cache backend
	var store cache.Store
	if strings.EqualFold(cfg.CacheBackend, "memory") {
		store = cache.NewMemoryStore()
	} else {
		store = cache.NewPostgresStore(repository.NewCacheRepository())
	}
	log.Printf("Extraction cache backend: %s (TTL %s)", cfg.CacheBackend, cfg.CacheTTL)

	// Launch the shared headless browser
	browser := scraper.NewBrowserController(cfg)
	if err := browser.Initialize(); err != nil {
		log.Fatalf("Failed to launch browser: %v", err)
	}
	defer browser.Close()

	// Discovery and extraction pipeline
	searchClient := discovery.NewSearchClient(cfg.SearchAPIURL, cfg.SearchAPIKey, cfg.SearchEngineID, cfg.SearchCountry, cfg.SearchLanguage)
	siteDiscovery := discovery.NewSiteDiscovery(searchClient, cfg)

	genai := scraper.NewGenAIClient(cfg)
	extractor := scraper.NewExtractor(cfg, genai, store)
	locator := scraper.NewSearchLocator(cfg)
	detector := scraper.NewBotDetector()
	profileRepo := repository.NewSiteProfileRepository()
	siteScraper := scraper.NewSiteScraper(cfg, browser, locator, extractor, detector, profileRepo)

	historyRepo := repository.NewHistoryRepository()
	orchestrator := comparison.NewOrchestrator(cfg, siteDiscovery, siteScraper, historyRepo)

	// API keys and handlers
	apiKeyService := services.NewAPIKeyService(apiCfg)
	h := handlers.NewHandlers(cfg, apiCfg, orchestrator, browser, extractor, apiKeyService)
	defer h.Close()

	// Initialize and start the janitor
	janitor := scheduler.NewJanitor(cfg.HistoryRetention)
	janitor.Start()
	defer janitor.Stop()

	// Setup router
	r := mux.NewRouter()

	// Apply global middleware
	r.Use(middleware.LoggingMiddleware)
	r.Use(middleware.RateLimitMiddleware(apiCfg))
	r.Use(middleware.APIKeyMiddleware(apiCfg, apiKeyService))
	r.Use(middleware.RequestSizeLimitMiddleware(apiCfg.MaxRequestSize))

	// Health and monitoring endpoints (no auth required)
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/metrics", h.GetMetrics).Methods("GET")
	r.HandleFunc("/status", h.GetStatus).Methods("GET")
	r.HandleFunc("/api/docs", h.ServeAPIDocs).Methods("GET")

	// API v1 routes
	apiV1 := r.PathPrefix("/api/v1").Subrouter()

	// Cart comparison
	apiV1.HandleFunc("/compare", h.CompareCarts).Methods("POST")
	apiV1.HandleFunc("/compare/async", h.CompareCartsAsync).Methods("POST")

	// Task management. Stats before {taskId} so "stats" is not
	// captured as a task ID.
	apiV1.HandleFunc("/tasks/stats", h.GetTaskStats).Methods("GET")
	apiV1.HandleFunc("/tasks/{taskId}", h.GetTaskStatus).Methods("GET")

	// Comparison history
	apiV1.HandleFunc("/history", h.GetHistory).Methods("GET")

	// Monitoring aliases under the keyed API
	apiV1.HandleFunc("/metrics", h.GetMetrics).Methods("GET")
	apiV1.HandleFunc("/status", h.GetStatus).Methods("GET")

	// API Key management
	apiV1.HandleFunc("/api-keys/generate", h.GenerateAPIKey).Methods("POST")
	apiV1.HandleFunc("/api-keys/info", h.GetAPIKeyInfo).Methods("GET")
	apiV1.HandleFunc("/api-keys/usage", h.GetUsageStats).Methods("GET")

	// Legacy API routes (redirect to v1)
	legacyAPI := r.PathPrefix("/api").Subrouter()
	legacyAPI.HandleFunc("/compare", redirectToV1).Methods("POST")
	legacyAPI.HandleFunc("/compare/async", redirectToV1).Methods("POST")
	legacyAPI.HandleFunc("/tasks/{taskId}", redirectToV1).Methods("GET")

	// CORS configuration
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	host := cfg.Host
	if host == "" {
		host = "0.0.0.0"
	}

	log.Printf("🌐 Server starting on port %s", cfg.Port)
	log.Printf("📋 API Documentation:")
	log.Printf("   GET  /health - Health check")
	log.Printf("   GET  /metrics - System metrics")
	log.Printf("   GET  /status - Detailed status")
	log.Printf("   GET  /api/docs - API documentation")
	log.Printf("   POST /api/v1/compare - Compare a cart across retailers")
	log.Printf("   POST /api/v1/compare/async - Queue a comparison task")
	log.Printf("   GET  /api/v1/tasks/{taskId} - Task status")
	log.Printf("   GET  /api/v1/history - Recent comparisons")
	log.Printf("   POST /api/v1/api-keys/generate - Create an API key")
	log.Printf("   ⚠️  /api/* - Legacy endpoints (deprecated, redirect to v1)")

	// Start server
	log.Fatal(http.ListenAndServe(host+":"+cfg.Port, c.Handler(r)))
}

// redirectToV1 redirects legacy API calls to v1 endpoints
func redirectToV1(w http.ResponseWriter, r *http.Request) {
	newPath := "/api/v1" + strings.TrimPrefix(r.URL.Path, "/api")
	if r.URL.RawQuery != "" {
		newPath += "?" + r.URL.RawQuery
	}

	w.Header().Set("X-API-Deprecation-Warning", "This endpoint is deprecated. Please use /api/v1 endpoints instead.")
	w.Header().Set("X-API-Version", "v1")

	http.Redirect(w, r, newPath, http.StatusMovedPermanently)
}
