package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/expenso/policy-engine/app"
	"github.com/expenso/policy-engine/handlers"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Tenant-ID", "X-User-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", handlers.HealthCheck(deps))
	r.Get("/readyz", handlers.ReadinessCheck(deps))

	// Prometheus metrics
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	complianceHandler := handlers.NewComplianceHandler(deps.Compliance, deps.Batch, deps.Logger)
	policyHandler := handlers.NewPolicyHandler(deps.Policies, deps.Compliance, deps.Logger)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Get("/status", handlers.StatusHandler(deps))

		// Compliance evaluation (identity from the upstream gateway)
		r.Route("/compliance", func(r chi.Router) {
			r.Use(deps.Identity.RequireIdentity)
			r.Post("/items/check", complianceHandler.HandleCheckItem)
			r.Post("/check", complianceHandler.HandleCheckReimbursement)
			r.Post("/batch", complianceHandler.HandleEvaluateBatch)
		})

		// Policy management
		r.Route("/policies", func(r chi.Router) {
			r.Use(deps.Identity.RequireIdentity)
			r.Get("/", policyHandler.HandleListPolicies)
			r.Post("/", policyHandler.HandleCreatePolicy)
			r.Get("/{id}", policyHandler.HandleGetPolicy)
			r.Put("/{id}", policyHandler.HandleUpdatePolicy)
			r.Delete("/{id}", policyHandler.HandleDeletePolicy)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}
