package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dabonzo/sslmonitor-sub001/internal/alerting"
	"github.com/dabonzo/sslmonitor-sub001/internal/config"
	"github.com/dabonzo/sslmonitor-sub001/internal/notification"
	"github.com/dabonzo/sslmonitor-sub001/internal/probe"
	"github.com/dabonzo/sslmonitor-sub001/internal/scheduler"
	"github.com/dabonzo/sslmonitor-sub001/internal/storage"
	"github.com/dabonzo/sslmonitor-sub001/internal/summary"
	"github.com/dabonzo/sslmonitor-sub001/internal/websocket"
)

// RouterDeps holds everything the HTTP layer needs
type RouterDeps struct {
	Config     *config.Config
	DB         *gorm.DB
	Store      *storage.GormStore
	Hub        *websocket.Hub
	Checks     *scheduler.Scheduler
	Alerts     *alerting.Engine
	Aggregator *summary.Aggregator
	Dispatcher *notification.Dispatcher
	SSRF       *probe.SSRFProtection
	Logger     *zap.Logger
}

// NewRouter creates the HTTP router
func NewRouter(deps RouterDeps) http.Handler {
	cfg := deps.Config
	db := deps.DB
	store := deps.Store

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(SecurityHeadersMiddleware(cfg))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// 10 req/s general, 1 req/s on auth endpoints
	generalLimiter := NewRateLimiter(10, 20)
	authLimiter := NewRateLimiter(1, 5)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(RateLimitMiddleware(generalLimiter, "Too many requests"))

		// Auth routes
		r.Group(func(r chi.Router) {
			r.Use(RateLimitMiddleware(authLimiter, "Too many authentication attempts"))
			r.Post("/auth/login", HandleLogin(db, cfg, deps.Logger))
			r.Post("/auth/logout", HandleLogout())
			r.Post("/auth/setup", HandleSetup(db, cfg, deps.Logger))
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(cfg.JWTSecret, db, deps.Logger))

			// User routes
			r.Get("/user/me", HandleGetCurrentUser())

			// Target routes
			r.Get("/targets", HandleGetTargets(store))
			r.Post("/targets", HandleCreateTarget(store, deps.SSRF, deps.Checks, deps.Logger))
			r.Post("/targets/check-bulk", HandleCheckBulk(deps.Checks))
			r.Get("/targets/{id}", HandleGetTarget(store))
			r.Put("/targets/{id}", HandleUpdateTarget(store, deps.SSRF))
			r.Delete("/targets/{id}", HandleDeleteTarget(store))
			r.Post("/targets/{id}/check", HandleCheckTarget(deps.Checks))
			r.Get("/targets/{id}/results", HandleGetTargetResults(store))
			r.Get("/targets/{id}/summaries", HandleGetTargetSummaries(store))

			// Check task routes
			r.Get("/tasks/{id}", HandleGetTaskStatus(deps.Checks))

			// Alert routes
			r.Get("/alerts", HandleGetAlerts(store))
			r.Post("/alerts/{id}/acknowledge", HandleAcknowledgeAlert(deps.Alerts))
			r.Post("/alerts/{id}/resolve", HandleResolveAlert(deps.Alerts))
			r.Post("/alerts/{id}/suppress", HandleSuppressAlert(deps.Alerts))

			// Alert configuration routes
			r.Get("/alert-configs", HandleGetAlertConfigs(store))
			r.Post("/alert-configs", HandleCreateAlertConfig(store))
			r.Put("/alert-configs/{id}", HandleUpdateAlertConfig(store))
			r.Delete("/alert-configs/{id}", HandleDeleteAlertConfig(store))

			// Notification channel routes
			r.Get("/channels", HandleGetChannels(db))
			r.Post("/channels", HandleCreateChannel(db))
			r.Get("/channels/providers", HandleGetProviders())
			r.Put("/channels/{id}", HandleUpdateChannel(db))
			r.Delete("/channels/{id}", HandleDeleteChannel(db))
			r.Post("/channels/{id}/test", HandleTestChannel(db, deps.Dispatcher))

			// Summary routes
			r.Post("/summaries/aggregate", HandleTriggerAggregation(deps.Aggregator, deps.Logger))
		})
	})

	// WebSocket endpoint
	r.Get("/ws", deps.Hub.HandleWebSocket)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return r
}
