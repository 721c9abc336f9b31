package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/chorely/internal/chore"
	"github.com/dukerupert/chorely/internal/config"
	"github.com/dukerupert/chorely/internal/handler"
	"github.com/dukerupert/chorely/internal/middleware"
	"github.com/dukerupert/chorely/internal/push"
	"github.com/dukerupert/chorely/internal/store"
	ws "github.com/dukerupert/chorely/internal/websocket"
)

type Server struct {
	db            *sql.DB
	cfg           config.Config
	hub           *ws.Hub
	engine        *chore.Engine
	choreH        *handler.ChoreHandler
	familyMemberH *handler.FamilyMemberHandler
	productH      *handler.ProductHandler
	pushH         *handler.PushHandler
	rateLimiter   *middleware.RateLimiter
	pushScheduler *push.Scheduler
	pushNotifier  *push.Notifier
	logger        *slog.Logger
}

// New wires the stores, the chore engine and its notifiers. Push is only
// enabled when both VAPID keys are configured.
func New(db *sql.DB, cfg config.Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	choreStore := store.NewChoreStore(db)
	productStore := store.NewProductStore(db)
	familyMemberStore := store.NewFamilyMemberStore(db)
	pushStore := store.NewPushStore(db)

	notifiers := chore.Notifiers{
		hub,
		chore.LogNotifier{Logger: logger.With("component", "events")},
	}

	var pushNotifier *push.Notifier
	var pushSvc *push.Service
	if cfg.PushEnabled() {
		pushSvc = push.NewService(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey)
		pushNotifier = push.NewNotifier(pushSvc, pushStore, logger.With("component", "push"))
		notifiers = append(notifiers, pushNotifier)
	}

	engine := chore.NewEngine(chore.Config{
		Location:     cfg.Location,
		StockTimeout: cfg.StockTimeout,
	}, choreStore, productStore, familyMemberStore, notifiers, logger.With("component", "chore"))

	s := &Server{
		db:            db,
		cfg:           cfg,
		hub:           hub,
		engine:        engine,
		choreH:        handler.NewChoreHandler(engine, choreStore, hub, cfg.RetryAttempts, logger.With("component", "chore_handler")),
		familyMemberH: handler.NewFamilyMemberHandler(familyMemberStore, logger.With("component", "family_member")),
		productH:      handler.NewProductHandler(productStore, logger.With("component", "product")),
		rateLimiter:   middleware.NewRateLimiter(),
		pushNotifier:  pushNotifier,
		logger:        logger,
	}
	if pushSvc != nil {
		s.pushH = handler.NewPushHandler(pushStore, cfg.VAPIDPublicKey, logger.With("component", "push_handler"))
		s.pushScheduler = push.NewScheduler(pushSvc, pushStore, engine, cfg.ReminderInterval, logger.With("component", "push_scheduler"))
	}
	return s
}

// Engine returns the chore engine.
func (s *Server) Engine() *chore.Engine {
	return s.engine
}

// Start runs background work: overdue reminders and rate limiter cleanup.
func (s *Server) Start(ctx context.Context) {
	if s.pushScheduler != nil {
		s.pushScheduler.Start(ctx)
	}
	go s.rateLimiter.RunCleanup(ctx, 5*time.Minute)
}

// Stop waits for background work started by Start and in-flight pushes.
func (s *Server) Stop() {
	if s.pushScheduler != nil {
		s.pushScheduler.Stop()
	}
	if s.pushNotifier != nil {
		s.pushNotifier.Wait()
	}
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)

	// Chore API routes
	mux.HandleFunc("POST /api/chores", s.rateLimited(s.choreH.Create))
	mux.HandleFunc("GET /api/chores", s.choreH.List)
	mux.HandleFunc("GET /api/chores/{id}", s.choreH.Get)
	mux.HandleFunc("PUT /api/chores/{id}", s.rateLimited(s.choreH.Update))
	mux.Handle("DELETE /api/chores/{id}", middleware.RequireAdmin(http.HandlerFunc(s.choreH.Delete)))
	mux.HandleFunc("POST /api/chores/{id}/execute", s.rateLimited(s.choreH.Execute))
	mux.HandleFunc("POST /api/chores/{id}/skip", s.rateLimited(s.choreH.Skip))
	mux.HandleFunc("GET /api/chores/{id}/log", s.choreH.Log)
	mux.HandleFunc("POST /api/chore-log/{id}/undo", s.rateLimited(s.choreH.Undo))

	// Household routes
	mux.HandleFunc("GET /api/family-members", s.familyMemberH.List)
	mux.Handle("POST /api/family-members", middleware.RequireAdmin(http.HandlerFunc(s.familyMemberH.Create)))
	mux.Handle("DELETE /api/family-members/{id}", middleware.RequireAdmin(http.HandlerFunc(s.familyMemberH.Delete)))
	mux.HandleFunc("GET /api/products", s.productH.List)
	mux.HandleFunc("POST /api/products", s.rateLimited(s.productH.Create))
	mux.HandleFunc("POST /api/products/{id}/stock", s.rateLimited(s.productH.AddStock))

	// Push notification API routes
	if s.pushH != nil {
		mux.Handle("POST /api/push/subscriptions", middleware.RequireUser(http.HandlerFunc(s.pushH.Subscribe)))
		mux.Handle("GET /api/push/subscriptions", middleware.RequireUser(http.HandlerFunc(s.pushH.ListSubscriptions)))
		mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
	}

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.cfg.WSOrigins, s.logger.With("component", "websocket")))

	identity := middleware.Identity(s.cfg.UserHeader, s.cfg.RoleHeader)
	return middleware.RequestLogger(s.logger.With("component", "http"))(identity(mux))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":     "ok",
		"ws_clients": s.hub.ClientCount(),
		"ws_sent":    s.hub.Sent(),
		"ws_dropped": s.hub.Dropped(),
	}
	code := http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		status["status"] = "degraded"
		status["error"] = "database unavailable"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}

// rateLimited applies the per-IP limit to mutating endpoints. A zero limit
// disables it.
func (s *Server) rateLimited(h http.HandlerFunc) http.HandlerFunc {
	if s.cfg.RateLimit <= 0 {
		return h
	}
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	return middleware.RateLimit(s.rateLimiter, keyFunc, s.cfg.RateLimit, time.Minute)(h).ServeHTTP
}
