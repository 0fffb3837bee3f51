package services

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/krshsl/nora/interview"
	"github.com/krshsl/nora/repository"
	ws "github.com/krshsl/nora/websocket"
	"gorm.io/gorm"
)

// Server holds all server dependencies
type Server struct {
	config            *Config
	db                *gorm.DB
	repo              *repository.GORMRepository
	gateway           interview.ModelGateway
	orchestrator      *interview.Orchestrator
	sweeper           *InterviewSweeper
	authService       *AuthService
	authEndpoints     *AuthEndpoints
	interviewEndpoint *InterviewEndpoints
	feedbackEndpoints *FeedbackEndpoints
	wsHub             *ws.Hub
	upgrader          websocket.Upgrader
	logger            *slog.Logger
}

// NewServer creates a new server instance. The gateway is the model backend used for
// every interview and feedback call.
func NewServer(config *Config, db *gorm.DB, gateway interview.ModelGateway, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:  config,
		db:      db,
		gateway: gateway,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return checkOrigin(r, config.WebSocket.AllowedOrigins)
			},
		},
	}
}

// InitializeServices wires the repository, orchestrator, background workers and endpoints
func (s *Server) InitializeServices() error {
	if s.db == nil {
		return errors.New("database is required")
	}
	if s.gateway == nil {
		return errors.New("model gateway is required")
	}
	if s.config.JWT.Secret == "" {
		return errors.New("jwt secret is required")
	}

	s.repo = repository.NewGORMRepository(s.db)
	s.wsHub = ws.NewHub()

	s.orchestrator = interview.NewOrchestrator(s.repo, s.gateway, s.logger, s.config.OrchestratorOptions())
	s.orchestrator.OnFeedback(RecordFeedbackEvent)
	s.orchestrator.OnFeedback(s.pushFeedbackEvent)

	s.sweeper = NewInterviewSweeper(s.repo, s.orchestrator, s.config.Interview.MaxDuration, s.config.Interview.SweepSchedule, s.logger)

	s.authService = NewAuthService(s.repo, s.config.JWT.Secret, s.config.Server.SecureCookies)
	s.authEndpoints = NewAuthEndpoints(s.authService)
	s.interviewEndpoint = NewInterviewEndpoints(s.repo, s.orchestrator)
	s.feedbackEndpoints = NewFeedbackEndpoints(s.repo, s.orchestrator)

	s.logger.Info("Services initialized")
	return nil
}

// pushFeedbackEvent forwards background feedback results to the owner's websocket connections
func (s *Server) pushFeedbackEvent(ev interview.FeedbackEvent) {
	if ev.Err != nil {
		s.wsHub.SendToUser(ev.UserID, ws.Event{
			Type:        ws.EventFeedbackFailed,
			InterviewID: ev.InterviewID,
			Error:       "Feedback generation failed, it will be retried",
		})
		return
	}
	s.wsHub.SendToUser(ev.UserID, ws.Event{
		Type:        ws.EventFeedbackReady,
		InterviewID: ev.InterviewID,
		Payload:     ev.Feedback,
	})
}

// SetupRoutes configures all HTTP routes
func (s *Server) SetupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)

	r.Get("/health", s.healthHandler)
	r.Handle("/metrics", MetricsHandler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.apiV1Handler)

		s.authEndpoints.RegisterRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(s.authService.Middleware)
			r.Get("/ws", s.websocketHandlerFunc)
			s.interviewEndpoint.RegisterRoutes(r)
			s.feedbackEndpoints.RegisterRoutes(r)
		})
	})

	return r
}

// Start runs the HTTP server and background workers until SIGINT or SIGTERM
func (s *Server) Start() error {
	port := s.config.Server.Port
	if port == "" {
		port = "8080"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go s.wsHub.Run(hubCtx)

	s.orchestrator.StartWorkers()
	if err := s.sweeper.Start(); err != nil {
		s.orchestrator.Close()
		return err
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           s.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		s.logger.Error("Server error", "error", serveErr)
	}

	s.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Server forced to shutdown", "error", err)
	}
	s.sweeper.Stop()
	s.orchestrator.Close()
	stopHub()

	s.logger.Info("Server exited")
	return serveErr
}

// checkOrigin validates the origin of WebSocket connections to prevent CSRF attacks
func checkOrigin(r *http.Request, allowedOriginsStr string) bool {
	origin := r.Header.Get("Origin")

	if allowedOriginsStr == "" {
		slog.Warn("WebSocket connection rejected: no allowed origins configured", "origin", origin)
		return false
	}

	for _, allowed := range strings.Split(allowedOriginsStr, ",") {
		if strings.TrimSpace(allowed) == origin {
			return true
		}
	}

	slog.Warn("WebSocket connection rejected: origin not allowed", "origin", origin, "allowed_origins", allowedOriginsStr)
	return false
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	res := healthResponse{Status: "ok", Database: "up"}

	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(r.Context())
	}
	if err != nil {
		res.Status = "degraded"
		res.Database = "down"
		s.logger.Warn("Health check degraded", "error", err)
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) apiV1Handler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "API v1", "version": "1.0.0"})
}

func (s *Server) websocketHandlerFunc(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", "error", err)
		return
	}

	client := s.wsHub.NewClient(conn, user.ID)
	if !s.wsHub.Register(client) {
		conn.Close()
		return
	}
	s.logger.Info("WebSocket connection established", "user_id", user.ID, "client_id", client.ID)

	go client.WritePump()
	client.ReadPump()
}
