package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jobhub/apiserver/config"
	"github.com/jobhub/apiserver/internal/db"
	"github.com/jobhub/apiserver/internal/events"
	"github.com/jobhub/apiserver/internal/handlers"
	"github.com/jobhub/apiserver/internal/logging"
	"github.com/jobhub/apiserver/internal/metrics"
	"github.com/jobhub/apiserver/internal/mq"
	"github.com/jobhub/apiserver/internal/services"
	"github.com/jobhub/apiserver/internal/storage"
	"github.com/jobhub/apiserver/internal/store"
	"github.com/jobhub/apiserver/internal/workflow"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	queue      *mq.MQ
	logger     *logrus.Logger
}

// Repositories groups the persistence layer the services run on.
type Repositories struct {
	Users        services.UserRepository
	Categories   services.CategoryRepository
	Jobs         services.JobRepository
	Applications services.ApplicationRepository
}

// Deps is everything NewRouter needs besides the configuration.
type Deps struct {
	Repos     Repositories
	Storage   *storage.Storage
	Publisher events.Publisher
	Logger    *logrus.Logger
	// DB is pinged by /healthz when set.
	DB handlers.Pinger
	// HashCost overrides the bcrypt cost when non-zero.
	HashCost int
}

// New opens the database, object storage and message broker selected by
// cfg and builds the HTTP server on top of them.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := logging.New(cfg.Log)

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	objects, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if objects == nil {
		logger.Warn("object storage disabled; resume uploads will be rejected")
	}

	queue, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("open mq: %w", err)
	}
	var publisher events.Publisher = events.Nop{}
	if queue != nil {
		publisher = events.NewBroker(queue, cfg.MQ.EventsChannel, logger)
	}

	router := NewRouter(cfg, Deps{
		Repos: Repositories{
			Users:        store.NewUserRepository(dbConn),
			Categories:   store.NewCategoryRepository(dbConn),
			Jobs:         store.NewJobRepository(dbConn),
			Applications: store.NewApplicationRepository(dbConn),
		},
		Storage:   objects,
		Publisher: publisher,
		Logger:    logger,
		DB:        dbConn,
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.WithFields(logrus.Fields{
		"port":        port,
		"storage":     cfg.Storage.Backend,
		"mq":          cfg.MQ.Backend,
		"status_mode": cfg.Policy.StatusMode,
	}).Info("server configured")

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		queue:      queue,
		logger:     logger,
	}, nil
}

// NewRouter builds the services from deps and mounts every route.
func NewRouter(cfg config.Config, deps Deps) *chi.Mux {
	logger := deps.Logger
	if logger == nil {
		logger = logging.New(cfg.Log)
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.Nop{}
	}

	resumes := services.NewResumeService(deps.Storage, logger).
		WithReferences(deps.Repos.Users, deps.Repos.Applications)
	userService := services.NewUserService(deps.Repos.Users, resumes, publisher)
	if deps.HashCost != 0 {
		userService = userService.WithHashCost(deps.HashCost)
	}
	categoryService := services.NewCategoryService(deps.Repos.Categories, deps.Repos.Applications, resumes, publisher)
	jobService := services.NewJobService(
		deps.Repos.Jobs,
		deps.Repos.Categories,
		deps.Repos.Users,
		deps.Repos.Applications,
		resumes,
		publisher,
	)
	applicationService := services.NewApplicationService(
		deps.Repos.Applications,
		deps.Repos.Jobs,
		resumes,
		publisher,
		services.ApplicationOptions{
			StatusMode:      workflow.ParseMode(cfg.Policy.StatusMode),
			LockDecided:     cfg.Policy.LockDecided,
			EnforceDeadline: cfg.Policy.EnforceDeadline,
		},
	)

	authHandler := handlers.NewAuthHandler(userService, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	limiter := handlers.NewRateLimiter(cfg.Auth.RateLimitRPS, cfg.Auth.RateLimitBurst)

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		logging.Middleware(logger),
		metrics.Middleware,
		middleware.Recoverer,
		middleware.Timeout(timeout),
	)
	router.Get("/healthz", handlers.Healthz(deps.DB))
	router.Handle("/metrics", metrics.Handler())

	router.Group(func(r chi.Router) {
		r.Use(authHandler.Authenticate)
		r.Route("/auth", func(r chi.Router) {
			handlers.AuthRouter(r, authHandler, limiter)
		})
		r.Route("/categories", func(r chi.Router) {
			handlers.CategoryRouter(r, categoryService)
		})
		r.Route("/jobs", func(r chi.Router) {
			handlers.JobRouter(r, jobService)
		})
		r.Route("/applications", func(r chi.Router) {
			handlers.ApplicationRouter(r, applicationService)
		})
	})

	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then closes the broker and database.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	if s.queue != nil {
		if closeErr := s.queue.Close(); closeErr != nil {
			s.logger.WithError(closeErr).Warn("failed to close mq")
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
