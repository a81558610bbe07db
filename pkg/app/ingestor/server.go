// Package ingestor implements app.Runner for the ingestion service process.
package ingestor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	apphttp "github.com/james-langridge/mars-vista-api-sub000/pkg/app/http"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/auth"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/config"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/cursor"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/fetch"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/ingest"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/pgutil"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/ratelimit"
	recordservice "github.com/james-langridge/mars-vista-api-sub000/pkg/records/service"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/scheduler"
	scraperservice "github.com/james-langridge/mars-vista-api-sub000/pkg/scraper/service"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/upstream"
)

const (
	apiRequestTimeout  = 60 * time.Second
	counterSweepPeriod = 15 * time.Minute
)

// Server holds the configuration of the ingestion service.
type Server struct {
	cfg *config.Config
}

// NewServer initializes a new ingestion Server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

// Components is the wired object graph shared by the server and the ops CLI.
type Components struct {
	DB        *bun.DB
	Cursors   cursor.Store
	Records   ingest.Store
	Upstream  *upstream.Client
	Scheduler *scheduler.Scheduler
	Runner    *scheduler.Runner
}

// Wire builds the ingestion pipeline on top of an open database.
func Wire(cfg *config.Config, db *bun.DB, logger *zap.Logger) *Components {
	cursors := cursor.NewStore(db)
	records := ingest.NewStore(db)

	raw := fetch.NewHTTPFetcher(cfg.Fetch.Timeout, cfg.Fetch.UserAgent)
	client := upstream.NewClient(cfg.Sources, raw, cfg.Fetch, logger)

	sched := scheduler.New(cursors, client, ingest.NewProcessor(records, logger), cfg.Sources, cfg.Scheduler.StaleAfter, logger)
	return &Components{
		DB:        db,
		Cursors:   cursors,
		Records:   records,
		Upstream:  client,
		Scheduler: sched,
		Runner:    scheduler.NewRunner(sched, cfg.Sources, cfg.Scheduler, logger),
	}
}

// Run starts the background runner and the HTTP API.
// It blocks until an OS shutdown signal is received or a fatal server error occurs.
func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("nil config")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required (or set %s)", config.EnvJWTSecret)
	}

	logger.Info("Starting rover ingestion service",
		zap.Int("sources", len(cfg.Sources)),
		zap.Bool("scheduler_enabled", cfg.Scheduler.Enabled),
		zap.String("rate_limit_backend", cfg.RateLimit.Backend),
	)

	db, err := pgutil.ConnectDB(ctx, &cfg.Database, logger)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	c := Wire(cfg, db, logger)
	limiter := ratelimit.NewLimiter(s.counterStore(db), ratelimit.NewTiers(cfg.RateLimit.Tiers, cfg.RateLimit.DefaultTier), logger)
	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.Issuer)

	var wg sync.WaitGroup
	bgCtx, cancelBg := context.WithCancel(ctx)
	defer cancelBg()

	if cfg.Scheduler.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Runner.Start(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Background runner stopped", zap.Error(err))
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		limiter.RunSweeper(bgCtx, counterSweepPeriod)
	}()

	router := s.newRouter(c, limiter, tokens, logger)
	err = apphttp.ServeAndWait(ctx, router, logger, &cfg.Server)

	// stop background work before the deferred DB close
	cancelBg()
	wg.Wait()
	return err
}

func (s *Server) counterStore(db *bun.DB) ratelimit.Store {
	if s.cfg.RateLimit.Backend == "postgres" {
		return ratelimit.NewPGStore(db)
	}
	return ratelimit.NewMemoryStore()
}

func (s *Server) newRouter(c *Components, limiter *ratelimit.Limiter, tokens *auth.Tokens, logger *zap.Logger) http.Handler {
	cfg := s.cfg

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apphttp.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := c.DB.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("NOT_READY"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	})

	if cfg.Monitoring.Enabled {
		r.Handle("/metrics", promhttp.Handler())
		logger.Info("Metrics enabled", zap.String("path", "/metrics"))
	}

	authenticated := func(r chi.Router) {
		r.Use(auth.Middleware(tokens, logger))
		r.Use(ratelimit.Middleware(limiter, logger))
	}

	// runs are synchronous and may outlive the API request timeout
	r.Group(func(r chi.Router) {
		authenticated(r)
		r.Use(auth.RequireAdmin)

		svc := scraperservice.NewService(c.Scheduler, c.Runner, c.Cursors, cfg.Sources, cfg.Scheduler.Lookback, logger)
		scraperservice.RegisterRoutes(r, scraperservice.NewLog(svc, logger), logger)
	})

	r.Route("/api/v1", func(r chi.Router) {
		authenticated(r)
		r.Use(middleware.Timeout(apiRequestTimeout))

		recordservice.RegisterRoutes(r, recordservice.NewService(c.Records, cfg.Sources), logger)
	})

	return r
}
