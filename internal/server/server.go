package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/studex/apiserver/config"
	"github.com/studex/apiserver/internal/cache"
	"github.com/studex/apiserver/internal/db"
	"github.com/studex/apiserver/internal/handlers"
	"github.com/studex/apiserver/internal/mq"
	"github.com/studex/apiserver/internal/services"
	"github.com/studex/apiserver/internal/storage"
	"github.com/studex/apiserver/internal/store"
)

const (
	StorageMinio = "minio"
	StorageGCS   = "gcs"
	StorageNone  = "none"
)

// Server wraps the HTTP server, its dependencies and the background jobs.
type Server struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	redis      *redis.Client
	broker     *mq.MQ
	media      *storage.Storage
	closers    []io.Closer

	paymentWorker *services.PaymentWorker
	rotator       *services.FeaturedRotator

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New opens every dependency and wires the API. Optional backends (Redis,
// media storage) are skipped when they are not configured.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	s := &Server{cfg: cfg, logger: logger}
	if err := s.open(ctx); err != nil {
		s.closeDependencies()
		return nil, err
	}

	s.router = s.routes(s.media)
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", serverPort(cfg)),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// open connects the backing services in order. Whatever was opened before a
// failure stays on s so the caller can close it.
func (s *Server) open(ctx context.Context) error {
	var err error
	s.db, err = db.Open(ctx, s.cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	s.redis, err = cache.NewRedisClient(ctx, s.cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if s.redis == nil {
		s.logger.Info("redis not configured, caching and rate limiting disabled")
	}

	s.media, err = s.openStorage(ctx)
	if err != nil {
		return err
	}

	backend, err := mq.NewBackend(ctx, s.cfg)
	if err != nil {
		return fmt.Errorf("open message broker: %w", err)
	}
	s.broker = mq.New(backend)
	if _, inMemory := backend.(*mq.MemoryBackend); inMemory && s.cfg.Payment.Simulation && !s.cfg.Payment.WorkerInProcess {
		s.logger.Warn("memory broker without an in-process payment worker, payment jobs will not be consumed")
	}
	return nil
}

func serverPort(cfg config.Config) int {
	if cfg.ServerPort == 0 {
		return 8080
	}
	return cfg.ServerPort
}

// openStorage returns nil when media storage is disabled.
func (s *Server) openStorage(ctx context.Context) (*storage.Storage, error) {
	var backend storage.ObjectStorage
	switch strings.ToLower(strings.TrimSpace(s.cfg.Storage.Backend)) {
	case StorageNone, "":
		s.logger.Warn("media storage disabled, listing uploads will be rejected")
		return nil, nil
	case StorageMinio:
		client, err := storage.NewMinioClient(s.cfg.Minio)
		if err != nil {
			return nil, fmt.Errorf("minio: %w", err)
		}
		backend = client
	case StorageGCS:
		client, err := storage.NewGCSClient(ctx, s.cfg.GCS)
		if err != nil {
			return nil, fmt.Errorf("gcs: %w", err)
		}
		s.closers = append(s.closers, client)
		backend = client
	default:
		return nil, fmt.Errorf("unknown storage backend %q", s.cfg.Storage.Backend)
	}

	media := storage.NewStorage(backend)
	if err := media.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", media.Bucket(), err)
	}
	return media, nil
}

func (s *Server) routes(media *storage.Storage) *chi.Mux {
	cfg := s.cfg
	logger := s.logger

	tx := store.NewTransactor(s.db)
	userRepo := store.NewUserRepository(s.db)
	projectRepo := store.NewProjectRepository(s.db)
	categoryRepo := store.NewCategoryRepository(s.db)
	saleRepo := store.NewSaleRepository(s.db)
	cartRepo := store.NewCartRepository(s.db)
	favoriteRepo := store.NewFavoriteRepository(s.db)
	commentRepo := store.NewCommentRepository(s.db)
	historyRepo := store.NewSearchHistoryRepository(s.db)
	notificationRepo := store.NewNotificationRepository(s.db)

	var featuredCache services.FeaturedCache
	var limiter handlers.Limiter
	if s.redis != nil {
		featuredCache = cache.NewFeaturedCache(s.redis, 0)
		limiter = cache.NewRateLimiter(s.redis, cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}
	var uploader services.MediaUploader
	if media != nil {
		uploader = media
	}

	notifier := services.NewNotificationService(notificationRepo, logger)
	userService := services.NewUserService(userRepo)
	historyService := services.NewSearchHistoryService(tx, historyRepo)
	catalogService := services.NewCatalogService(projectRepo, categoryRepo, featuredCache, historyService, cfg.Featured.Limit, logger)
	listingService := services.NewListingService(tx, projectRepo, categoryRepo, saleRepo, uploader, featuredCache, logger)
	purchaseService := services.NewPurchaseService(
		tx,
		saleRepo,
		projectRepo,
		cartRepo,
		userRepo,
		notifier,
		s.broker,
		services.PurchaseConfig{
			Simulation:      cfg.Payment.Simulation,
			CompletionDelay: cfg.Payment.CompletionDelay,
		},
		logger,
	)
	favoriteService := services.NewFavoriteService(favoriteRepo, projectRepo)
	cartService := services.NewCartService(cartRepo, projectRepo, saleRepo)
	commentService := services.NewCommentService(commentRepo, projectRepo, notifier)

	if cfg.Payment.Simulation && cfg.Payment.WorkerInProcess {
		s.paymentWorker = NewPaymentWorker(s.db, logger)
	}
	s.rotator = services.NewFeaturedRotator(tx, projectRepo, featuredCache, cfg.Featured.Limit, logger)

	rs := handlers.NewResponder(logger, cfg.IsProduction())
	auth := handlers.NewAuthenticator(userService, cfg.Auth.JWTSecret, logger, cfg.IsProduction())

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		handlers.RequestLogger(logger),
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/api", func(r chi.Router) {
		r.Use(handlers.RateLimit(limiter, logger))

		r.Route("/auth", func(r chi.Router) {
			handlers.AuthRouter(r, handlers.NewAuthHandler(auth, userService, cfg.Auth, cfg.Google))
		})
		r.Route("/users", func(r chi.Router) {
			handlers.UserRouter(r, handlers.NewUserHandler(userService, rs), auth)
		})
		r.Route("/projects", func(r chi.Router) {
			handlers.ProjectRouter(r, handlers.NewProjectHandler(catalogService, listingService, rs), auth)
		})
		r.Route("/purchases", func(r chi.Router) {
			handlers.PurchaseRouter(r, handlers.NewPurchaseHandler(purchaseService, rs), auth)
		})
		r.Route("/favorites", func(r chi.Router) {
			handlers.FavoriteRouter(r, handlers.NewFavoriteHandler(favoriteService, rs), auth)
		})
		r.Route("/cart", func(r chi.Router) {
			handlers.CartRouter(r, handlers.NewCartHandler(cartService, rs), auth)
		})
		r.Route("/comments", func(r chi.Router) {
			handlers.CommentRouter(r, handlers.NewCommentHandler(commentService, rs), auth)
		})
		r.Route("/search-history", func(r chi.Router) {
			handlers.SearchHistoryRouter(r, handlers.NewSearchHistoryHandler(historyService, rs), auth)
		})
		r.Route("/notifications", func(r chi.Router) {
			handlers.NotificationRouter(r, handlers.NewNotificationHandler(notifier, rs), auth)
		})
	})
	return router
}

// NewPaymentWorker builds the consumer that settles simulated payments.
func NewPaymentWorker(dbConn *sql.DB, logger *slog.Logger) *services.PaymentWorker {
	userRepo := store.NewUserRepository(dbConn)
	return services.NewPaymentWorker(
		store.NewTransactor(dbConn),
		store.NewSaleRepository(dbConn),
		userRepo,
		services.NewNotificationService(store.NewNotificationRepository(dbConn), logger),
		logger,
	)
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start launches the background jobs and serves HTTP until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	bg, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if s.paymentWorker != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.paymentWorker.Run(bg, s.broker); err != nil {
				s.logger.Error("payment worker stopped", slog.Any("error", err))
			}
		}()
	}
	if s.cfg.Featured.Interval > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.rotator.Run(bg, s.cfg.Featured.Interval)
		}()
	}

	s.logger.Info("http server listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, stops the background jobs and closes
// the broker, caches and the pool.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("background jobs did not stop before the shutdown deadline")
	}

	s.closeDependencies()
	return err
}

func (s *Server) closeDependencies() {
	if s.broker != nil {
		if err := s.broker.Close(); err != nil {
			s.logger.Warn("close broker", slog.Any("error", err))
		}
	}
	for _, closer := range s.closers {
		if err := closer.Close(); err != nil {
			s.logger.Warn("close storage", slog.Any("error", err))
		}
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}
