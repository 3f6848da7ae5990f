package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/tasknest/apiserver/config"
	"github.com/tasknest/apiserver/internal/db"
	"github.com/tasknest/apiserver/internal/handlers"
	"github.com/tasknest/apiserver/internal/mailer"
	"github.com/tasknest/apiserver/internal/mq"
	"github.com/tasknest/apiserver/internal/services"
	"github.com/tasknest/apiserver/internal/storage"
	"github.com/tasknest/apiserver/internal/store"
	"go.mongodb.org/mongo-driver/mongo"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *mongo.Database
	queue      *mq.MQ
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	database, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := store.EnsureIndexes(ctx, database, cfg.OTP.TTL); err != nil {
		_ = db.Close(database)
		return nil, err
	}

	jwtSecret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if jwtSecret == "" {
		_ = db.Close(database)
		return nil, errors.New("JWT_SECRET is required")
	}

	blobStore, err := newObjectStorage(ctx, cfg)
	if err != nil {
		_ = db.Close(database)
		return nil, err
	}
	if err := blobStore.EnsureBucket(ctx); err != nil {
		_ = db.Close(database)
		return nil, fmt.Errorf("ensure bucket %s: %w", blobStore.Bucket(), err)
	}
	uploader := storage.NewUploader(blobStore, cfg.Storage.PublicBaseURL)

	notifier, queue, err := newNotifier(ctx, cfg)
	if err != nil {
		_ = db.Close(database)
		return nil, err
	}

	userRepo := store.NewUserRepository(database)
	otpRepo := store.NewOTPRepository(database)
	todoRepo := store.NewTodoRepository(database)

	userService := services.NewUserService(userRepo)
	otpService := services.NewOTPService(otpRepo, userRepo, notifier, cfg.OTP.ResendCooldown)
	todoService := services.NewTodoService(todoRepo)

	authMiddleware := handlers.RequireAuth(userService, jwtSecret)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))
	router.Get("/healthz", handlers.Healthz)
	router.Route("/user", func(r chi.Router) {
		handlers.UserRouter(r, userService, otpService, jwtSecret)
	})
	router.Route("/todo", func(r chi.Router) {
		handlers.TodoRouter(r, todoService, userService, authMiddleware)
	})
	router.Route("/asset", func(r chi.Router) {
		handlers.AssetRouter(r, uploader, userService, jwtSecret, authMiddleware)
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

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         database,
		queue:      queue,
	}, nil
}

func newObjectStorage(ctx context.Context, cfg config.Config) (storage.ObjectStorage, error) {
	switch cfg.Storage.Backend {
	case "minio":
		return storage.NewMinioClient(cfg.Storage.Minio)
	case "gcs":
		return storage.NewGCSClient(ctx, cfg.Storage.GCS)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// newNotifier builds the OTP mail dispatcher. The returned queue is
// non-nil only for the "queue" backend and must be closed on shutdown.
func newNotifier(ctx context.Context, cfg config.Config) (mailer.Notifier, *mq.MQ, error) {
	switch cfg.Mail.Backend {
	case "smtp":
		return mailer.NewAsyncNotifier(mailer.NewSMTPNotifier(cfg.Mail)), nil, nil
	case "queue":
		backend, err := newQueueBackend(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		queue := mq.New(backend)
		return mailer.NewQueueNotifier(queue), queue, nil
	case "log":
		return mailer.NewLogNotifier(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown mail backend %q", cfg.Mail.Backend)
	}
}

func newQueueBackend(ctx context.Context, cfg config.Config) (mq.Backend, error) {
	switch cfg.MQ.Backend {
	case "rabbitmq":
		return mq.NewRabbitMQClient(cfg.MQ.RabbitMQ, cfg.Mail.Queue)
	case "pubsub":
		return mq.NewPubSubClient(ctx, cfg.MQ.PubSub, cfg.Mail.Queue)
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.MQ.Backend)
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.queue != nil {
		_ = s.queue.Close()
	}
	if s.db != nil {
		_ = db.Close(s.db)
	}
	return s.httpServer.Close()
}
