package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"

	"github.com/ranqly/contest-engine/anchor"
	"github.com/ranqly/contest-engine/config"
	"github.com/ranqly/contest-engine/db"
	"github.com/ranqly/contest-engine/handlers"
	"github.com/ranqly/contest-engine/middleware"
	"github.com/ranqly/contest-engine/realtime"
	"github.com/ranqly/contest-engine/repositories"
	api "github.com/ranqly/contest-engine/routes"
	"github.com/ranqly/contest-engine/services"
	"github.com/ranqly/contest-engine/storage"
)

const watcherInterval = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		}
	}()
	logger.Info("database connection established")

	uploader, err := storage.NewCloudflareR2Uploader(storage.CloudflareR2UploaderConfig{
		AccountID:       cfg.R2AccountID,
		AccessKeyID:     cfg.R2AccessKeyID,
		SecretAccessKey: cfg.R2SecretAccessKey,
		BucketName:      cfg.R2BucketName,
		PublicBaseURL:   cfg.R2PublicBaseURL,
	})
	if err != nil {
		logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Cloudflare R2 uploader initialized")

	var anchorClient anchor.Client
	if cfg.AnchorBaseURL != "" {
		anchorClient = anchor.NewHTTPClient(cfg.AnchorBaseURL, cfg.AnchorAPIKey)
		logger.Info("anchor service client initialized", slog.String("base_url", cfg.AnchorBaseURL))
	} else {
		anchorClient = anchor.NewLogOnlyClient(logger)
		logger.Warn("ANCHOR_BASE_URL is not set, audit packs will not be anchored")
	}

	hub := realtime.NewHub(logger)
	go hub.Run()
	logger.Info("websocket hub started")

	userRepo := repositories.NewPostgresUserRepository(dbConn)
	contestRepo := repositories.NewPostgresContestRepository(dbConn)
	entryRepo := repositories.NewPostgresEntryRepository(dbConn)
	voteRepo := repositories.NewPostgresVoteRepository(dbConn)
	ballotRepo := repositories.NewPostgresBallotRepository(dbConn)
	scoreRepo := repositories.NewPostgresScoreRepository(dbConn)
	auditRepo := repositories.NewPostgresAuditRepository(dbConn)
	txRunner := repositories.NewTxRunner(dbConn)
	logger.Info("repositories initialized")

	locks := services.NewContestLocks()

	authService := services.NewAuthService(userRepo)
	contestService := services.NewContestService(txRunner, contestRepo, entryRepo, userRepo, locks, hub, logger)
	entryService := services.NewEntryService(txRunner, entryRepo, contestRepo, userRepo, locks, hub, logger)
	voteService := services.NewVoteService(txRunner, voteRepo, entryRepo, contestRepo, scoreRepo, locks, logger)
	judgeService := services.NewJudgeService(txRunner, ballotRepo, entryRepo, contestRepo, userRepo, scoreRepo, locks, logger)
	resultService := services.NewResultService(txRunner, contestRepo, entryRepo, scoreRepo, userRepo, voteService, judgeService, locks, hub, logger)
	auditService := services.NewAuditService(auditRepo, contestRepo, entryRepo, voteRepo, ballotRepo, scoreRepo, uploader, anchorClient, logger)
	logger.Info("services initialized")

	watcher := services.NewPhaseWatcher(contestRepo, voteService, judgeService, resultService, auditService, hub, logger)
	watcherCtx, stopWatcher := context.WithCancel(context.Background())
	defer stopWatcher()
	go watcher.Run(watcherCtx, watcherInterval)

	authenticator := middleware.NewAuthenticator(cfg.JWTSecretKey)
	authHandler := handlers.NewAuthHandler(authService, cfg.JWTSecretKey)
	contestHandler := handlers.NewContestHandler(contestService)
	entryHandler := handlers.NewEntryHandler(entryService)
	voteHandler := handlers.NewVoteHandler(voteService)
	judgeHandler := handlers.NewJudgeHandler(judgeService)
	resultHandler := handlers.NewResultHandler(resultService)
	auditHandler := handlers.NewAuditHandler(auditService)
	webSocketHandler := handlers.NewWebSocketHandler(hub)
	logger.Info("HTTP handlers initialized")

	router := chi.NewRouter()
	api.SetupRoutes(
		router,
		authenticator,
		authHandler,
		contestHandler,
		entryHandler,
		voteHandler,
		judgeHandler,
		resultHandler,
		auditHandler,
		webSocketHandler,
	)
	logger.Info("routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		stopWatcher()

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}
		logger.Info("server shutdown complete")
	}
	logger.Info("application exited")
}
