package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Vovarama1992/go-utils/logger"

	"github.com/Vovarama1992/echolite/internal/audio"
	"github.com/Vovarama1992/echolite/internal/delivery"
	"github.com/Vovarama1992/echolite/internal/error_notificator"
	"github.com/Vovarama1992/echolite/internal/gateway"
	"github.com/Vovarama1992/echolite/internal/process"
	"github.com/Vovarama1992/echolite/internal/settings"
	"github.com/Vovarama1992/echolite/internal/stream"
	"github.com/Vovarama1992/echolite/internal/transcribe"
	"github.com/Vovarama1992/echolite/internal/workspace"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func main() {

	// =========================================================================
	// ENV / LOGGER
	// =========================================================================

	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}

	baseLogger, _ := zap.NewProduction()
	defer baseLogger.Sync()
	zl := logger.NewZapLogger(baseLogger.Sugar())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// =========================================================================
	// SETTINGS STORE
	// =========================================================================

	store, closeStore := openSettingsStore(ctx, baseLogger)
	defer closeStore()

	settingsProvider := settings.NewProvider(store, baseLogger.Named("settings"))
	if _, err := settingsProvider.Load(ctx); err != nil {
		log.Fatalf("failed to load model settings: %v", err)
	}

	// =========================================================================
	// ERROR NOTIFICATION
	// =========================================================================

	var errInfra error_notificator.Notificator = error_notificator.NopInfra{}
	if token, chat := os.Getenv("TELEGRAM_BOT_TOKEN"), os.Getenv("TELEGRAM_ADMIN_CHAT_ID"); token != "" && chat != "" {
		tg, err := error_notificator.NewInfra(token, chat)
		if err != nil {
			baseLogger.Warn("telegram notifications disabled", zap.Error(err))
		} else {
			errInfra = tg
		}
	}
	errService := error_notificator.NewService(errInfra, baseLogger.Named("notify"))

	// =========================================================================
	// INFRASTRUCTURE
	// =========================================================================

	runner := process.NewExecRunner(baseLogger.Named("process"))
	workspaces := workspace.NewRoot(os.Getenv("ECHOLITE_TMP_DIR"), baseLogger.Named("workspace"))
	normalizer := audio.NewNormalizer(runner, os.Getenv("FFMPEG_BIN"), baseLogger.Named("audio"))
	chatClient := stream.NewClient(nil, baseLogger.Named("stream"))

	// =========================================================================
	// DOMAIN SERVICES
	// =========================================================================

	transcribeService := transcribe.NewService(runner, baseLogger.Named("transcribe"))
	gatewayService := gateway.NewService(
		settingsProvider,
		workspaces,
		normalizer,
		transcribeService,
		chatClient,
		baseLogger.Named("gateway"),
	)

	// =========================================================================
	// HTTP ROUTER
	// =========================================================================

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
	}))
	r.Use(delivery.RequestIDMiddleware(zl))

	// HANDLERS
	gatewayHandler := gateway.NewHandler(gatewayService, zl, errService, envInt("MAX_UPLOAD_MB", 100)<<20)
	settingsHandler := settings.NewHandler(settingsProvider, zl)

	// ROUTES
	delivery.RegisterRoutes(r, gatewayHandler, settingsHandler, int(envInt("RATE_LIMIT_PER_MIN", 30)))

	// =========================================================================
	// START SERVER
	// =========================================================================

	addr := ":" + port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			baseLogger.Warn("shutdown", zap.Error(err))
		}
	}()

	zl.Log(logger.LogEntry{
		Level:   "info",
		Message: "listening at " + addr + ", settings at " + settingsProvider.Location(),
		Service: "echolite",
	})

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}

// openSettingsStore: Postgres, если задан SETTINGS_DATABASE_URL, затем S3,
// иначе JSON-файл.
func openSettingsStore(ctx context.Context, lg *zap.Logger) (settings.Store, func()) {
	if dsn := os.Getenv("SETTINGS_DATABASE_URL"); dsn != "" {
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			log.Fatalf("db ping failed: %v", err)
		}

		store, err := settings.NewPostgresStore(pingCtx, db, "models")
		if err != nil {
			log.Fatalf("failed to init settings table: %v", err)
		}
		lg.Info("settings store: postgres")
		return store, func() { db.Close() }
	}

	if os.Getenv("SETTINGS_S3_BUCKET") != "" {
		s3ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		store, err := settings.NewS3StoreFromEnv(s3ctx)
		if err != nil {
			log.Fatalf("failed to init s3: %v", err)
		}
		lg.Info("settings store: s3", zap.String("location", store.Location()))
		return store, func() {}
	}

	path := os.Getenv("ECHOLITE_CONFIG_PATH")
	if path == "" {
		path = "configs/echolite.models.json"
	}
	return settings.NewFileStore(path), func() {}
}

func envInt(name string, def int64) int64 {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		log.Printf("[config] invalid %s=%q, using %d", name, v, def)
		return def
	}
	return n
}
