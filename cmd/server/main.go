// Command server runs the data-sharing relay API.
//
// Startup order:
//  1. Load .env (optional) and environment configuration
//  2. Configure zerolog (level, optional pretty console output)
//  3. Initialize OpenTelemetry tracing (optional, OTLP/gRPC)
//  4. Open the sender and receiver SQLite stores
//  5. Migrate ledger tables and seed default credentials (receiver store)
//  6. Build the Gin engine with all middleware and routes
//  7. Serve with hardened timeouts, shut down gracefully on SIGINT/SIGTERM
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-datashare-backend/internal/auth"
	"github.com/tbourn/go-datashare-backend/internal/config"
	"github.com/tbourn/go-datashare-backend/internal/domain"
	httpapi "github.com/tbourn/go-datashare-backend/internal/http"
	"github.com/tbourn/go-datashare-backend/internal/observability"
	"github.com/tbourn/go-datashare-backend/internal/repo"
	"github.com/tbourn/go-datashare-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	ctx := context.Background()
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown failed")
		}
	}()

	senderDB, err := repo.OpenSQLite(cfg.SenderDBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.SenderDBPath).Msg("open sender store failed")
	}
	receiverDB, err := repo.OpenSQLite(cfg.ReceiverDBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.ReceiverDBPath).Msg("open receiver store failed")
	}

	// Ledger tables and the credential store live on the receiver side; the
	// sender store is opened read-mostly and never migrated here.
	if err := repo.MigrateReceiver(receiverDB); err != nil {
		log.Fatal().Err(err).Msg("receiver store migration failed")
	}
	if err := seedUsers(ctx, receiverDB); err != nil {
		log.Fatal().Err(err).Msg("credential seed failed")
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, senderDB, receiverDB, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// seedUsers ensures the two well-known accounts exist. Passwords come from
// the environment so deployments can rotate them; blanks fall back to the
// development defaults. Seeding is idempotent and never overwrites an
// existing record.
func seedUsers(ctx context.Context, db *gorm.DB) error {
	accounts := []struct {
		username string
		password string
		role     string
	}{
		{"hospital_a", sysutil.FirstNonEmpty(os.Getenv("SENDER_PASSWORD"), "sender123"), domain.RoleSender},
		{"hospital_b", sysutil.FirstNonEmpty(os.Getenv("RECEIVER_PASSWORD"), "receiver123"), domain.RoleReceiver},
	}
	for _, a := range accounts {
		hash, err := auth.HashPassword(a.password)
		if err != nil {
			return err
		}
		if err := repo.EnsureUser(ctx, db, a.username, hash, a.role); err != nil {
			return err
		}
	}
	return nil
}
