// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, authentication, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Every privileged route behind bearer auth and an explicit role gate
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-datashare-backend/internal/auth"
	"github.com/tbourn/go-datashare-backend/internal/config"
	"github.com/tbourn/go-datashare-backend/internal/domain"
	"github.com/tbourn/go-datashare-backend/internal/http/handlers"
	"github.com/tbourn/go-datashare-backend/internal/http/middleware"
	"github.com/tbourn/go-datashare-backend/internal/repo"
	"github.com/tbourn/go-datashare-backend/internal/services"
)

// transferRepoShim adapts the repository free functions to the
// services.TransferRepo interface expected by the TransferService. This
// keeps services decoupled from the concrete repo package while reusing
// existing functions.
type transferRepoShim struct{}

func (transferRepoShim) CreateTransferRequest(ctx context.Context, db *gorm.DB, senderID, table string) (*domain.TransferRequest, error) {
	return repo.CreateTransferRequest(ctx, db, senderID, table)
}

func (transferRepoShim) GetTransfer(ctx context.Context, db *gorm.DB, id uint) (*domain.TransferRequest, error) {
	return repo.GetTransfer(ctx, db, id)
}

func (transferRepoShim) ListPendingTransfers(ctx context.Context, db *gorm.DB) ([]domain.TransferRequest, error) {
	return repo.ListPendingTransfers(ctx, db)
}

func (transferRepoShim) ListTransfers(ctx context.Context, db *gorm.DB, limit int) ([]domain.TransferRequest, error) {
	return repo.ListTransfers(ctx, db, limit)
}

func (transferRepoShim) FinalizeTransfer(ctx context.Context, db *gorm.DB, id uint, status, payloadHash string) error {
	return repo.FinalizeTransfer(ctx, db, id, status, payloadHash)
}

func (transferRepoShim) CountTransferStats(ctx context.Context, db *gorm.DB) (repo.TransferStats, error) {
	return repo.CountTransferStats(ctx, db)
}

func (transferRepoShim) TableExists(ctx context.Context, db *gorm.DB, table string) (bool, error) {
	return repo.TableExists(ctx, db, table)
}

func (transferRepoShim) TableDDL(ctx context.Context, db *gorm.DB, table string) (string, error) {
	return repo.TableDDL(ctx, db, table)
}

func (transferRepoShim) ReadTable(ctx context.Context, db *gorm.DB, table string) ([]string, []map[string]string, error) {
	return repo.ReadTable(ctx, db, table)
}

func (transferRepoShim) DropTable(ctx context.Context, db *gorm.DB, table string) error {
	return repo.DropTable(ctx, db, table)
}

func (transferRepoShim) ExecDDL(ctx context.Context, db *gorm.DB, stmt string) error {
	return repo.ExecDDL(ctx, db, stmt)
}

func (transferRepoShim) InsertRows(ctx context.Context, db *gorm.DB, table string, headers []string, rows []map[string]string) (int, int) {
	return repo.InsertRows(ctx, db, table, headers, rows)
}

func (transferRepoShim) ListTables(ctx context.Context, db *gorm.DB) ([]string, error) {
	return repo.ListTables(ctx, db)
}

// queryRepoShim adapts the repository free functions to services.QueryRepo.
type queryRepoShim struct{}

func (queryRepoShim) CreateQueryRequest(ctx context.Context, db *gorm.DB, query, requestedBy string) (*domain.QueryRequest, error) {
	return repo.CreateQueryRequest(ctx, db, query, requestedBy)
}

func (queryRepoShim) GetQueryRequest(ctx context.Context, db *gorm.DB, id uint) (*domain.QueryRequest, error) {
	return repo.GetQueryRequest(ctx, db, id)
}

func (queryRepoShim) ListQueriesByStatus(ctx context.Context, db *gorm.DB, status string) ([]domain.QueryRequest, error) {
	return repo.ListQueriesByStatus(ctx, db, status)
}

func (queryRepoShim) ApproveQuery(ctx context.Context, db *gorm.DB, id uint, resultData, resultHeaders, tableName string) error {
	return repo.ApproveQuery(ctx, db, id, resultData, resultHeaders, tableName)
}

func (queryRepoShim) RejectQuery(ctx context.Context, db *gorm.DB, id uint) error {
	return repo.RejectQuery(ctx, db, id)
}

func (queryRepoShim) RunQuery(ctx context.Context, db *gorm.DB, query string) ([]string, []map[string]string, error) {
	return repo.RunQuery(ctx, db, query)
}

func (queryRepoShim) TableColumns(ctx context.Context, db *gorm.DB, table string) ([]string, error) {
	return repo.TableColumns(ctx, db, table)
}

func (queryRepoShim) CreateTextTable(ctx context.Context, db *gorm.DB, table string, headers []string) error {
	return repo.CreateTextTable(ctx, db, table, headers)
}

func (queryRepoShim) InsertRowsStrict(ctx context.Context, db *gorm.DB, table string, headers []string, rows []map[string]string) error {
	return repo.InsertRowsStrict(ctx, db, table, headers, rows)
}

// userStoreShim adapts the credential repo to the auth.UserStore contract.
type userStoreShim struct{ db *gorm.DB }

func (s userStoreShim) GetUserByUsername(ctx context.Context, username string) (string, string, string, error) {
	u, err := repo.GetUserByUsername(ctx, s.db, username)
	if err != nil {
		return "", "", "", err
	}
	return u.Username, u.PasswordHash, u.Role, nil
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), rate limiting,
// CORS and security headers, health and metrics endpoints, and then mounts
// the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with sensitive-header scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter (per user/IP)
//  8. CORS and Security headers
func RegisterRoutes(r *gin.Engine, senderDB, receiverDB *gorm.DB, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction (bearer tokens are masked)
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 8) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Content-Disposition"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Content-Disposition"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Dependency injection: services ← repos/stores
	authSvc := auth.NewService(userStoreShim{db: receiverDB}, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	transferSvc := services.NewTransferService(senderDB, receiverDB, transferRepoShim{}, cfg.TrustedSenderID)
	querySvc := services.NewQueryService(senderDB, receiverDB, queryRepoShim{})
	h := handlers.New(authSvc, transferSvc, querySvc,
		func() error { return repo.Ping(senderDB) },
		func() error { return repo.Ping(receiverDB) },
	)

	// Liveness/health (reports both stores independently)
	r.GET("/health", h.Health)

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath)
	api.POST("/login", h.Login)

	authed := api.Group("", middleware.RequireAuth(authSvc))
	receiver := authed.Group("", middleware.RequireRole(domain.RoleReceiver))
	sender := authed.Group("", middleware.RequireRole(domain.RoleSender))
	anyRole := authed.Group("", middleware.RequireAnyRole(domain.RoleSender, domain.RoleReceiver))
	{
		// Transfers
		receiver.POST("/transfers", h.SubmitTransfer)
		receiver.GET("/transfers", h.ListTransferHistory)
		sender.GET("/transfers/pending", h.ListPendingTransfers)
		sender.POST("/transfers/:id/approve", h.ApproveTransfer)
		sender.POST("/transfers/:id/reject", h.RejectTransfer)
		anyRole.GET("/transfers/stats", h.TransferStats)

		// Queries
		receiver.POST("/queries", h.SubmitQuery)
		anyRole.GET("/queries/pending", h.ListPendingQueries)
		receiver.GET("/queries/approved", h.ListApprovedQueries)
		sender.POST("/queries/:id/preview", h.PreviewQuery)
		sender.POST("/queries/:id/approve", h.ApproveQuery)
		sender.POST("/queries/:id/reject", h.RejectQuery)
		receiver.GET("/queries/:id/csv", h.DownloadQueryCSV)

		// Stores
		anyRole.GET("/sender/tables", h.SenderTables)
		receiver.POST("/run-query", h.RunQuery)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
