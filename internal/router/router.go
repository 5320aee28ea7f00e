package router

import (
	"html/template"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/assessment-runner/internal/config"
	"github.com/stemsi/assessment-runner/internal/handler"
	"github.com/stemsi/assessment-runner/internal/logger"
	"github.com/stemsi/assessment-runner/internal/middleware"
	"github.com/stemsi/assessment-runner/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Candidate *handler.CandidateHandler
	WS        *handler.WSHandler
	Admin     *handler.AdminHandler
	Export    *handler.ExportHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// rdb may be nil, in which case rate limits are kept in memory.
func SetupRouter(
	handlers *Handlers,
	cfg *config.Config,
	rdb *redis.Client,
	pages *template.Template,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(logger.Requests(log), gin.Recovery())

	// Per-IP rate limits key on ClientIP, so forwarding headers are only
	// honoured from configured proxies.
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.Error().Err(err).Msg("Invalid TRUSTED_PROXIES, trusting no proxies")
		_ = router.SetTrustedProxies(nil)
	}
	router.SetHTMLTemplate(pages)

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Exports are flushed row by row and must reach the client uncompressed.
	brotliConfig := middleware.DefaultBrotliConfig
	brotliConfig.Skipper = middleware.SkipPathPrefixes("/admin/export/")
	router.Use(middleware.BrotliWithConfig(brotliConfig))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	router.NoRoute(handlers.Candidate.NotFound)

	limiterLog := logger.Component(log, "rate_limit")
	startLimiter := middleware.NewLimiter(rdb, "start", cfg.StartRatePerMinute, time.Minute)
	candidateLimiter := middleware.NewLimiter(rdb, "candidate", cfg.CandidateRatePerMinute, time.Minute)
	adminLimiter := middleware.NewLimiter(rdb, "admin", cfg.AdminRatePerMinute, time.Minute)

	// ─── 1. Start (Public, Rate Limited) ───────────────────────────────
	start := router.Group("/")
	start.Use(middleware.RateLimit(startLimiter, limiterLog), middleware.NoStore())
	{
		start.GET("", handlers.Candidate.StartPage)
		start.POST("", handlers.Candidate.Start)
	}

	// ─── 2. Runner (Token URL, Rate Limited) ───────────────────────────
	attempt := router.Group("/a/:token")
	attempt.Use(middleware.RateLimit(candidateLimiter, limiterLog), middleware.NoStore())
	{
		attempt.GET("", handlers.Candidate.Runner)
		attempt.POST("", handlers.Candidate.SubmitForm)
		attempt.POST("/autosave", handlers.Candidate.Autosave)
		attempt.POST("/submit", handlers.Candidate.Submit)
		attempt.GET("/stream", handlers.WS.Stream)
		attempt.GET("/done", handlers.Candidate.Complete)
	}

	// ─── 3. Admin (Basic Auth, Rate Limited) ───────────────────────────
	admin := router.Group("/admin")
	// Limit first so failed credential guesses are throttled too.
	admin.Use(
		middleware.RateLimit(adminLimiter, limiterLog),
		middleware.RequireAdmin(cfg, logger.Component(log, "admin_auth")),
		middleware.NoStore(),
	)
	{
		admin.GET("", handlers.Admin.Home)
		admin.GET("/attempts", handlers.Admin.ListAttempts)
		admin.GET("/attempts/:id", handlers.Admin.ShowAttempt)
		admin.POST("/attempts/:id/notes", handlers.Admin.UpdateNotes)
		admin.POST("/attempts/:id/review", handlers.Admin.Review)
		admin.GET("/export/submissions.csv", handlers.Export.SubmissionsCSV)
		admin.GET("/export/submissions.xlsx", handlers.Export.SubmissionsXLSX)
	}

	return router
}
