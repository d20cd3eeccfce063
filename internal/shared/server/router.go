package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	googleauth "interview-backend/internal/auth"
	"interview-backend/internal/enhance"
	"interview-backend/internal/interviews"
	"interview-backend/internal/payments"
	"interview-backend/internal/sessions"
	"interview-backend/internal/shared/config"
	"interview-backend/internal/shared/metrics"
	"interview-backend/internal/shared/server/middleware"
	"interview-backend/internal/shared/server/respond"
	"interview-backend/internal/speech"
	"interview-backend/internal/usage"
	"interview-backend/internal/users"
)

// RouterDeps carries the handlers the router mounts. Nil handlers are
// skipped so partial wiring (tests, worker-only deployments) stays usable.
type RouterDeps struct {
	Config           config.Config
	SessionHandler   *sessions.Handler
	InterviewHandler *interviews.Handler
	PaymentHandler   *payments.Handler
	SpeechHandler    *speech.Handler
	EnhanceHandler   *enhance.Handler
	UsageHandler     *usage.Handler
	UserHandler      *users.Handler
	GoogleAuth       *googleauth.GoogleService
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
		middleware.Auth(cfg.Env),
		middleware.RateLimit(middleware.RateLimitConfig{}),
	)

	r.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})

	if deps.GoogleAuth != nil {
		deps.GoogleAuth.RegisterRoutes(api)
	}
	if deps.UserHandler != nil {
		deps.UserHandler.RegisterRoutes(api)
	}
	if deps.SessionHandler != nil {
		deps.SessionHandler.RegisterRoutes(api)
	}
	if deps.InterviewHandler != nil {
		deps.InterviewHandler.RegisterRoutes(api)
	}
	if deps.PaymentHandler != nil {
		deps.PaymentHandler.RegisterRoutes(api)
	}
	if deps.SpeechHandler != nil {
		deps.SpeechHandler.RegisterRoutes(api)
	}
	if deps.EnhanceHandler != nil {
		deps.EnhanceHandler.RegisterRoutes(api)
	}
	if deps.UsageHandler != nil {
		deps.UsageHandler.RegisterRoutes(api)
	}

	if cfg.Env == "dev" && deps.UsageHandler != nil {
		dev := api.Group("/dev")
		deps.UsageHandler.RegisterDevRoutes(dev)
	}

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
