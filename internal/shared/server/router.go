package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"autosurvey-backend/internal/automation"
	"autosurvey-backend/internal/logs"
	"autosurvey-backend/internal/shared/config"
	"autosurvey-backend/internal/shared/metrics"
	"autosurvey-backend/internal/shared/server/middleware"
	"autosurvey-backend/internal/shared/server/respond"
	"autosurvey-backend/internal/submissions"
	"autosurvey-backend/internal/users"
)

// ProxyPrefix is the path the reverse proxy forwards under; every route is
// also served beneath it.
const ProxyPrefix = "/auto_survey"

const (
	rateGroupAutomation = "AUTOMATION"
	rateGroupPolling    = "POLLING"
)

// RouterDeps are the handlers the router mounts. Nil handlers are skipped.
type RouterDeps struct {
	Config      config.Config
	Users       *users.Handler
	Automation  *automation.Handler
	Logs        *logs.Handler
	Submissions *submissions.Handler
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.RateLimit(middleware.RateLimitConfig{
			GroupFor: rateGroup,
			Rules: map[string]middleware.RateLimitRule{
				rateGroupAutomation: {Rate: 0.2, Burst: 3},
				rateGroupPolling:    {Rate: 5, Burst: 20},
			},
		}),
	)

	r.GET("/metrics", metrics.Handler())
	for _, prefix := range []string{"", ProxyPrefix} {
		root := r.Group(prefix)
		api := root.Group("/api")
		api.GET("/health", func(c *gin.Context) {
			respond.JSON(c, http.StatusOK, gin.H{"ok": true})
		})
		if deps.Users != nil {
			deps.Users.RegisterRoutes(api)
		}
		if deps.Automation != nil {
			deps.Automation.RegisterRoutes(api)
			deps.Automation.RegisterRunRoutes(root)
		}
		if deps.Logs != nil {
			deps.Logs.RegisterRoutes(api)
		}
		if deps.Submissions != nil {
			deps.Submissions.RegisterRoutes(api)
		}
	}

	return r
}

func rateGroup(c *gin.Context) string {
	path := c.FullPath()
	switch {
	case strings.HasSuffix(path, "/run-automation"), strings.HasSuffix(path, "/run-personal-automation"):
		return rateGroupAutomation
	case strings.Contains(path, "/jobs/"):
		return rateGroupPolling
	default:
		return ""
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":51000"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
