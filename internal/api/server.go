// Package api serves a read-only HTTP view of the daemon: health,
// status snapshot, account summaries and Prometheus metrics. It never
// exposes token material.
package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tokenkeeper/tokenkeeper/internal/config"
	"github.com/tokenkeeper/tokenkeeper/internal/credstore"
	"github.com/tokenkeeper/tokenkeeper/internal/logging"
	"github.com/tokenkeeper/tokenkeeper/internal/metrics"
	"github.com/tokenkeeper/tokenkeeper/internal/models"
	"github.com/tokenkeeper/tokenkeeper/internal/token"
)

// StatusSource provides the live daemon status snapshot.
type StatusSource interface {
	Snapshot() *models.DaemonStatus
}

// Server is the read-only status HTTP server.
type Server struct {
	router     *gin.Engine
	cfg        config.APIConfig
	source     StatusSource
	store      *credstore.Store
	metrics    *metrics.Metrics
	logger     *logging.Logger
	httpServer *http.Server
}

// Router returns the gin router for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// NewServer creates the API server.
func NewServer(cfg config.APIConfig, source StatusSource, store *credstore.Store, m *metrics.Metrics, logger *logging.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	if logger == nil {
		logger = logging.NewLogger(logging.WithService("api"))
	}

	s := &Server{
		router:  gin.New(),
		cfg:     cfg,
		source:  source,
		store:   store,
		metrics: m,
		logger:  logger,
	}
	s.router.HandleMethodNotAllowed = true
	s.router.Use(gin.Recovery())
	s.router.Use(loggingMiddleware(logger))
	s.setupRoutes()
	return s
}

func loggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = logging.GenerateCorrelationID()
		}
		ctx := logging.WithCorrelationID(c.Request.Context(), correlationID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		logger.InfoWithContext(ctx, "request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).Seconds(),
		)
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/status", s.handleStatus)
	s.router.GET("/accounts", s.handleAccounts)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	st := s.source.Snapshot()
	code := http.StatusOK
	if st.DaemonStatus != models.DaemonRunning {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":         st.Health.Status,
		"daemon_status":  st.DaemonStatus,
		"uptime_seconds": st.UptimeSeconds,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.source.Snapshot())
}

// accountSummary is the sanitized per-account view. Token values stay
// out of the API on purpose.
type accountSummary struct {
	Name               string            `json:"name"`
	AccessTokenExpires int64             `json:"access_token_expires_at"`
	AccessTokenValid   bool              `json:"access_token_valid"`
	Quota              *models.QuotaInfo `json:"quota_info,omitempty"`
}

func (s *Server) handleAccounts(c *gin.Context) {
	doc, err := s.store.Load()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load accounts"})
		return
	}

	eval := &token.Evaluator{}
	out := make([]accountSummary, 0, len(doc.Accounts))
	for _, name := range doc.Names() {
		acc := doc.Get(name)
		out = append(out, accountSummary{
			Name:               name,
			AccessTokenExpires: acc.AccessTokenExpiresAt,
			AccessTokenValid:   acc.AccessToken != "" && !eval.IsExpired(acc.AccessToken),
			Quota:              acc.QuotaInfo,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	c.JSON(http.StatusOK, gin.H{"accounts": out})
}
