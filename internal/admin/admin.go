// Package admin exposes a small operator API: health, metrics, scheduler
// control, on-demand batches and the cached news listing.
package admin

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/deusflow/enrich/internal/domain"
	"github.com/deusflow/enrich/internal/metrics"
	"github.com/deusflow/enrich/internal/ratelimit"
	"github.com/deusflow/enrich/internal/scheduler"
	"github.com/deusflow/enrich/internal/storage"
)

type Scheduler interface {
	Start(ctx context.Context)
	Stop()
	Trigger(ctx context.Context) error
	Status() scheduler.Status
}

type BatchRunner interface {
	ProcessAll(ctx context.Context, candidates []domain.RawArticle)
}

type NewsFeed interface {
	List(ctx context.Context, opts storage.ListOptions) ([]domain.EnrichedArticle, error)
}

type Deps struct {
	Scheduler Scheduler
	Runner    BatchRunner
	News      NewsFeed
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	// Budget reports the model token window; /metrics omits it when nil.
	Budget func() ratelimit.Budget

	// BaseContext parents scheduler ticks and batches started over HTTP,
	// so they outlive the request that started them.
	BaseContext context.Context
	// Token, when set, is required as a bearer token on every route but /health.
	Token string
}

type Server struct {
	deps   Deps
	engine *gin.Engine
	srv    *http.Server
	logger *slog.Logger
}

type batchRequest struct {
	Articles []domain.RawArticle `json:"articles" binding:"required,min=1"`
}

func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.BaseContext == nil {
		deps.BaseContext = context.Background()
	}

	s := &Server{deps: deps, logger: deps.Logger.With("component", "admin")}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/health", s.health)

	api := r.Group("/")
	api.Use(s.auth())
	api.GET("/metrics", s.metrics)
	api.GET("/news", s.news)
	api.GET("/scheduler", s.schedulerStatus)
	api.POST("/scheduler/enable", s.enableScheduler)
	api.POST("/scheduler/disable", s.disableScheduler)
	api.POST("/batch", s.triggerBatch)
	api.POST("/batch/articles", s.processArticles)

	s.engine = r
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe blocks until the server stops. A graceful shutdown is not
// reported as an error.
func (s *Server) ListenAndServe() error {
	s.logger.Info("admin API listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func (s *Server) auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.deps.Token == "" {
			c.Next()
			return
		}
		got := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.deps.Token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func (s *Server) health(c *gin.Context) {
	if !s.deps.Metrics.Healthy() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "unhealthy",
			"last_error": s.deps.Metrics.GetStats()["last_error"],
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) metrics(c *gin.Context) {
	stats := s.deps.Metrics.GetStats()
	if s.deps.Budget != nil {
		stats["token_budget"] = s.deps.Budget()
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) news(c *gin.Context) {
	var filters domain.Filters
	if err := c.ShouldBindQuery(&filters); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	opts := storage.ListOptions{
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 0),
		Filters:  filters,
	}

	articles, err := s.deps.News.List(c.Request.Context(), opts)
	if err != nil {
		s.logger.Error("error listing news", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error"})
		return
	}
	if articles == nil {
		articles = []domain.EnrichedArticle{}
	}
	c.JSON(http.StatusOK, gin.H{"articles": articles, "page": opts.Page})
}

func (s *Server) schedulerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Scheduler.Status())
}

func (s *Server) enableScheduler(c *gin.Context) {
	s.deps.Scheduler.Start(s.deps.BaseContext)
	c.JSON(http.StatusOK, s.deps.Scheduler.Status())
}

func (s *Server) disableScheduler(c *gin.Context) {
	s.deps.Scheduler.Stop()
	c.JSON(http.StatusOK, s.deps.Scheduler.Status())
}

func (s *Server) triggerBatch(c *gin.Context) {
	if err := s.deps.Scheduler.Trigger(s.deps.BaseContext); err != nil {
		if errors.Is(err, scheduler.ErrBusy) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

func (s *Server) processArticles(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.deps.Runner.ProcessAll(s.deps.BaseContext, req.Articles)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "articles": len(req.Articles)})
}

func queryInt(c *gin.Context, name string, def int) int {
	v := c.Query(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
