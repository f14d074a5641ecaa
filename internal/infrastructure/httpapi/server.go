// Package httpapi exposes run control and the persisted batch over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
	"NewsDigest/internal/usecase"
	pkglogger "NewsDigest/pkg/logger"
)

// TriggerAPI marks runs submitted over HTTP.
const TriggerAPI = "api"

const (
	defaultItemLimit = 50
	maxItemLimit     = 500
)

// Runs is the slice of the run queue the API drives.
type Runs interface {
	Submit(ctx context.Context, trigger string) (domain.Run, error)
	Status(id string) (domain.Run, bool)
	Recent(n int) []domain.Run
}

// Deps collects what the handlers need; Metrics may be nil.
type Deps struct {
	Runs    Runs
	Store   ports.StateStore
	Metrics http.Handler
	Logger  *slog.Logger
}

// NewRouter constructs a Gin engine with registered routes.
func NewRouter(deps Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(deps.Logger))

	h := &handlers{runs: deps.Runs, store: deps.Store}

	api := r.Group("/api")
	api.POST("/runs", h.submitRun)
	api.GET("/runs", h.listRuns)
	api.GET("/runs/:id", h.getRun)
	api.GET("/items", h.listItems)
	api.GET("/scripts/unified", h.latestUnified)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics))
	}
	return r
}

// Server owns the listening http.Server.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer binds the router to addr.
func NewServer(addr string, deps Deps) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(deps),
			ReadHeaderTimeout: 10 * time.Second,
			ErrorLog:          pkglogger.New(deps.Logger, "http"),
		},
		logger: deps.Logger,
	}
}

// Start listens in the background; listener failures are reported on the returned channel.
func (s *Server) Start() <-chan error {
	errs := make(chan error, 1)
	go func() {
		if s.logger != nil {
			s.logger.Info("http api listening", "addr", s.srv.Addr)
		}
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("http api: %w", err)
		}
		close(errs)
	}()
	return errs
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type handlers struct {
	runs  Runs
	store ports.StateStore
}

func (h *handlers) submitRun(c *gin.Context) {
	if h.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "runner not configured"})
		return
	}
	run, err := h.runs.Submit(c.Request.Context(), TriggerAPI)
	switch {
	case errors.Is(err, usecase.ErrRunInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.Header("Location", "/api/runs/"+run.ID)
		c.JSON(http.StatusAccepted, run)
	}
}

func (h *handlers) getRun(c *gin.Context) {
	if h.runs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	run, ok := h.runs.Status(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *handlers) listRuns(c *gin.Context) {
	runs := []domain.Run{}
	if h.runs != nil {
		runs = append(runs, h.runs.Recent(0)...)
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (h *handlers) listItems(c *gin.Context) {
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store not configured"})
		return
	}

	stored, err := h.store.ListItems(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	items := make([]domain.ResultItem, 0, len(stored))
	for _, s := range stored {
		items = append(items, s.ToResult())
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *handlers) latestUnified(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store not configured"})
		return
	}
	script, ok, err := h.store.LatestUnified(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no unified script yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"content":   script.Content,
		"weekStart": script.WeekStart,
		"createdAt": script.CreatedAt,
	})
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultItemLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	if n > maxItemLimit {
		n = maxItemLimit
	}
	return n, nil
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if log == nil {
			return
		}
		log.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
