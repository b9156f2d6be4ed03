// Package api serves the analytics over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"ah_scanner/analytics"
	"ah_scanner/observability"
	"ah_scanner/services"
)

const (
	defaultLiveWindow = 5 * time.Minute
	defaultLiveLimit  = 100
	maxLiveLimit      = 500
	defaultSearchSize = 20
)

type Handler struct {
	engine *analytics.Engine
}

func SetupRoutes(r *gin.RouterGroup, engine *analytics.Engine) *Handler {
	h := &Handler{engine: engine}

	r.GET("/live", h.Live)
	r.GET("/undervalued", h.Undervalued)
	r.GET("/recommendations", h.Recommendations)
	r.GET("/market", h.Market)
	r.GET("/trend/:item_id", h.Trend)
	r.GET("/stats", h.Stats)
	r.GET("/search", h.Search)

	return h
}

// NewRouter builds the full route table, including health and metrics.
func NewRouter(engine *analytics.Engine, health *services.HealthcheckService, metrics *observability.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	// CORS middleware
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	r.GET("/healthz", healthz(health))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	SetupRoutes(r.Group("/api"), engine)
	return r
}

// healthz answers 503 once listing cycles stop landing.
func healthz(health *services.HealthcheckService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if health == nil {
			ok(c, gin.H{"status": services.HealthOK})
			return
		}
		h, err := health.Check(c.Request.Context())
		if err != nil {
			fail(c, http.StatusServiceUnavailable, err)
			return
		}
		code := http.StatusOK
		if h.Status == services.HealthStale {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": "ok", "data": h})
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("http request",
			"method", c.Request.Method, "path", c.FullPath(), "status", c.Writer.Status(),
			"took", time.Since(start).Round(time.Microsecond))
	}
}

// Server runs the router until its context is cancelled.
type Server struct {
	srv *http.Server
}

func NewServer(addr string, handler http.Handler) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("api listening", "addr", s.srv.Addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": data})
}

func fail(c *gin.Context, code int, err error) {
	if code >= http.StatusInternalServerError {
		slog.Error("api request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(code, gin.H{"status": "error", "message": err.Error()})
}

func queryInt(c *gin.Context, key string, def, max int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, errors.New(key + " must be a positive integer")
	}
	if max > 0 && n > max {
		n = max
	}
	return n, nil
}

// Live returns events from the last window seconds, newest first.
func (h *Handler) Live(c *gin.Context) {
	window := defaultLiveWindow
	if c.Query("window") != "" {
		secs, err := queryInt(c, "window", 0, 0)
		if err != nil {
			fail(c, http.StatusBadRequest, err)
			return
		}
		window = time.Duration(secs) * time.Second
	}
	limit, err := queryInt(c, "limit", defaultLiveLimit, maxLiveLimit)
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	events, err := h.engine.LiveListings(c.Request.Context(), window, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, events)
}

func (h *Handler) Undervalued(c *gin.Context) {
	data, err := h.engine.Undervalued(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, data)
}

func (h *Handler) Recommendations(c *gin.Context) {
	data, err := h.engine.Recommendations(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, data)
}

func (h *Handler) Market(c *gin.Context) {
	data, err := h.engine.MarketOverview(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, data)
}

func (h *Handler) Trend(c *gin.Context) {
	data, err := h.engine.Trend(c.Request.Context(), c.Param("item_id"))
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, data)
}

func (h *Handler) Stats(c *gin.Context) {
	data, err := h.engine.GlobalStats(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, data)
}

func (h *Handler) Search(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		fail(c, http.StatusBadRequest, errors.New("q is required"))
		return
	}
	limit, err := queryInt(c, "limit", defaultSearchSize, 100)
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	data, err := h.engine.SearchItems(c.Request.Context(), q, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, data)
}
