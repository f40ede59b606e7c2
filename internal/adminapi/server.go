// Package adminapi exposes the ingestion pipeline's operational surface:
// health, version, system info and a live log stream. It carries no
// trading or strategy endpoints, only what an operator needs to tell the
// pipeline is alive and catch up on what it has been doing.
package adminapi

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/marketdata/ingestpipe/internal/events"
	"github.com/marketdata/ingestpipe/internal/logging"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// HealthChecker is implemented by any dependency the admin surface should
// report on (database pool, Redis client, column store connection).
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// GapSnapshotter is implemented by archive.GapTracker. It is narrowed to
// an interface here so adminapi does not import internal/archive.
type GapSnapshotter interface {
	Snapshot() map[string]int
}

// Config holds the admin HTTP server's own settings.
type Config struct {
	Host            string
	Port            int
	AllowedOrigins  []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	LogBufferSize   int
}

// DefaultConfig returns sane defaults for local and container deployment.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8090,
		AllowedOrigins:  []string{"*"},
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		LogBufferSize:   2000,
	}
}

// Server is the admin/observability HTTP surface.
type Server struct {
	cfg        Config
	router     *gin.Engine
	httpServer *http.Server
	bus        *events.EventBus
	logs       *logRingBuffer
	limiter    *requestRateLimiter
	startedAt  time.Time
	reqLog     zerolog.Logger
	gaps       GapSnapshotter

	mu       sync.RWMutex
	checkers map[string]HealthChecker
}

// New builds the admin server and wires it to bus for log tailing.
func New(cfg Config, bus *events.EventBus) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		cfg:       cfg,
		router:    router,
		bus:       bus,
		logs:      newLogRingBuffer(cfg.LogBufferSize),
		limiter:   newRequestRateLimiter(60, time.Minute),
		startedAt: time.Now(),
		reqLog:    zerolog.New(os.Stdout).With().Timestamp().Str("component", "adminapi.request").Logger(),
		checkers:  make(map[string]HealthChecker),
	}
	s.logs.attach(bus)
	logging.SetSink(func(line string) { bus.PublishLogLine(line) })

	router.Use(s.requestLogMiddleware())
	s.setupRoutes()
	return s
}

// requestLogMiddleware logs one structured line per request via zerolog,
// separate from the hand-rolled logger the rest of the pipeline uses for
// component lifecycle events.
func (s *Server) requestLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		s.reqLog.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("admin request")
	}
}

// RegisterHealthCheck adds a named dependency that /api/health will probe.
func (s *Server) RegisterHealthCheck(name string, checker HealthChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkers[name] = checker
}

// RegisterGapTracker attaches the archive contiguity gap counts to the
// /api/sysinfo response.
func (s *Server) RegisterGapTracker(g GapSnapshotter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gaps = g
}

func (s *Server) setupRoutes() {
	s.router.Use(s.rateLimitMiddleware())

	api := s.router.Group("/api")
	api.GET("/ping", s.handlePing)
	api.GET("/health", s.handleHealth)
	api.GET("/version", s.handleVersion)
	api.GET("/sysinfo", s.handleSysInfo)
	api.GET("/logs", s.handleLogs)
	api.GET("/logs/sse", s.handleLogsSSE)
}

func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if !s.limiter.allow(path) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded", "path": path})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

func (s *Server) handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":    Version,
		"go_version": runtime.Version(),
	})
}

func (s *Server) handleSysInfo(c *gin.Context) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	s.mu.RLock()
	gaps := s.gaps
	s.mu.RUnlock()

	var gapCounts map[string]int
	if gaps != nil {
		gapCounts = gaps.Snapshot()
	}

	c.JSON(http.StatusOK, gin.H{
		"uptime_seconds": time.Since(s.startedAt).Seconds(),
		"goroutines":     runtime.NumGoroutine(),
		"num_cpu":        runtime.NumCPU(),
		"heap_alloc_mb":  mem.HeapAlloc / 1024 / 1024,
		"heap_sys_mb":    mem.HeapSys / 1024 / 1024,
		"gc_cycles":      mem.NumGC,
		"archive_gaps":   gapCounts,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	s.mu.RLock()
	checkers := make(map[string]HealthChecker, len(s.checkers))
	for name, checker := range s.checkers {
		checkers[name] = checker
	}
	s.mu.RUnlock()

	components := make(gin.H, len(checkers))
	healthy := true
	for name, checker := range checkers {
		if err := checker.HealthCheck(ctx); err != nil {
			components[name] = gin.H{"status": "unhealthy", "error": err.Error()}
			healthy = false
		} else {
			components[name] = gin.H{"status": "healthy"}
		}
	}

	status := http.StatusOK
	overall := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "unhealthy"
	}

	c.JSON(status, gin.H{
		"status":     overall,
		"components": components,
		"uptime":     time.Since(s.startedAt).String(),
	})
}

// handleLogs serves a page of buffered log lines, optionally filtered by
// level, component, or a case-insensitive keyword match on the message.
// page is 1-based; page_size defaults to 200 and values outside 1..2000
// fall back to that default.
func (s *Server) handleLogs(c *gin.Context) {
	level := strings.ToUpper(c.Query("level"))
	component := c.Query("component")
	query := strings.ToLower(c.Query("keyword"))

	pageSize := 200
	if v, err := strconv.Atoi(c.Query("page_size")); err == nil && v > 0 && v <= 2000 {
		pageSize = v
	}
	page := 1
	if v, err := strconv.Atoi(c.Query("page")); err == nil && v >= 1 {
		page = v
	}

	all := s.logs.snapshot()
	filtered := make([]logLine, 0, len(all))
	for _, line := range all {
		if level != "" && line.Level != level {
			continue
		}
		if component != "" && line.Component != component {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(line.Message), query) {
			continue
		}
		filtered = append(filtered, line)
	}

	total := len(filtered)
	start := (page - 1) * pageSize
	if start > total || start < 0 {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	c.JSON(http.StatusOK, gin.H{
		"total": total,
		"lines": filtered[start:end],
	})
}

// handleLogsSSE streams newly emitted log lines as Server-Sent Events
// until the client disconnects.
func (s *Server) handleLogsSSE(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	lines := make(chan string, 256)
	unsubscribe := s.bus.SubscribeTemp(events.EventLogLine, func(ev events.Event) {
		raw, _ := ev.Data["line"].(string)
		if raw == "" {
			return
		}
		select {
		case lines <- raw:
		default:
		}
	})
	defer unsubscribe()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case line := <-lines:
			fmt.Fprintf(c.Writer, "data: %s\n\n", line)
			flusher.Flush()
		}
	}
}

// Start runs the admin HTTP server until the process is asked to stop.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	logging.Default().WithComponent("adminapi").WithField("address", addr).Info("starting admin HTTP server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("admin server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the admin HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
