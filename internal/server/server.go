// Package server is the gin-based HTTP ingress of §4.7 (C7): three
// chat-completion routes plus the supplemented /healthz and /v1/models
// listing, a small middleware chain, and graceful shutdown with a drain
// deadline, grounded on the teacher's internal/onrserver package.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/loopwire/relay/internal/config"
	"github.com/loopwire/relay/internal/eventsink"
	"github.com/loopwire/relay/internal/logx"
	"github.com/loopwire/relay/internal/orchestrator"
	"github.com/loopwire/relay/internal/routing"
)

const requestIDHeader = "X-Request-Id"

// Server owns the gin engine, the shared orchestrator, and the routing
// table's live pointer so SIGHUP can atomically swap it.
type Server struct {
	cfg    *config.Config
	orch   *orchestrator.Orchestrator
	engine *gin.Engine
	sink   eventsink.Sink
	ring   *eventsink.RingBuffer // nil disables the /debug/recent diagnose endpoint

	draining  int32 // atomic bool, set during shutdown drain
	startedAt time.Time
}

// New builds the gin engine and route table. The orchestrator is expected
// to already be wired against the live routing table so a later
// routing.Table.Replace (SIGHUP) is visible to in-flight and future
// requests without rebuilding the server. ring, if non-nil, is the same
// RingBuffer the caller fed into the orchestrator's event sink — the
// diagnose CLI polls it over /debug/recent rather than sharing process
// memory, matching the "external collaborator" boundary of §1.
func New(cfg *config.Config, orch *orchestrator.Orchestrator, sink eventsink.Sink, ring *eventsink.RingBuffer) *Server {
	if sink == nil {
		sink = eventsink.Discard{}
	}
	s := &Server{cfg: cfg, orch: orch, sink: sink, ring: ring, startedAt: time.Now()}
	s.engine = s.buildEngine()
	return s
}

func (s *Server) buildEngine() *gin.Engine {
	if logx.ParseLevel(s.cfg.Server.LogLevel) > logx.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(s.requestIDMiddleware())
	r.Use(s.drainMiddleware())
	if s.cfg.Logging.AccessLog {
		r.Use(s.accessLogMiddleware())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealthz)
	r.GET("/v1/models", s.handleModels)
	if s.ring != nil {
		r.GET("/debug/recent", s.handleRecentEvents)
	}

	r.POST("/v1/chat/completions", s.handleOpenAIChat)
	r.POST("/v1/messages", s.handleAnthropicMessages)
	r.POST("/v1beta/models/*path", s.handleGemini)

	return r
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// drainMiddleware rejects new requests with 503 once shutdown has begun
// draining in-flight work, per §4.7's "503 during graceful shutdown".
func (s *Server) drainMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if atomic.LoadInt32(&s.draining) == 1 {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": gin.H{"message": "server is draining in-flight requests, try again shortly"},
			})
			return
		}
		c.Next()
	}
}

func (s *Server) accessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		latency := time.Since(start)
		fields := map[string]any{}
		if v, ok := c.Get("request_id"); ok {
			fields["request_id"] = v
		}
		if v, ok := c.Get("provider"); ok {
			fields["provider"] = v
		}
		if v, ok := c.Get("selector"); ok {
			fields["selector"] = v
		}
		fmt.Fprintln(gin.DefaultWriter, logx.FormatRequestLine(time.Now(), status, latency, c.ClientIP(), c.Request.Method, c.Request.URL.Path, fields))
	}
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "uptime_s": int64(time.Since(s.startedAt).Seconds())})
}

func (s *Server) handleModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"aliases": s.orch.Routing.Aliases()})
}

// handleRecentEvents backs the diagnose TUI's data source: a snapshot of the
// last N structured events, oldest first, in place of the teacher's
// per-request dump files.
func (s *Server) handleRecentEvents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"events": s.ring.Snapshot()})
}

// Engine exposes the underlying gin engine, mainly for tests.
func (s *Server) Engine() *gin.Engine { return s.engine }

// Run starts the HTTP listener and blocks until a termination signal
// arrives, then drains in-flight requests up to the configured deadline.
func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	httpServer := &http.Server{Addr: addr, Handler: s.engine}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	hupCh := make(chan os.Signal, 2)
	signal.Notify(hupCh, syscall.SIGHUP)
	go func() {
		for range hupCh {
			s.reload()
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		logx.Event(logx.LevelInfo, "listening", map[string]any{"addr": addr})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case err := <-serveErr:
		return err
	case <-sigCh:
	}

	atomic.StoreInt32(&s.draining, 1)
	logx.Event(logx.LevelInfo, "draining", map[string]any{
		"deadline_ms": s.cfg.Server.DrainTimeoutMs,
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.Server.DrainTimeoutMs)*time.Millisecond)
	defer cancel()
	return httpServer.Shutdown(ctx)
}

// reload rebuilds the routing table from the routing section of the
// configuration loaded at startup and swaps it in without dropping
// in-flight requests. The config file is not read again, and collaborator
// credential files are not re-imported.
func (s *Server) reload() {
	next, err := routing.NewTable(s.cfg.RoutingModels())
	if err != nil {
		logx.Event(logx.LevelError, "reload failed", map[string]any{"error": err.Error()})
		return
	}
	s.orch.Routing.Replace(next)
	logx.Event(logx.LevelInfo, "reload ok", nil)
}
