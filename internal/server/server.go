// Package server exposes the workflow engine over HTTP.
package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/agenthands/minutes/internal/core"
	"github.com/agenthands/minutes/internal/core/archive"
)

const defaultHeartbeat = 15 * time.Second

type Options struct {
	// AutoExecute applies when a request does not say.
	AutoExecute bool
	Heartbeat   time.Duration
}

type Server struct {
	orch    *core.Orchestrator
	archive *archive.Archive
	opts    Options
	logger  *zap.Logger
}

func NewServer(orch *core.Orchestrator, arch *archive.Archive, opts Options, logger *zap.Logger) *Server {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = defaultHeartbeat
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{orch: orch, archive: arch, opts: opts, logger: logger}
}

// FromComponents builds a Server over wired components.
func FromComponents(c *Components, logger *zap.Logger) *Server {
	return NewServer(c.Orchestrator, c.Archive, Options{
		AutoExecute: c.Config.Scheduler.AutoExecute,
		Heartbeat:   time.Duration(c.Config.Broadcast.HeartbeatSeconds) * time.Second,
	}, logger)
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.POST("/workflows", s.StartWorkflow)
	api.GET("/workflows/status", s.Status)
	api.GET("/workflows/events", s.Events)
	api.POST("/workflows/:id/cancel", s.CancelWorkflow)
	api.GET("/meetings", s.SearchMeetings)

	return r
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

type StartRequest struct {
	Transcript  string `json:"transcript"`
	AutoExecute *bool  `json:"auto_execute"`
}

func (s *Server) StartWorkflow(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	auto := s.opts.AutoExecute
	if req.AutoExecute != nil {
		auto = *req.AutoExecute
	}
	id, err := s.orch.Start(c.Request.Context(), req.Transcript, core.RunOptions{AutoExecute: auto})
	switch {
	case errors.Is(err, core.ErrEmptyTranscript):
		c.JSON(http.StatusBadRequest, gin.H{"error": "No transcript provided"})
	case errors.Is(err, core.ErrRunInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "A workflow is already running", "run_id": s.orch.Status().RunID})
	case err != nil:
		s.logger.Error("failed to start workflow", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start workflow"})
	default:
		c.JSON(http.StatusAccepted, gin.H{"run_id": id, "auto_execute": auto})
	}
}

func (s *Server) CancelWorkflow(c *gin.Context) {
	id := c.Param("id")
	if err := s.orch.Cancel(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No running workflow with that id"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": id, "status": "cancelling"})
}

func (s *Server) Status(c *gin.Context) {
	c.JSON(http.StatusOK, s.orch.Status())
}

// Events streams workflow events as server-sent events until the client
// goes away.
func (s *Server) Events(c *gin.Context) {
	events := s.orch.Events()
	sub := events.Subscribe()
	defer events.Unsubscribe(sub)

	ticker := time.NewTicker(s.opts.Heartbeat)
	defer ticker.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("connected", s.orch.Status())
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		case <-ticker.C:
			_, err := io.WriteString(w, ": heartbeat\n\n")
			return err == nil
		case <-ctx.Done():
			return false
		}
	})
}

func (s *Server) SearchMeetings(c *gin.Context) {
	if s.archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Meeting archive is not configured"})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	found, err := s.archive.Search(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		s.logger.Error("failed to search meetings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": found})
}
