// Package server exposes the scan station to its UI over HTTP.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/denysvitali/odi-gate/pkg/engine"
	"github.com/denysvitali/odi-gate/pkg/metrics"
	"github.com/denysvitali/odi-gate/pkg/models"
	"github.com/denysvitali/odi-gate/pkg/storage/model"
)

var log = logrus.StandardLogger().WithField("package", "server")

// Engine is the station state the API operates on.
type Engine interface {
	View() engine.View
	Submit(ctx context.Context, p models.ScanPayload) (engine.View, error)
	SubmitImage(ctx context.Context, r io.Reader) (engine.View, error)
	Approve(ctx context.Context) (engine.View, error)
	Decline() (engine.View, error)
	Close() engine.View
	StartCamera(device int) (engine.View, error)
	StopCamera() engine.View
}

type HealthFunc func(ctx context.Context) (bool, error)

type Server struct {
	e       *gin.Engine
	engine  Engine
	metrics *metrics.Metrics
	archive model.Retriever
	health  HealthFunc
	now     func() time.Time
}

type Option func(*Server)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithArchive serves archived uploads.
func WithArchive(r model.Retriever) Option {
	return func(s *Server) {
		s.archive = r
	}
}

// WithBackendHealth reports the facility backend health on /healthz.
func WithBackendHealth(fn HealthFunc) Option {
	return func(s *Server) {
		s.health = fn
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

func New(eng Engine, opts ...Option) *Server {
	s := &Server{
		e:      gin.New(),
		engine: eng,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.initRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.e
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.e,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) initRoutes() {
	s.e.Use(gin.Logger())
	s.e.Use(gin.Recovery())
	s.e.Use(cors.Default())

	s.e.GET("/healthz", s.handleHealthz)
	s.e.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	g := s.e.Group("/api/v1")
	g.GET("/session", s.handleGetSession)
	g.DELETE("/session", s.handleCloseSession)
	g.POST("/session/approve", s.handleApprove)
	g.POST("/session/decline", s.handleDecline)
	g.POST("/scans", s.handleScan)
	g.POST("/scans/image", s.handleScanImage)
	g.POST("/camera/start", s.handleStartCamera)
	g.POST("/camera/stop", s.handleStopCamera)
	g.GET("/timer", s.handleTimer)
	g.GET("/captures/:sessionId", s.handleGetCapture)
}

func (s *Server) handleHealthz(c *gin.Context) {
	res := gin.H{"status": "ok"}
	if s.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		healthy, err := s.health(ctx)
		if err != nil {
			log.Warnf("backend health check failed: %v", err)
		}
		res["backend"] = healthy
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleGetCapture(c *gin.Context) {
	if s.archive == nil {
		c.JSON(http.StatusNotFound, notFound)
		return
	}
	img, err := s.archive.Retrieve(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.JSON(http.StatusNotFound, notFound)
			return
		}
		log.Errorf("unable to retrieve capture: %v", err)
		c.JSON(http.StatusInternalServerError, internalServerError)
		return
	}

	c.Header("Content-Type", img.ContentType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, img.Reader); err != nil {
		log.Errorf("unable to copy: %v", err)
	}
}

var badRequest = gin.H{
	"error": "bad request",
}

var notFound = gin.H{
	"error": "not found",
}

var internalServerError = gin.H{
	"error": "internal server error",
}
