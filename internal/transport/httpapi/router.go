package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"MailchimpPublisher/internal/usecase"
)

const correlationHeader = "x-correlation-id"

// Claimer moves pending tasks to ONGOING and hands back the batch to process.
type Claimer interface {
	Claim(ctx context.Context) (*usecase.Batch, error)
}

// Cleaner runs the provider cleanup sweep.
type Cleaner interface {
	Cleanup(ctx context.Context) (usecase.SweepReport, error)
}

// Server exposes the delta and cleanup triggers.
type Server struct {
	claimer Claimer
	cleaner Cleaner
	logger  *slog.Logger

	// base outlives individual requests so claimed batches finish after the 202.
	base    context.Context
	batches sync.WaitGroup
}

// NewServer builds the trigger API. Batches run under base and stop when it is cancelled.
func NewServer(base context.Context, claimer Claimer, cleaner Cleaner, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{claimer: claimer, cleaner: cleaner, logger: logger, base: base}
}

// Router returns the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.correlationID())

	r.POST("/delta", s.handleDelta)
	r.POST("/cleanup", s.handleCleanup)
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

// Wait blocks until all background batches have finished.
func (s *Server) Wait() {
	s.batches.Wait()
}

func (s *Server) correlationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(correlationHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(correlationHeader, id)
		c.Header(correlationHeader, id)
		c.Next()
	}
}

func (s *Server) requestLogger(c *gin.Context) *slog.Logger {
	return s.logger.With("correlation_id", c.GetString(correlationHeader), "path", c.FullPath())
}

func (s *Server) handleDelta(c *gin.Context) {
	logger := s.requestLogger(c)

	batch, err := s.claimer.Claim(c.Request.Context())
	switch {
	case errors.Is(err, usecase.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		logger.Error("claiming publication tasks failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "claiming publication tasks failed"})
		return
	}

	if batch.Len() == 0 {
		c.JSON(http.StatusOK, gin.H{"tasks": 0})
		return
	}

	s.batches.Add(1)
	go func() {
		defer s.batches.Done()
		if err := batch.Process(s.base); err != nil {
			logger.Error("publication batch aborted", "error", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"tasks": batch.Len()})
}

func (s *Server) handleCleanup(c *gin.Context) {
	logger := s.requestLogger(c)

	report, err := s.cleaner.Cleanup(c.Request.Context())
	switch {
	case errors.Is(err, usecase.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		logger.Error("cleanup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cleanup failed", "report": report})
		return
	}

	c.JSON(http.StatusOK, report)
}
