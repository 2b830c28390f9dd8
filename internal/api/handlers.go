/**
 * HTTP API for the OCR worker
 *
 * Synchronous recognition, the capability query, and asynchronous jobs
 * backed by the configured queue and job store. Pipeline failures answer
 * 422 with {code, message} where code is ERR_IMAGE or ERR_OCR.
 */

package api

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/adverant/nexus/ocr-worker/internal/errors"
	"github.com/adverant/nexus/ocr-worker/internal/logging"
	"github.com/adverant/nexus/ocr-worker/internal/processor"
	"github.com/adverant/nexus/ocr-worker/internal/queue"
	"github.com/adverant/nexus/ocr-worker/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Enqueuer submits recognition jobs to a queue backend
type Enqueuer interface {
	Enqueue(ctx context.Context, job *queue.JobData) error
}

// RecognizeRequest is the body of POST /api/v1/recognize-text
type RecognizeRequest struct {
	ImageURI     string `json:"imageUri" binding:"required"`
	DetectorType string `json:"detectorType"`
}

// JobRequest is the body of POST /api/v1/jobs
type JobRequest struct {
	ImageURI     string                 `json:"imageUri" binding:"required"`
	DetectorType string                 `json:"detectorType"`
	Metadata     map[string]interface{} `json:"metadata"`
}

// Handler serves the HTTP API
type Handler struct {
	processor processor.TextProcessorInterface
	jobs      storage.JobStore
	enqueuer  Enqueuer
	logger    *logging.Logger
}

// HandlerConfig holds handler dependencies. Jobs and Enqueuer are
// optional; the job endpoints answer 503 without them.
type HandlerConfig struct {
	Processor processor.TextProcessorInterface
	Jobs      storage.JobStore
	Enqueuer  Enqueuer
	Logger    *logging.Logger
}

// NewHandler creates the API handler
func NewHandler(cfg *HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Handler{
		processor: cfg.Processor,
		jobs:      cfg.Jobs,
		enqueuer:  cfg.Enqueuer,
		logger:    logger,
	}
}

// NewRouter builds the gin engine with every route registered
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(h.logger))

	router.GET("/health", h.Health)

	v1 := router.Group("/api/v1")
	v1.POST("/recognize-text", h.RecognizeText)
	v1.GET("/languages", h.Languages)
	v1.POST("/jobs", h.CreateJob)
	v1.GET("/jobs/:id", h.GetJob)

	return router
}

// Health reports liveness
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "ocr-worker",
		"queue":   h.enqueuer != nil,
		"storage": h.jobs != nil,
	})
}

// RecognizeText handles POST /api/v1/recognize-text
func (h *Handler) RecognizeText(c *gin.Context) {
	var req RecognizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    "Invalid request format",
			"details":  err.Error(),
			"expected": "JSON with imageUri and optional detectorType",
		})
		return
	}

	doc, err := h.processor.RecognizeText(c.Request.Context(), req.ImageURI, req.DetectorType)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"code":    string(errors.CodeOf(err)),
			"message": errors.MessageOf(err),
		})
		return
	}

	c.JSON(http.StatusOK, doc)
}

// Languages handles GET /api/v1/languages
func (h *Handler) Languages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"languages": h.processor.GetAvailableLanguages(c.Request.Context()),
	})
}

// CreateJob handles POST /api/v1/jobs
func (h *Handler) CreateJob(c *gin.Context) {
	if h.enqueuer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "job queue is not configured"})
		return
	}

	var req JobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request format",
			"details": err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	jobID := uuid.New().String()

	if err := h.processor.UpdateJobStatus(ctx, &storage.JobUpdate{
		JobID:        jobID,
		Status:       storage.StatusQueued,
		ImageURI:     req.ImageURI,
		DetectorType: req.DetectorType,
		Metadata:     req.Metadata,
	}); err != nil {
		h.logger.Warn("Failed to record queued job", "jobId", jobID, "error", err)
	}

	if err := h.enqueuer.Enqueue(ctx, &queue.JobData{
		JobID:        jobID,
		ImageURI:     req.ImageURI,
		DetectorType: req.DetectorType,
		Metadata:     req.Metadata,
	}); err != nil {
		h.logger.Error("Failed to enqueue job", "jobId", jobID, "error", err)
		if updateErr := h.processor.UpdateJobStatus(ctx, &storage.JobUpdate{
			JobID:        jobID,
			Status:       storage.StatusFailed,
			ErrorMessage: fmt.Sprintf("failed to enqueue job: %v", err),
		}); updateErr != nil {
			h.logger.Warn("Failed to record enqueue failure", "jobId", jobID, "error", updateErr)
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to enqueue job",
			"details": err.Error(),
			"jobId":   jobID,
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"jobId": jobID})
}

// GetJob handles GET /api/v1/jobs/:id
func (h *Handler) GetJob(c *gin.Context) {
	if h.jobs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "job storage is not configured"})
		return
	}

	job, err := h.jobs.GetJobByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if stderrors.Is(err, storage.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load job",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, job)
}

// requestLogger logs one line per request through the service logger
func requestLogger(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"durationMs", time.Since(start).Milliseconds(),
		)
	}
}
