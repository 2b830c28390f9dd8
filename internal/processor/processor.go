/**
 * Text Processor for the OCR worker
 *
 * The public call surface: RecognizeText and GetAvailableLanguages.
 * A recognition call loads the image, selects the language recognizer,
 * runs it, and normalizes the result, all as one unit of work on the
 * processor's single recognition worker. This is the outermost error
 * boundary: every failure leaves here as ERR_IMAGE or ERR_OCR.
 */

package processor

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/adverant/nexus/ocr-worker/internal/errors"
	"github.com/adverant/nexus/ocr-worker/internal/executor"
	"github.com/adverant/nexus/ocr-worker/internal/imageloader"
	"github.com/adverant/nexus/ocr-worker/internal/logging"
	"github.com/adverant/nexus/ocr-worker/internal/ocr"
	"github.com/adverant/nexus/ocr-worker/internal/recognizer"
	"github.com/adverant/nexus/ocr-worker/internal/storage"
)

// TextProcessorInterface defines the interface for text recognition
type TextProcessorInterface interface {
	RecognizeText(ctx context.Context, imageURI, detectorType string) (*ocr.Document, error)
	GetAvailableLanguages(ctx context.Context) []recognizer.LanguageTag
	UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error
}

// ImageLoader resolves an image URI
type ImageLoader interface {
	Load(ctx context.Context, uri string) (*imageloader.Image, error)
}

// ProcessorConfig holds processor configuration
type ProcessorConfig struct {
	Loader   ImageLoader
	Registry *recognizer.Registry
	// Store receives job status updates; nil discards them
	Store storage.JobStore
	// Backlog bounds calls waiting for the recognition worker
	Backlog int
	Logger  *logging.Logger
}

// TextProcessor runs the recognition pipeline
type TextProcessor struct {
	loader   ImageLoader
	registry *recognizer.Registry
	store    storage.JobStore
	exec     *executor.Executor
	logger   *logging.Logger
}

// NewTextProcessor creates a processor and starts its recognition worker.
// Close must be called to stop it.
func NewTextProcessor(cfg *ProcessorConfig) (*TextProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Loader == nil {
		return nil, fmt.Errorf("image loader is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("recognizer registry is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	return &TextProcessor{
		loader:   cfg.Loader,
		registry: cfg.Registry,
		store:    cfg.Store,
		exec:     executor.New(cfg.Backlog),
		logger:   logger,
	}, nil
}

// RecognizeText recognizes the text in the image at imageURI using the
// model for detectorType (latin when empty or unknown). Calls queue in
// FIFO order on the recognition worker. If ctx ends while the call is
// still queued it is dropped; once started it runs to completion.
func (p *TextProcessor) RecognizeText(ctx context.Context, imageURI, detectorType string) (*ocr.Document, error) {
	startTime := time.Now()

	v, err := p.exec.Submit(ctx, func() (interface{}, error) {
		return p.recognize(context.WithoutCancel(ctx), imageURI, detectorType)
	})
	if err != nil {
		err = boundary(err)
		p.logger.Warn("Recognition failed",
			"uri", imageURI,
			"detectorType", detectorType,
			"code", string(errors.CodeOf(err)),
			"error", err,
			"durationMs", time.Since(startTime).Milliseconds(),
		)
		return nil, err
	}

	doc := v.(*ocr.Document)
	p.logger.Info("Recognition completed",
		"uri", imageURI,
		"detectorType", detectorType,
		"blocks", len(doc.Blocks),
		"durationMs", time.Since(startTime).Milliseconds(),
	)
	return doc, nil
}

func (p *TextProcessor) recognize(ctx context.Context, imageURI, detectorType string) (*ocr.Document, error) {
	img, err := p.loader.Load(ctx, imageURI)
	if err != nil {
		return nil, err
	}

	rec, err := p.registry.Select(detectorType)
	if err != nil {
		return nil, err
	}

	text, err := rec.Process(ctx, img)
	if err != nil {
		var re *errors.RecognitionError
		if stderrors.As(err, &re) {
			return nil, re
		}
		return nil, errors.NewRecognitionFailedError(string(recognizer.ParseLanguageTag(detectorType)), err)
	}

	doc := ocr.Normalize(text)
	return &doc, nil
}

// boundary maps anything that escaped the pipeline to a recognition error
func boundary(err error) error {
	var re *errors.RecognitionError
	if stderrors.As(err, &re) {
		return re
	}
	var pe *executor.PanicError
	if stderrors.As(err, &pe) {
		return errors.NewInternalError(pe)
	}
	return errors.NewInternalError(err)
}

// GetAvailableLanguages reports the language models linked into the build
func (p *TextProcessor) GetAvailableLanguages(ctx context.Context) []recognizer.LanguageTag {
	return p.registry.AvailableLanguages()
}

// UpdateJobStatus records a job status change in the configured store
func (p *TextProcessor) UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error {
	if p.store == nil {
		return nil
	}
	return p.store.UpdateJobStatus(ctx, update)
}

// Close stops the recognition worker after draining queued calls
func (p *TextProcessor) Close() {
	p.exec.Close()
}
