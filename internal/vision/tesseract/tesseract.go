/**
 * Tesseract OCR - vendor engine behind every language recognizer
 *
 * One gosseract client per call; the hierarchy is rebuilt from the block,
 * text-line and word iterator levels.
 */

package tesseract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adverant/nexus/ocr-worker/internal/vision"
	"github.com/otiai10/gosseract/v2"
)

// TesseractOCR is a recognizer bound to a fixed set of traineddata models
type TesseractOCR struct {
	languages      []string
	tessdataPrefix string
	clientFactory  func() *gosseract.Client
}

// TesseractConfig holds Tesseract configuration
type TesseractConfig struct {
	// Languages are traineddata names, e.g. "eng" or "chi_sim"
	Languages []string
	// TessdataPrefix is the directory holding *.traineddata; empty means
	// the library default
	TessdataPrefix string
}

// NewTesseractOCR creates a recognizer for the configured models. When a
// tessdata directory is configured, every model file must be present.
func NewTesseractOCR(cfg *TesseractConfig) (*TesseractOCR, error) {
	if cfg == nil || len(cfg.Languages) == 0 {
		return nil, fmt.Errorf("at least one language is required")
	}

	if cfg.TessdataPrefix != "" {
		for _, lang := range cfg.Languages {
			path := filepath.Join(cfg.TessdataPrefix, lang+".traineddata")
			if _, err := os.Stat(path); err != nil {
				return nil, fmt.Errorf("traineddata for %s not found: %w", lang, err)
			}
		}
	}

	return &TesseractOCR{
		languages:      append([]string(nil), cfg.Languages...),
		tessdataPrefix: cfg.TessdataPrefix,
		clientFactory:  gosseract.NewClient,
	}, nil
}

// Languages returns the traineddata names this recognizer uses
func (t *TesseractOCR) Languages() []string {
	return append([]string(nil), t.languages...)
}

// Process performs OCR on a single image
func (t *TesseractOCR) Process(ctx context.Context, img vision.Image) (*vision.Text, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := img.PNG()
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	client := t.clientFactory()
	defer client.Close()

	if t.tessdataPrefix != "" {
		if err := client.SetTessdataPrefix(t.tessdataPrefix); err != nil {
			return nil, fmt.Errorf("failed to set tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(t.languages...); err != nil {
		return nil, fmt.Errorf("failed to set languages: %w", err)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("tesseract OCR failed: %w", err)
	}

	blocks, err := spans(client, gosseract.RIL_BLOCK)
	if err != nil {
		return nil, err
	}
	lines, err := spans(client, gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, err
	}
	words, err := spans(client, gosseract.RIL_WORD)
	if err != nil {
		return nil, err
	}

	return vision.Assemble(text, blocks, lines, words), nil
}

func spans(client *gosseract.Client, level gosseract.PageIteratorLevel) ([]vision.Span, error) {
	boxes, err := client.GetBoundingBoxes(level)
	if err != nil {
		return nil, fmt.Errorf("failed to read bounding boxes at level %d: %w", level, err)
	}
	out := make([]vision.Span, 0, len(boxes))
	for _, b := range boxes {
		out = append(out, vision.Span{Text: b.Word, Box: b.Box})
	}
	return out, nil
}
