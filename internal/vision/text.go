/**
 * Vision Types - hierarchical text result as reported by a recognition engine
 *
 * Text → Blocks → Lines → Elements. Every level carries the engine's own
 * text for that unit and an optional bounding box; a nil box means the
 * engine did not report one.
 */

package vision

import (
	"context"
	"image"
)

// Text is the engine's full result for one image
type Text struct {
	Text   string
	Blocks []TextBlock
}

// TextBlock is a paragraph-like region in reading order
type TextBlock struct {
	Text        string
	BoundingBox *image.Rectangle
	Lines       []TextLine
}

// TextLine is a single line of text within a block
type TextLine struct {
	Text        string
	BoundingBox *image.Rectangle
	Elements    []TextElement
}

// TextElement is a word or token within a line
type TextElement struct {
	Text        string
	BoundingBox *image.Rectangle
}

// Image is the input handed to an engine
type Image interface {
	// Decoded returns the decoded pixels
	Decoded() image.Image
	// PNG returns the image encoded as PNG
	PNG() ([]byte, error)
}

// Recognizer is a language-bound engine capability: one image in, one
// hierarchical result out.
type Recognizer interface {
	Process(ctx context.Context, img Image) (*Text, error)
}

// RecognizerFunc adapts a function to the Recognizer interface
type RecognizerFunc func(ctx context.Context, img Image) (*Text, error)

// Process calls f(ctx, img)
func (f RecognizerFunc) Process(ctx context.Context, img Image) (*Text, error) {
	return f(ctx, img)
}

// Rect returns a pointer to r, for building results with boxes
func Rect(x0, y0, x1, y1 int) *image.Rectangle {
	r := image.Rect(x0, y0, x1, y1)
	return &r
}
