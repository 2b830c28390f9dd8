// Package ocr holds the public OCR document shape and the normalizer that
// flattens an engine's hierarchical result into it.
package ocr

import (
	"image"

	"github.com/adverant/nexus/ocr-worker/internal/vision"
)

// Frame is a bounding rectangle in image pixels, origin top-left
type Frame struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Element is the smallest recognized unit (a word or token)
type Element struct {
	Text  string `json:"text"`
	Frame Frame  `json:"frame"`
}

// Line is a recognized line of text
type Line struct {
	Text     string    `json:"text"`
	Frame    Frame     `json:"frame"`
	Elements []Element `json:"elements"`
}

// Block is a recognized block of lines
type Block struct {
	Text  string `json:"text"`
	Frame Frame  `json:"frame"`
	Lines []Line `json:"lines"`
}

// Document is the full result for one image
type Document struct {
	Text   string  `json:"text"`
	Blocks []Block `json:"blocks"`
}

// Normalize converts an engine result into a Document. Order is kept at
// every level and each level copies its own text. A missing box becomes the
// zero Frame. Slices are never nil so the JSON always carries arrays.
func Normalize(t *vision.Text) Document {
	if t == nil {
		return Document{Blocks: []Block{}}
	}

	doc := Document{
		Text:   t.Text,
		Blocks: make([]Block, 0, len(t.Blocks)),
	}
	for _, b := range t.Blocks {
		block := Block{
			Text:  b.Text,
			Frame: frameOf(b.BoundingBox),
			Lines: make([]Line, 0, len(b.Lines)),
		}
		for _, l := range b.Lines {
			line := Line{
				Text:     l.Text,
				Frame:    frameOf(l.BoundingBox),
				Elements: make([]Element, 0, len(l.Elements)),
			}
			for _, e := range l.Elements {
				line.Elements = append(line.Elements, Element{
					Text:  e.Text,
					Frame: frameOf(e.BoundingBox),
				})
			}
			block.Lines = append(block.Lines, line)
		}
		doc.Blocks = append(doc.Blocks, block)
	}
	return doc
}

func frameOf(r *image.Rectangle) Frame {
	if r == nil {
		return Frame{}
	}
	c := r.Canon()
	return Frame{
		X:      float64(c.Min.X),
		Y:      float64(c.Min.Y),
		Width:  float64(c.Dx()),
		Height: float64(c.Dy()),
	}
}
