package vision

import (
	"image"
	"strings"
)

// Span is one engine iterator result: a unit's text and its box
type Span struct {
	Text string
	Box  image.Rectangle
}

// Assemble builds the block → line → element hierarchy from flat iterator
// output. Engines such as Tesseract report each level as a separate list in
// reading order; a child belongs to the first parent, at or after the
// previous child's parent, whose box contains the child's centre. Children
// that fit no later parent stay with the current one, so order is never
// changed and no child is dropped.
func Assemble(full string, blocks, lines, words []Span) *Text {
	out := &Text{Text: strings.TrimSpace(full)}
	if len(blocks) == 0 {
		return out
	}

	out.Blocks = make([]TextBlock, len(blocks))
	for i, b := range blocks {
		out.Blocks[i] = TextBlock{Text: strings.TrimSpace(b.Text), BoundingBox: boxOf(b.Box)}
	}

	type lineRef struct{ block, line int }
	refs := make([]lineRef, 0, len(lines))
	cur := 0
	for _, l := range lines {
		cur = owner(blocks, cur, l.Box)
		blk := &out.Blocks[cur]
		blk.Lines = append(blk.Lines, TextLine{Text: strings.TrimSpace(l.Text), BoundingBox: boxOf(l.Box)})
		refs = append(refs, lineRef{block: cur, line: len(blk.Lines) - 1})
	}
	if len(refs) == 0 {
		return out
	}

	cur = 0
	for _, w := range words {
		cur = owner(lines, cur, w.Box)
		ref := refs[cur]
		ln := &out.Blocks[ref.block].Lines[ref.line]
		ln.Elements = append(ln.Elements, TextElement{Text: strings.TrimSpace(w.Text), BoundingBox: boxOf(w.Box)})
	}

	return out
}

// owner returns the index of the parent that should receive a child with
// box child, searching forward from cur.
func owner(parents []Span, cur int, child image.Rectangle) int {
	c := image.Pt((child.Min.X+child.Max.X)/2, (child.Min.Y+child.Max.Y)/2)
	for j := cur; j < len(parents); j++ {
		if c.In(parents[j].Box) {
			return j
		}
	}
	return cur
}

func boxOf(r image.Rectangle) *image.Rectangle {
	if r.Empty() {
		return nil
	}
	return &r
}
