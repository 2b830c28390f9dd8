package processor

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/adverant/nexus/ocr-worker/internal/errors"
	"github.com/adverant/nexus/ocr-worker/internal/imageloader"
	"github.com/adverant/nexus/ocr-worker/internal/recognizer"
	"github.com/adverant/nexus/ocr-worker/internal/storage"
	"github.com/adverant/nexus/ocr-worker/internal/vision"
)

func writePNG(t *testing.T) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 32, 16))
	for x := 0; x < 32; x++ {
		img.Set(x, 8, color.White)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "page.png")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

type fakeRecognizer struct {
	calls int32
	fn    func() (*vision.Text, error)
}

func (f *fakeRecognizer) Process(_ context.Context, img vision.Image) (*vision.Text, error) {
	atomic.AddInt32(&f.calls, 1)
	if img.Decoded() == nil {
		return nil, fmt.Errorf("no pixels")
	}
	return f.fn()
}

func helloText() (*vision.Text, error) {
	return &vision.Text{
		Text: "Hello\nWorld",
		Blocks: []vision.TextBlock{{
			Text:        "Hello\nWorld",
			BoundingBox: vision.Rect(0, 0, 30, 14),
			Lines: []vision.TextLine{
				{Text: "Hello", BoundingBox: vision.Rect(0, 0, 30, 6)},
				{Text: "World", BoundingBox: vision.Rect(0, 8, 30, 14)},
			},
		}},
	}, nil
}

func newTestProcessor(t *testing.T, reg *recognizer.Registry, store storage.JobStore) *TextProcessor {
	t.Helper()
	p, err := NewTextProcessor(&ProcessorConfig{
		Loader:   imageloader.NewLoader(nil),
		Registry: reg,
		Store:    store,
	})
	if err != nil {
		t.Fatalf("NewTextProcessor() error = %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

func registryWith(tags map[recognizer.LanguageTag]*fakeRecognizer) *recognizer.Registry {
	reg := recognizer.NewRegistry()
	for tag, rec := range tags {
		rec := rec
		reg.Register(tag, func() (vision.Recognizer, error) { return rec, nil })
	}
	return reg
}

func TestNewTextProcessorValidates(t *testing.T) {
	if _, err := NewTextProcessor(nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := NewTextProcessor(&ProcessorConfig{Registry: recognizer.NewRegistry()}); err == nil {
		t.Error("expected error without loader")
	}
	if _, err := NewTextProcessor(&ProcessorConfig{Loader: imageloader.NewLoader(nil)}); err == nil {
		t.Error("expected error without registry")
	}
}

func TestRecognizeText(t *testing.T) {
	latin := &fakeRecognizer{fn: helloText}
	p := newTestProcessor(t, registryWith(map[recognizer.LanguageTag]*fakeRecognizer{recognizer.Latin: latin}), nil)

	doc, err := p.RecognizeText(context.Background(), writePNG(t), "")
	if err != nil {
		t.Fatalf("RecognizeText() error = %v", err)
	}
	if doc.Text != "Hello\nWorld" || len(doc.Blocks) != 1 || len(doc.Blocks[0].Lines) != 2 {
		t.Fatalf("document = %+v", doc)
	}
	for _, l := range doc.Blocks[0].Lines {
		if l.Frame.Width < 0 || l.Frame.Height < 0 {
			t.Errorf("negative frame %+v", l.Frame)
		}
	}
}

func TestRecognizeTextUnavailableModelBeforeRecognition(t *testing.T) {
	latin := &fakeRecognizer{fn: helloText}
	p := newTestProcessor(t, registryWith(map[recognizer.LanguageTag]*fakeRecognizer{recognizer.Latin: latin}), nil)
	path := writePNG(t)

	for _, tag := range []string{"chinese", "devanagari", "japanese", "korean"} {
		_, err := p.RecognizeText(context.Background(), path, tag)
		if !stderrors.Is(err, errors.ErrUnavailableModel) {
			t.Errorf("RecognizeText(%s) error = %v, want unavailable model", tag, err)
		}
		if errors.CodeOf(err) != errors.CodeOCR {
			t.Errorf("RecognizeText(%s) code = %s, want ERR_OCR", tag, errors.CodeOf(err))
		}
	}
	if n := atomic.LoadInt32(&latin.calls); n != 0 {
		t.Errorf("recognizer ran %d times for unavailable models", n)
	}
}

func TestAvailableLanguagesNeverUnavailable(t *testing.T) {
	recs := map[recognizer.LanguageTag]*fakeRecognizer{
		recognizer.Latin:    {fn: helloText},
		recognizer.Japanese: {fn: helloText},
	}
	p := newTestProcessor(t, registryWith(recs), nil)
	path := writePNG(t)

	langs := p.GetAvailableLanguages(context.Background())
	if len(langs) != 2 || langs[0] != recognizer.Latin || langs[1] != recognizer.Japanese {
		t.Fatalf("GetAvailableLanguages() = %v", langs)
	}
	for _, tag := range langs {
		if _, err := p.RecognizeText(context.Background(), path, string(tag)); err != nil {
			t.Errorf("RecognizeText(%s) error = %v", tag, err)
		}
	}
}

func TestRecognizeTextImageErrors(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	latin := &fakeRecognizer{fn: helloText}
	p := newTestProcessor(t, registryWith(map[recognizer.LanguageTag]*fakeRecognizer{recognizer.Latin: latin}), nil)

	tests := []struct {
		name string
		uri  string
		kind *errors.RecognitionError
	}{
		{"http 404", srv.URL + "/missing.png", errors.ErrImageDownloadFailed},
		{"missing local path", filepath.Join(t.TempDir(), "absent.png"), errors.ErrImageNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.RecognizeText(context.Background(), tt.uri, "latin")
			if !stderrors.Is(err, tt.kind) {
				t.Fatalf("error = %v, want %s", err, tt.kind.Kind)
			}
			if errors.CodeOf(err) != errors.CodeImage {
				t.Errorf("code = %s, want ERR_IMAGE", errors.CodeOf(err))
			}
		})
	}
	if latin.calls != 0 {
		t.Errorf("recognizer ran for an image that never loaded")
	}
}

func TestRecognizeTextVendorFailures(t *testing.T) {
	path := writePNG(t)

	failing := &fakeRecognizer{fn: func() (*vision.Text, error) { return nil, fmt.Errorf("model crashed") }}
	p := newTestProcessor(t, registryWith(map[recognizer.LanguageTag]*fakeRecognizer{recognizer.Latin: failing}), nil)
	_, err := p.RecognizeText(context.Background(), path, "latin")
	if !stderrors.Is(err, errors.ErrRecognitionFailed) || errors.MessageOf(err) != "model crashed" {
		t.Errorf("error = %v, want recognition failure carrying vendor message", err)
	}

	panicking := &fakeRecognizer{fn: func() (*vision.Text, error) { panic("segfault in vendor") }}
	p = newTestProcessor(t, registryWith(map[recognizer.LanguageTag]*fakeRecognizer{recognizer.Latin: panicking}), nil)
	_, err = p.RecognizeText(context.Background(), path, "latin")
	var re *errors.RecognitionError
	if !stderrors.As(err, &re) || re.Kind != errors.KindInternal || re.Code() != errors.CodeOCR {
		t.Errorf("error = %v, want internal ERR_OCR", err)
	}

	nilText := &fakeRecognizer{fn: func() (*vision.Text, error) { return nil, nil }}
	p = newTestProcessor(t, registryWith(map[recognizer.LanguageTag]*fakeRecognizer{recognizer.Latin: nilText}), nil)
	doc, err := p.RecognizeText(context.Background(), path, "latin")
	if err != nil || doc.Blocks == nil || len(doc.Blocks) != 0 {
		t.Errorf("nil vendor result = %+v, %v; want empty document", doc, err)
	}
}

func TestRecognizeTextCancelledBeforeStart(t *testing.T) {
	latin := &fakeRecognizer{fn: helloText}
	p := newTestProcessor(t, registryWith(map[recognizer.LanguageTag]*fakeRecognizer{recognizer.Latin: latin}), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.RecognizeText(ctx, writePNG(t), "latin")
	if !stderrors.Is(err, context.Canceled) || errors.CodeOf(err) != errors.CodeOCR {
		t.Errorf("error = %v, want ERR_OCR wrapping context.Canceled", err)
	}
}

func TestUpdateJobStatus(t *testing.T) {
	reg := recognizer.NewRegistry()
	if err := newTestProcessor(t, reg, nil).UpdateJobStatus(context.Background(), &storage.JobUpdate{}); err != nil {
		t.Errorf("UpdateJobStatus() without store = %v, want nil", err)
	}

	store := storage.NewMemoryStore()
	p := newTestProcessor(t, reg, store)
	if err := p.UpdateJobStatus(context.Background(), &storage.JobUpdate{JobID: "j", Status: storage.StatusQueued}); err != nil {
		t.Fatalf("UpdateJobStatus() error = %v", err)
	}
	if job, err := store.GetJobByID(context.Background(), "j"); err != nil || job.Status != storage.StatusQueued {
		t.Errorf("stored job = %+v, %v", job, err)
	}
}
