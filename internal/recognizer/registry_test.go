package recognizer

import (
	"context"
	stderrors "errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/adverant/nexus/ocr-worker/internal/errors"
	"github.com/adverant/nexus/ocr-worker/internal/vision"
)

type stubRecognizer struct{ tag LanguageTag }

func (s *stubRecognizer) Process(context.Context, vision.Image) (*vision.Text, error) {
	return &vision.Text{Text: string(s.tag)}, nil
}

func countingFactory(tag LanguageTag, calls *int) Factory {
	return func() (vision.Recognizer, error) {
		*calls++
		return &stubRecognizer{tag: tag}, nil
	}
}

func TestParseLanguageTag(t *testing.T) {
	tests := map[string]LanguageTag{
		"":           Latin,
		"latin":      Latin,
		"CHINESE":    Chinese,
		" Japanese ": Japanese,
		"korean":     Korean,
		"Devanagari": Devanagari,
		"klingon":    Latin,
	}
	for in, want := range tests {
		if got := ParseLanguageTag(in); got != want {
			t.Errorf("ParseLanguageTag(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAvailableLanguages(t *testing.T) {
	r := NewRegistry()
	if got := r.AvailableLanguages(); !reflect.DeepEqual(got, []LanguageTag{Latin}) {
		t.Errorf("empty registry languages = %v, want [latin]", got)
	}

	var calls int
	r.Register(Korean, countingFactory(Korean, &calls))
	r.Register(Chinese, countingFactory(Chinese, &calls))

	want := []LanguageTag{Latin, Chinese, Korean}
	if got := r.AvailableLanguages(); !reflect.DeepEqual(got, want) {
		t.Errorf("AvailableLanguages() = %v, want %v", got, want)
	}
	if calls != 0 {
		t.Errorf("capability query constructed %d recognizers", calls)
	}
}

func TestSelectUnavailableModelDoesNotConstruct(t *testing.T) {
	r := NewRegistry()
	var latinCalls int
	r.Register(Latin, countingFactory(Latin, &latinCalls))

	for _, tag := range []string{"chinese", "devanagari", "japanese", "korean"} {
		_, err := r.Select(tag)
		if !stderrors.Is(err, errors.ErrUnavailableModel) {
			t.Errorf("Select(%q) error = %v, want unavailable model", tag, err)
		}
		if errors.CodeOf(err) != errors.CodeOCR {
			t.Errorf("Select(%q) code = %s, want ERR_OCR", tag, errors.CodeOf(err))
		}
	}
	if latinCalls != 0 {
		t.Errorf("unavailable model fell back to latin (%d constructions)", latinCalls)
	}
}

func TestSelectFactoryFailureIsUnavailable(t *testing.T) {
	r := NewRegistry()
	r.Register(Japanese, func() (vision.Recognizer, error) {
		return nil, fmt.Errorf("jpn.traineddata missing")
	})
	r.Register(Korean, func() (vision.Recognizer, error) {
		panic("native class missing")
	})
	r.Register(Chinese, func() (vision.Recognizer, error) { return nil, nil })

	for _, tag := range []string{"japanese", "korean", "chinese"} {
		if _, err := r.Select(tag); !stderrors.Is(err, errors.ErrUnavailableModel) {
			t.Errorf("Select(%q) error = %v, want unavailable model", tag, err)
		}
	}
}

func TestSelectLatinFailureIsNotUnavailable(t *testing.T) {
	empty := NewRegistry()
	broken := NewRegistry()
	broken.Register(Latin, func() (vision.Recognizer, error) {
		return nil, fmt.Errorf("eng.traineddata missing")
	})

	for name, r := range map[string]*Registry{"unregistered": empty, "factory error": broken} {
		_, err := r.Select("latin")
		if err == nil || stderrors.Is(err, errors.ErrUnavailableModel) {
			t.Errorf("%s: Select(latin) error = %v, want a recognition failure", name, err)
		}
		if !stderrors.Is(err, errors.ErrRecognitionFailed) || errors.CodeOf(err) != errors.CodeOCR {
			t.Errorf("%s: Select(latin) error = %v, want ERR_OCR recognition failure", name, err)
		}
	}
}

func TestSelectCachesHandles(t *testing.T) {
	r := NewRegistry()
	var calls int
	r.Register(Latin, countingFactory(Latin, &calls))
	r.Register(Chinese, countingFactory(Chinese, &calls))

	first, err := r.Select("Chinese")
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	second, _ := r.Select("chinese")
	if first != second || calls != 1 {
		t.Errorf("expected cached handle, got %d constructions", calls)
	}

	h, err := r.Select("unknown-tag")
	if err != nil {
		t.Fatalf("Select(unknown) error = %v", err)
	}
	if h.(*stubRecognizer).tag != Latin {
		t.Errorf("unknown tag selected %v, want latin", h)
	}
}
