package models

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/adverant/nexus/ocr-worker/internal/errors"
	"github.com/adverant/nexus/ocr-worker/internal/recognizer"
)

func TestInstallMatchesLinkedModels(t *testing.T) {
	reg := recognizer.NewRegistry()
	Install(reg, "")

	isLinked := map[recognizer.LanguageTag]bool{recognizer.Latin: true}
	for _, tag := range Linked() {
		isLinked[tag] = true
	}

	got := reg.AvailableLanguages()
	if len(got) == 0 || got[0] != recognizer.Latin {
		t.Fatalf("AvailableLanguages() = %v, want latin first", got)
	}
	if len(got) != len(isLinked) {
		t.Fatalf("AvailableLanguages() = %v, linked = %v", got, Linked())
	}
	for _, tag := range recognizer.AllLanguages {
		if reg.IsAvailable(tag) != isLinked[tag] {
			t.Errorf("IsAvailable(%s) = %v, linked = %v", tag, reg.IsAvailable(tag), isLinked[tag])
		}
	}
}

func TestUnlinkedModelsAreUnavailable(t *testing.T) {
	reg := recognizer.NewRegistry()
	Install(reg, "")

	for _, tag := range recognizer.AllLanguages {
		if reg.IsAvailable(tag) {
			continue
		}
		if _, err := reg.Select(string(tag)); !stderrors.Is(err, errors.ErrUnavailableModel) {
			t.Errorf("Select(%s) error = %v, want unavailable model", tag, err)
		}
	}
}

func TestMissingLatinTraineddataFailsRecognition(t *testing.T) {
	reg := recognizer.NewRegistry()
	Install(reg, t.TempDir())

	_, err := reg.Select("latin")
	if stderrors.Is(err, errors.ErrUnavailableModel) || !stderrors.Is(err, errors.ErrRecognitionFailed) {
		t.Errorf("Select(latin) error = %v, want recognition failure for empty tessdata dir", err)
	}
}

func TestInstallSkipsModelsWithoutTraineddata(t *testing.T) {
	saved := linked
	t.Cleanup(func() { linked = saved })
	linked = []recognizer.LanguageTag{recognizer.Japanese, recognizer.Korean}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "kor.traineddata"), []byte("model"), 0o644); err != nil {
		t.Fatal(err)
	}

	reg := recognizer.NewRegistry()
	Install(reg, dir)

	want := []recognizer.LanguageTag{recognizer.Latin, recognizer.Korean}
	if got := reg.AvailableLanguages(); !reflect.DeepEqual(got, want) {
		t.Errorf("AvailableLanguages() = %v, want %v", got, want)
	}
	for _, tag := range reg.AvailableLanguages() {
		if tag == recognizer.Latin {
			continue
		}
		if _, err := reg.Select(string(tag)); stderrors.Is(err, errors.ErrUnavailableModel) {
			t.Errorf("listed language %s failed as unavailable: %v", tag, err)
		}
	}

	// Without a configured directory every linked model is registered
	reg = recognizer.NewRegistry()
	Install(reg, "")
	if got := reg.AvailableLanguages(); len(got) != 3 {
		t.Errorf("AvailableLanguages() = %v, want latin plus both linked models", got)
	}
}

func TestTraineddataCoversAllLanguages(t *testing.T) {
	for _, tag := range recognizer.AllLanguages {
		if Traineddata[tag] == "" {
			t.Errorf("no traineddata for %s", tag)
		}
	}
}
