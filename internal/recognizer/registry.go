/**
 * Recognizer registry
 *
 * Maps a language tag to a recognizer factory. Only models linked into the
 * build register a factory, so a missing entry is the "model unavailable"
 * condition and nothing is ever constructed for it.
 */

package recognizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/adverant/nexus/ocr-worker/internal/errors"
	"github.com/adverant/nexus/ocr-worker/internal/vision"
)

// LanguageTag selects a trained model variant
type LanguageTag string

const (
	Latin      LanguageTag = "latin"
	Chinese    LanguageTag = "chinese"
	Devanagari LanguageTag = "devanagari"
	Japanese   LanguageTag = "japanese"
	Korean     LanguageTag = "korean"
)

// AllLanguages lists every supported tag in canonical order
var AllLanguages = []LanguageTag{Latin, Chinese, Devanagari, Japanese, Korean}

// ParseLanguageTag matches s case-insensitively against the closed set.
// Unknown or empty values fall back to latin.
func ParseLanguageTag(s string) LanguageTag {
	tag := LanguageTag(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllLanguages {
		if tag == known {
			return tag
		}
	}
	return Latin
}

// Factory constructs a recognizer bound to one language model
type Factory func() (vision.Recognizer, error)

// Registry maps language tags to factories and caches built handles
type Registry struct {
	mu        sync.RWMutex
	factories map[LanguageTag]Factory
	handles   map[LanguageTag]vision.Recognizer
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[LanguageTag]Factory),
		handles:   make(map[LanguageTag]vision.Recognizer),
	}
}

// Register adds or replaces the factory for tag
func (r *Registry) Register(tag LanguageTag, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[tag] = f
	delete(r.handles, tag)
}

// IsAvailable reports whether a model for tag is linked into the build.
// Latin is always reported available.
func (r *Registry) IsAvailable(tag LanguageTag) bool {
	if tag == Latin {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[tag]
	return ok
}

// AvailableLanguages returns latin plus every linked non-latin tag, in
// canonical order.
func (r *Registry) AvailableLanguages() []LanguageTag {
	out := make([]LanguageTag, 0, len(AllLanguages))
	for _, tag := range AllLanguages {
		if r.IsAvailable(tag) {
			out = append(out, tag)
		}
	}
	return out
}

// Select returns a recognizer for the requested language. Unknown tags
// select latin; a non-latin tag without a linked model, or whose factory
// fails, yields an unavailable-model error and is never downgraded. Latin
// is always listed, so its failures are recognition failures instead.
func (r *Registry) Select(languageTag string) (vision.Recognizer, error) {
	tag := ParseLanguageTag(languageTag)

	r.mu.RLock()
	if h, ok := r.handles[tag]; ok {
		r.mu.RUnlock()
		return h, nil
	}
	f, ok := r.factories[tag]
	r.mu.RUnlock()

	if !ok {
		return nil, unavailable(tag, fmt.Errorf("no recognizer registered"))
	}

	h, err := construct(f)
	if err != nil {
		return nil, unavailable(tag, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.handles[tag]; ok {
		return existing, nil
	}
	r.handles[tag] = h
	return h, nil
}

func unavailable(tag LanguageTag, cause error) error {
	if tag == Latin {
		return errors.NewRecognitionFailedError(string(Latin), cause)
	}
	return errors.NewUnavailableModelError(titleCase(tag), cause)
}

// construct runs a factory, turning a panic or nil handle into an error
func construct(f Factory) (h vision.Recognizer, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("recognizer construction panicked: %v", p)
		}
	}()
	h, err = f()
	if err == nil && h == nil {
		err = fmt.Errorf("factory returned no recognizer")
	}
	return h, err
}

func titleCase(tag LanguageTag) string {
	s := string(tag)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
