/**
 * Model build configuration
 *
 * Writes the OCR model selection into native host build files so only the
 * chosen language models are bundled:
 * - Gradle: ocrModels / ocrUseBundled inside the project ext block
 * - Podfile: $ReactNativeOcrSubspecs between marker comments
 * - Go: the build tags that link the matching recognizers into this binary
 *
 * Every patch is idempotent. Re-running replaces the managed block.
 */

package modelconfig

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/adverant/nexus/ocr-worker/internal/recognizer"
)

// ModelAll selects every model
const ModelAll = "all"

const (
	gradleStart = "// --- RN-MLKIT-OCR CONFIG START ---"
	gradleEnd   = "// --- RN-MLKIT-OCR CONFIG END ---"
	podStart    = "# --- RN-MLKIT-OCR CONFIG ---"
	podEnd      = "# --- END RN-MLKIT-OCR CONFIG ---"
)

var (
	gradleAssignment = regexp.MustCompile(`ocrModels\s?=\s?\[[\s\S]*?\]\s+ocrUseBundled\s?=\s?(true|false)`)
	podBlock         = regexp.MustCompile(`# --- RN-MLKIT-OCR CONFIG ---[\s\S]*?# --- END RN-MLKIT-OCR CONFIG ---`)
)

// Props is the user's model selection. A nil Models means all models.
type Props struct {
	Models     []string `json:"ocrModels,omitempty"`
	UseBundled bool     `json:"ocrUseBundled,omitempty"`
}

func (p Props) models() []string {
	if p.Models == nil {
		return []string{ModelAll}
	}
	return p.Models
}

func (p Props) selectsAll() bool {
	for _, m := range p.models() {
		if m == ModelAll {
			return true
		}
	}
	return false
}

// PatchGradle writes the selection into a Groovy build.gradle
func PatchGradle(buildGradle string, props Props) string {
	modelsString := `["` + strings.Join(props.models(), `", "`) + `"]`

	if strings.Contains(buildGradle, "ocrModels =") {
		loc := gradleAssignment.FindStringIndex(buildGradle)
		if loc == nil {
			return buildGradle
		}
		replacement := fmt.Sprintf("ocrModels = %s\n        ocrUseBundled = %t", modelsString, props.UseBundled)
		return buildGradle[:loc[0]] + replacement + buildGradle[loc[1]:]
	}

	block := fmt.Sprintf("\n        %s\n        ocrModels = %s\n        ocrUseBundled = %t\n        %s\n  ",
		gradleStart, modelsString, props.UseBundled, gradleEnd)

	if strings.Contains(buildGradle, "ext {") {
		return strings.Replace(buildGradle, "ext {", "ext {"+block, 1)
	}
	return buildGradle + "\nbuildscript {\n    ext {" + block + "\n    }\n}\n"
}

// Subspecs returns the pod subspecs for the selection. Named models are
// capitalized and latin is appended when not already named.
func Subspecs(props Props) []string {
	if props.selectsAll() {
		out := make([]string, len(recognizer.AllLanguages))
		for i, tag := range recognizer.AllLanguages {
			out[i] = string(tag)
		}
		return out
	}

	out := make([]string, 0, len(props.Models)+1)
	hasLatin := false
	for _, m := range props.Models {
		name := capitalize(m)
		if strings.EqualFold(name, string(recognizer.Latin)) {
			hasLatin = true
		}
		out = append(out, name)
	}
	if !hasLatin {
		out = append(out, string(recognizer.Latin))
	}
	return out
}

// PatchPodfile writes the selection into a Podfile, prepending the managed
// block when it is absent
func PatchPodfile(podfile string, props Props) string {
	subspecs := Subspecs(props)
	quoted := make([]string, 0, len(subspecs))
	for _, s := range subspecs {
		quoted = append(quoted, "'"+s+"'")
	}
	block := fmt.Sprintf("%s\n$ReactNativeOcrSubspecs = [%s]\n%s", podStart, strings.Join(quoted, ", "), podEnd)

	if strings.Contains(podfile, podStart) {
		loc := podBlock.FindStringIndex(podfile)
		if loc == nil {
			return podfile
		}
		return podfile[:loc[0]] + block + podfile[loc[1]:]
	}
	return block + "\n\n" + podfile
}

// BuildTags returns the Go build tags that link the selected models.
// Latin needs no tag; unknown names are rejected.
func BuildTags(props Props) ([]string, error) {
	if props.selectsAll() {
		return []string{"ocr_all"}, nil
	}

	var tags []string
	seen := make(map[string]bool)
	for _, m := range props.Models {
		name := strings.ToLower(strings.TrimSpace(m))
		if !known(name) {
			return nil, fmt.Errorf("unknown OCR model %q", m)
		}
		if name == string(recognizer.Latin) || seen[name] {
			continue
		}
		seen[name] = true
		tags = append(tags, "ocr_"+name)
	}
	return tags, nil
}

func known(name string) bool {
	for _, tag := range recognizer.AllLanguages {
		if string(tag) == name {
			return true
		}
	}
	return false
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
