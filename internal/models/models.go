// Package models registers a recognizer factory for every language model
// linked into the build. Latin is always linked; the others are enabled
// with build tags (ocr_chinese, ocr_devanagari, ocr_japanese, ocr_korean,
// or ocr_all).
package models

import (
	"os"
	"path/filepath"

	"github.com/adverant/nexus/ocr-worker/internal/recognizer"
	"github.com/adverant/nexus/ocr-worker/internal/vision"
	"github.com/adverant/nexus/ocr-worker/internal/vision/tesseract"
)

// Traineddata maps each language tag to its Tesseract model name
var Traineddata = map[recognizer.LanguageTag]string{
	recognizer.Latin:      "eng",
	recognizer.Chinese:    "chi_sim",
	recognizer.Devanagari: "hin",
	recognizer.Japanese:   "jpn",
	recognizer.Korean:     "kor",
}

// linked holds the non-latin tags compiled into this build
var linked []recognizer.LanguageTag

func link(tag recognizer.LanguageTag) {
	for _, t := range linked {
		if t == tag {
			return
		}
	}
	linked = append(linked, tag)
}

// Linked returns the non-latin tags compiled into this build
func Linked() []recognizer.LanguageTag {
	return append([]recognizer.LanguageTag(nil), linked...)
}

// Install registers latin and every linked model into reg. tessdataDir is
// where traineddata files live; empty means the Tesseract default. A linked
// non-latin model whose traineddata is missing from tessdataDir is not
// registered, so it is never listed as available.
func Install(reg *recognizer.Registry, tessdataDir string) {
	reg.Register(recognizer.Latin, factory(recognizer.Latin, tessdataDir))
	for _, tag := range linked {
		if !hasTraineddata(tessdataDir, tag) {
			continue
		}
		reg.Register(tag, factory(tag, tessdataDir))
	}
}

func hasTraineddata(tessdataDir string, tag recognizer.LanguageTag) bool {
	if tessdataDir == "" {
		return true
	}
	info, err := os.Stat(filepath.Join(tessdataDir, Traineddata[tag]+".traineddata"))
	return err == nil && !info.IsDir()
}

func factory(tag recognizer.LanguageTag, tessdataDir string) recognizer.Factory {
	return func() (vision.Recognizer, error) {
		return tesseract.NewTesseractOCR(&tesseract.TesseractConfig{
			Languages:      []string{Traineddata[tag]},
			TessdataPrefix: tessdataDir,
		})
	}
}
