//go:build ocr_japanese || ocr_all

package models

import "github.com/adverant/nexus/ocr-worker/internal/recognizer"

func init() { link(recognizer.Japanese) }
