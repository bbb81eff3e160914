/**
 * Tesseract OCR - offline text recognition for the classical strategy
 *
 * Free, local OCR over a single card crop. Small crops are upscaled first;
 * confidence is the mean word confidence reported by Tesseract, or a text
 * quality heuristic when no word boxes come back.
 */

package processor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/otiai10/gosseract/v2"
)

// cardCharacters is the whitelist for card text
const cardCharacters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789$/.,:!?'- "

// TextRecognizer turns an image into text with a confidence.
type TextRecognizer interface {
	Recognize(ctx context.Context, image []byte) (*OCRResult, error)
}

// TesseractOCR handles basic OCR using Tesseract
type TesseractOCR struct {
	language  string
	whitelist string
}

// TesseractConfig holds Tesseract configuration
type TesseractConfig struct {
	Language  string
	Whitelist string
}

// NewTesseractOCR creates a new Tesseract OCR instance
func NewTesseractOCR(cfg *TesseractConfig) *TesseractOCR {
	t := &TesseractOCR{language: "eng", whitelist: cardCharacters}
	if cfg != nil {
		if cfg.Language != "" {
			t.language = cfg.Language
		}
		if cfg.Whitelist != "" {
			t.whitelist = cfg.Whitelist
		}
	}
	return t
}

// Recognize performs OCR using Tesseract
func (t *TesseractOCR) Recognize(ctx context.Context, image []byte) (*OCRResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	startTime := time.Now()

	prepared, err := upscaleForOCR(image)
	if err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.language); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	// Card text is scattered labels, not paragraphs
	if err := client.SetPageSegMode(gosseract.PSM_SPARSE_TEXT); err != nil {
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if err := client.SetWhitelist(t.whitelist); err != nil {
		return nil, fmt.Errorf("failed to set whitelist: %w", err)
	}
	if err := client.SetImageFromBytes(prepared); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("tesseract OCR failed: %w", err)
	}

	var words []OCRWord
	if boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD); err == nil {
		for _, b := range boxes {
			w := strings.TrimSpace(b.Word)
			if w == "" {
				continue
			}
			words = append(words, OCRWord{
				Text:       w,
				Confidence: b.Confidence / 100,
				BoundingBox: BoundingBox{
					X:      b.Box.Min.X,
					Y:      b.Box.Min.Y,
					Width:  b.Box.Dx(),
					Height: b.Box.Dy(),
				},
			})
		}
	}

	return &OCRResult{
		Text:       text,
		Lines:      splitLines(text),
		Words:      words,
		Confidence: ocrConfidence(text, words),
		Engine:     "tesseract-local",
		Duration:   time.Since(startTime),
	}, nil
}

// ocrConfidence is the mean word confidence, or the text heuristic when
// Tesseract reported no words.
func ocrConfidence(text string, words []OCRWord) float64 {
	if len(words) == 0 {
		return calculateTesseractConfidence(text)
	}
	sum := 0.0
	for _, w := range words {
		sum += w.Confidence
	}
	return sum / float64(len(words))
}

// calculateTesseractConfidence estimates confidence from text quality. Card
// text is short, so the bar is a handful of words rather than pages.
func calculateTesseractConfidence(text string) float64 {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}

	confidence := 0.3

	words := strings.Fields(trimmed)
	if len(words) >= 3 {
		confidence += 0.1
	}
	if strings.Contains(trimmed, "$") {
		confidence += 0.1
	}

	alphaCount := 0
	for _, r := range trimmed {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			alphaCount++
		}
	}
	alphaRatio := float64(alphaCount) / float64(len(trimmed))
	if alphaRatio > 0.5 && alphaRatio < 0.95 {
		confidence += 0.1
	}

	// Cap at reasonable maximum for Tesseract
	if confidence > 0.85 {
		confidence = 0.85
	}

	return confidence
}
