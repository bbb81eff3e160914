package processor

import (
	"context"
	"strings"

	"github.com/adverant/nexus/floorscan-worker/internal/catalog"
	"github.com/adverant/nexus/floorscan-worker/internal/clients"
	"github.com/adverant/nexus/floorscan-worker/internal/errors"
	"github.com/adverant/nexus/floorscan-worker/internal/income"
	"github.com/adverant/nexus/floorscan-worker/internal/logging"
)

// RegionInput is one region handed to an extractor.
type RegionInput struct {
	Region Region
	// PNG crop of the region, or the full screenshot when cropping failed
	Image []byte
}

// Extractor reads the fields of one card region.
//
// On failure the returned record, when non-nil, holds whatever was read
// before the failure and is reported as the region's partial extraction.
type Extractor interface {
	Name() Method
	Extract(ctx context.Context, in *RegionInput, entries []catalog.Entry) (*ExtractedRecord, error)
}

// CardReader reads one card crop with the vision recognizer.
type CardReader interface {
	ReadCard(ctx context.Context, image []byte, knownNames []string) (*clients.CardReading, error)
}

// StructuredExtractor asks the vision recognizer for every field at once.
type StructuredExtractor struct {
	reader        CardReader
	minConfidence float64
	hintLimit     int
}

// NewStructuredExtractor creates the structured strategy.
func NewStructuredExtractor(reader CardReader, minConfidence float64) *StructuredExtractor {
	return &StructuredExtractor{reader: reader, minConfidence: minConfidence, hintLimit: 25}
}

func (e *StructuredExtractor) Name() Method { return MethodStructured }

func (e *StructuredExtractor) Extract(ctx context.Context, in *RegionInput, entries []catalog.Entry) (*ExtractedRecord, error) {
	reading, err := e.reader.ReadCard(ctx, in.Image, catalog.Names(entries, e.hintLimit))
	if err != nil {
		return nil, err
	}
	if reading == nil {
		return nil, errors.NewMalformedResponseError("read-card", nil)
	}

	rec := recordFromReading(reading)

	if rec.ExtractionConfidence < e.minConfidence {
		return rec, errors.NewExtractionLowConfidenceError(string(MethodStructured), rec.ExtractionConfidence, e.minConfidence)
	}
	if rec.Name == "" {
		return rec, errors.NewExtractionFailedError(string(MethodStructured), "recognizer returned no name", nil)
	}
	return rec, nil
}

func recordFromReading(reading *clients.CardReading) *ExtractedRecord {
	return &ExtractedRecord{
		Name:                 strings.TrimSpace(reading.Name),
		Rarity:               strings.TrimSpace(reading.Rarity),
		Mutation:             income.NormalizeMutation(reading.Mutation),
		IncomeText:           reading.IncomePerSecond,
		IncomeValue:          reading.Income(),
		ModifierLabels:       reading.ModifierIcons,
		Traits:               income.NormalizeTraits(reading.ModifierIcons),
		ExtractionConfidence: clamp01(reading.Confidence),
		Method:               MethodStructured,
		Notes:                reading.Notes,
	}
}

// ClassicalExtractor runs offline OCR and the text parser.
type ClassicalExtractor struct {
	ocr           TextRecognizer
	minConfidence float64
}

// NewClassicalExtractor creates the classical strategy.
func NewClassicalExtractor(ocr TextRecognizer, minConfidence float64) *ClassicalExtractor {
	return &ClassicalExtractor{ocr: ocr, minConfidence: minConfidence}
}

func (e *ClassicalExtractor) Name() Method { return MethodClassical }

func (e *ClassicalExtractor) Extract(ctx context.Context, in *RegionInput, _ []catalog.Entry) (*ExtractedRecord, error) {
	res, err := e.ocr.Recognize(ctx, in.Image)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.NewExtractionFailedError(string(MethodClassical), "ocr failed", err)
	}
	if res.Confidence < e.minConfidence {
		return nil, errors.NewExtractionLowConfidenceError(string(MethodClassical), res.Confidence, e.minConfidence)
	}

	parsed := ParseCardText(res.Text)
	rec := &ExtractedRecord{
		Name:                 parsed.Name,
		Rarity:               parsed.Rarity,
		Mutation:             parsed.Mutation,
		IncomeText:           parsed.IncomeText,
		IncomeValue:          parsed.Income,
		Cost:                 parsed.Cost,
		CollectionValue:      parsed.CollectionValue,
		Traits:               []string{},
		ExtractionConfidence: parsed.Confidence,
		OCRConfidence:        res.Confidence,
		Method:               MethodClassical,
	}

	if rec.Name == "" {
		return rec, errors.NewExtractionFailedError(string(MethodClassical), "no card name in OCR text", nil)
	}
	return rec, nil
}

// FallbackExtractor tries each strategy in order and moves on when one fails
// with a recoverable error.
type FallbackExtractor struct {
	chain  []Extractor
	logger *logging.Logger
}

// NewFallbackExtractor chains strategies, most capable first.
func NewFallbackExtractor(logger *logging.Logger, chain ...Extractor) *FallbackExtractor {
	if logger == nil {
		logger = logging.NewLogger("Extractor")
	}
	return &FallbackExtractor{chain: chain, logger: logger}
}

func (f *FallbackExtractor) Name() Method {
	if len(f.chain) == 0 {
		return ""
	}
	return f.chain[0].Name()
}

func (f *FallbackExtractor) Extract(ctx context.Context, in *RegionInput, entries []catalog.Entry) (*ExtractedRecord, error) {
	var partial *ExtractedRecord
	var lastErr error = errors.NewExtractionFailedError("none", "no extraction strategy configured", nil)

	for i, ex := range f.chain {
		rec, err := ex.Extract(ctx, in, entries)
		if err == nil {
			return rec, nil
		}
		if ctx.Err() != nil {
			return partial, ctx.Err()
		}
		if partial == nil && rec != nil {
			partial = rec
		}
		lastErr = err
		if !errors.IsFallbackable(err) {
			break
		}
		if i+1 < len(f.chain) {
			f.logger.Warn("Extraction strategy failed, falling back",
				"region", in.Region.Index,
				"strategy", ex.Name(),
				"next", f.chain[i+1].Name(),
				"code", errors.CodeOf(err),
				"error", err)
		}
	}
	return partial, lastErr
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
