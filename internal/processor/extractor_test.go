package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/floorscan-worker/internal/clients"
	"github.com/adverant/nexus/floorscan-worker/internal/errors"
	"github.com/adverant/nexus/floorscan-worker/internal/logging"
)

type fakeCardReader struct {
	reading   *clients.CardReading
	err       error
	gotHints  []string
	callCount int
}

func (f *fakeCardReader) ReadCard(ctx context.Context, data []byte, knownNames []string) (*clients.CardReading, error) {
	f.callCount++
	f.gotHints = knownNames
	return f.reading, f.err
}

type fakeOCR struct {
	result *OCRResult
	err    error
}

func (f *fakeOCR) Recognize(ctx context.Context, data []byte) (*OCRResult, error) {
	return f.result, f.err
}

func TestStructuredExtractorMapsReading(t *testing.T) {
	reader := &fakeCardReader{reading: &clients.CardReading{
		Name:            " Tralalero Tralala ",
		Rarity:          "Brainrot God",
		Mutation:        "Rainbow",
		IncomePerSecond: "$5M/s",
		IncomeValue:     json.RawMessage(`5000000`),
		ModifierIcons:   []string{"jack_o_lantern", "strawberry", "unknown_icon", "strawberry"},
		Confidence:      0.93,
	}}
	ex := NewStructuredExtractor(reader, 0.2)

	rec, err := ex.Extract(context.Background(), &RegionInput{}, testCatalog)
	require.NoError(t, err)

	assert.Equal(t, "Tralalero Tralala", rec.Name)
	assert.Equal(t, "rainbow", rec.Mutation)
	assert.Equal(t, int64(5000000), rec.IncomeValue)
	assert.Equal(t, []string{"pumpkin", "strawberry"}, rec.Traits)
	assert.Len(t, rec.ModifierLabels, 4)
	assert.Equal(t, MethodStructured, rec.Method)
	assert.Len(t, reader.gotHints, len(testCatalog))
}

func TestStructuredExtractorLowConfidence(t *testing.T) {
	reader := &fakeCardReader{reading: &clients.CardReading{Name: "Blur", Confidence: 0.1}}
	rec, err := NewStructuredExtractor(reader, 0.2).Extract(context.Background(), &RegionInput{}, nil)

	require.Error(t, err)
	assert.Equal(t, errors.ErrorExtractionLowConfidence, errors.CodeOf(err))
	require.NotNil(t, rec)
	assert.Equal(t, "Blur", rec.Name)
}

func TestStructuredExtractorNilReading(t *testing.T) {
	_, err := NewStructuredExtractor(&fakeCardReader{}, 0.2).Extract(context.Background(), &RegionInput{}, nil)
	assert.Equal(t, errors.ErrorMalformedResponse, errors.CodeOf(err))
}

func TestClassicalExtractorParsesOCRText(t *testing.T) {
	ocr := &fakeOCR{result: &OCRResult{
		Text:       "Gold\nTralalero Tralala\nBrainrot God\n$62.5K/s\n$10M\n",
		Confidence: 0.8,
	}}
	rec, err := NewClassicalExtractor(ocr, 0.2).Extract(context.Background(), &RegionInput{}, nil)
	require.NoError(t, err)

	assert.Equal(t, MethodClassical, rec.Method)
	assert.Equal(t, "Tralalero Tralala", rec.Name)
	assert.Equal(t, "gold", rec.Mutation)
	assert.Equal(t, int64(62500), rec.IncomeValue)
	assert.Equal(t, int64(10000000), rec.Cost)
	assert.Empty(t, rec.Traits)
	assert.InDelta(t, 0.8, rec.OCRConfidence, 1e-9)
}

func TestClassicalExtractorRejectsWeakOCR(t *testing.T) {
	ocr := &fakeOCR{result: &OCRResult{Text: "x", Confidence: 0.05}}
	_, err := NewClassicalExtractor(ocr, 0.2).Extract(context.Background(), &RegionInput{}, nil)
	assert.Equal(t, errors.ErrorExtractionLowConfidence, errors.CodeOf(err))
}

func TestFallbackUsesClassicalWhenRecognizerIsDown(t *testing.T) {
	reader := &fakeCardReader{err: errors.NewRecognizerUnavailableError("read-card", fmt.Errorf("dial tcp: refused"))}
	ocr := &fakeOCR{result: &OCRResult{Text: "Noobini Pizzanini\nCommon\n$1/s", Confidence: 0.7}}

	chain := NewFallbackExtractor(logging.NewNopLogger(),
		NewStructuredExtractor(reader, 0.2),
		NewClassicalExtractor(ocr, 0.2))

	assert.Equal(t, MethodStructured, chain.Name())
	rec, err := chain.Extract(context.Background(), &RegionInput{}, testCatalog)
	require.NoError(t, err)
	assert.Equal(t, 1, reader.callCount)
	assert.Equal(t, MethodClassical, rec.Method)
	assert.Equal(t, "Noobini Pizzanini", rec.Name)
}

func TestFallbackKeepsFirstPartialWhenAllFail(t *testing.T) {
	reader := &fakeCardReader{reading: &clients.CardReading{Name: "Cappu", Confidence: 0.05}}
	ocr := &fakeOCR{err: fmt.Errorf("tesseract crashed")}

	chain := NewFallbackExtractor(logging.NewNopLogger(),
		NewStructuredExtractor(reader, 0.2),
		NewClassicalExtractor(ocr, 0.2))

	rec, err := chain.Extract(context.Background(), &RegionInput{}, nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrorExtractionFailed, errors.CodeOf(err))
	require.NotNil(t, rec)
	assert.Equal(t, "Cappu", rec.Name)
}

func TestFallbackStopsOnUnrecoverableError(t *testing.T) {
	reader := &fakeCardReader{err: fmt.Errorf("boom")}
	ocr := &fakeOCR{result: &OCRResult{Text: "Noobini Pizzanini", Confidence: 0.9}}

	chain := NewFallbackExtractor(logging.NewNopLogger(),
		NewStructuredExtractor(reader, 0.2),
		NewClassicalExtractor(ocr, 0.2))

	_, err := chain.Extract(context.Background(), &RegionInput{}, nil)
	assert.EqualError(t, err, "boom")
}

func TestFallbackWithEmptyChain(t *testing.T) {
	_, err := NewFallbackExtractor(logging.NewNopLogger()).Extract(context.Background(), &RegionInput{}, nil)
	assert.Equal(t, errors.ErrorExtractionFailed, errors.CodeOf(err))
}
