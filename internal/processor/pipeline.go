package processor

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/adverant/nexus/floorscan-worker/internal/catalog"
	"github.com/adverant/nexus/floorscan-worker/internal/errors"
	"github.com/adverant/nexus/floorscan-worker/internal/income"
	"github.com/adverant/nexus/floorscan-worker/internal/logging"
	"github.com/adverant/nexus/floorscan-worker/internal/verify"
)

// Scan modes
const (
	ModePerCard    = "per-card"
	ModeWholeFloor = "whole-floor"
)

var tracer = otel.Tracer("floorscan/processor")

// PipelineOptions tunes the orchestrator.
type PipelineOptions struct {
	MaxParallelRegions int
	Verification       verify.Options
	Matcher            *catalog.Matcher
	// Whole-floor cards below this confidence are re-read from their crop
	MinFloorConfidence float64
}

// DefaultPipelineOptions returns the production tunables.
func DefaultPipelineOptions() PipelineOptions {
	return PipelineOptions{
		MaxParallelRegions: 5,
		Verification:       verify.DefaultOptions(),
		Matcher:            catalog.NewMatcher(),
		MinFloorConfidence: 0.2,
	}
}

// Pipeline runs segmentation, extraction, matching and verification over one
// screenshot and assembles the batch report.
type Pipeline struct {
	segmenter   *Segmenter
	extractor   Extractor
	floorReader FloorReader
	matcher     *catalog.Matcher
	verifier    *verify.Verifier
	opts        PipelineOptions
	logger      *logging.Logger
}

// NewPipeline wires the stages together.
func NewPipeline(segmenter *Segmenter, extractor Extractor, opts PipelineOptions, logger *logging.Logger) *Pipeline {
	if logger == nil {
		logger = logging.NewLogger("Pipeline")
	}
	if segmenter == nil {
		segmenter = NewSegmenter(nil, logger)
	}
	if opts.MaxParallelRegions <= 0 {
		opts.MaxParallelRegions = 1
	}
	if opts.Matcher == nil {
		opts.Matcher = catalog.NewMatcher()
	}
	return &Pipeline{
		segmenter: segmenter,
		extractor: extractor,
		matcher:   opts.Matcher,
		verifier:  verify.NewVerifier(opts.Verification),
		opts:      opts,
		logger:    logger,
	}
}

// WithFloorReader enables whole-floor extraction.
func (p *Pipeline) WithFloorReader(r FloorReader) *Pipeline {
	p.floorReader = r
	return p
}

// regionOutcome is what one region worker produces; exactly one field is set.
type regionOutcome struct {
	card   *CardReport
	failed *FailedRegion
}

// Scan processes img region by region. Regions run concurrently up to
// MaxParallelRegions; a failing region is reported in Failed and never stops
// the others. The only batch-fatal outcome is a segmentation with no regions.
func (p *Pipeline) Scan(ctx context.Context, img SourceImage, entries []catalog.Entry) (*BatchReport, error) {
	start := time.Now()
	batchID := uuid.New().String()

	ctx, span := tracer.Start(ctx, "pipeline.scan", trace.WithAttributes(
		attribute.String("batch.id", batchID),
		attribute.Int("catalog.size", len(entries)),
	))
	defer span.End()

	decoded, decodeErr := decodeImage(&img)
	if decodeErr != nil {
		p.logger.Warn("Could not decode screenshot, regions will receive the full image",
			"batchId", batchID,
			"error", decodeErr)
	}

	seg, err := p.segmenter.Segment(ctx, img)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "segmentation failed")
		return nil, err
	}
	if len(seg.Regions) == 0 {
		err := errors.NewNoRegionsDetectedError(img.Width, img.Height)
		span.RecordError(err)
		span.SetStatus(codes.Error, "no regions")
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("regions", len(seg.Regions)),
		attribute.String("layout", seg.Layout),
		attribute.String("segmentation.source", seg.Source),
	)

	p.logger.Info("Screenshot segmented",
		"batchId", batchID,
		"regions", len(seg.Regions),
		"layout", seg.Layout,
		"source", seg.Source)

	outcomes := make([]regionOutcome, len(seg.Regions))
	sem := make(chan struct{}, p.opts.MaxParallelRegions)
	var wg sync.WaitGroup

	for i, region := range seg.Regions {
		wg.Add(1)
		go func(i int, region Region) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				outcomes[i] = failedOutcome(region, StageExtracting, nil, ctx.Err(), 0)
				return
			}
			defer func() { <-sem }()

			crop := img.Data
			if decoded != nil {
				if c, err := cropPNG(decoded, region.Box); err == nil {
					crop = c
				}
			}
			outcomes[i] = p.processRegion(ctx, region, crop, entries)
		}(i, region)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// Workers observe the same context; wait so no slot is written late.
		<-done
	}

	report := &BatchReport{
		BatchID:            batchID,
		Mode:               ModePerCard,
		Layout:             seg.Layout,
		SegmentationSource: seg.Source,
		TotalRegions:       len(seg.Regions),
		Successful:         []CardReport{},
		Failed:             []FailedRegion{},
	}
	for _, o := range outcomes {
		switch {
		case o.card != nil:
			report.Successful = append(report.Successful, *o.card)
		case o.failed != nil:
			report.Failed = append(report.Failed, *o.failed)
		}
	}
	report.AggregateTimingMs = time.Since(start).Milliseconds()

	span.SetAttributes(
		attribute.Int("successful", len(report.Successful)),
		attribute.Int("failed", len(report.Failed)),
	)
	p.logger.Info("Scan complete",
		"batchId", batchID,
		"successful", len(report.Successful),
		"failed", len(report.Failed),
		"durationMs", report.AggregateTimingMs)

	return report, nil
}

func (p *Pipeline) processRegion(ctx context.Context, region Region, crop []byte, entries []catalog.Entry) regionOutcome {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "pipeline.region", trace.WithAttributes(
		attribute.Int("region.index", region.Index),
	))
	defer span.End()

	if p.extractor == nil {
		err := errors.NewExtractionFailedError("none", "no extraction strategy configured", nil)
		return failedOutcome(region, StageExtracting, nil, err, time.Since(start))
	}

	rec, err := p.extractor.Extract(ctx, &RegionInput{Region: region, Image: crop}, entries)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "extraction failed")
		return failedOutcome(region, StageExtracting, rec, err, time.Since(start))
	}

	return p.resolve(ctx, region, rec, entries, start)
}

// resolve runs matching and verification over an extracted record.
func (p *Pipeline) resolve(ctx context.Context, region Region, rec *ExtractedRecord, entries []catalog.Entry, start time.Time) regionOutcome {
	match := p.matcher.Match(rec.Name, entries)
	if !match.Matched() {
		err := errors.NewNoCatalogMatchError(rec.Name).WithRegion(region.Index)
		trace.SpanFromContext(ctx).SetStatus(codes.Error, "no catalog match")
		return failedOutcome(region, StageMatching, rec, err, time.Since(start))
	}
	entry := *match.Entry

	vres := p.verifier.Verify(verify.Claim{
		Rarity:     rec.Rarity,
		Mutation:   rec.Mutation,
		Traits:     rec.Traits,
		Income:     rec.IncomeValue,
		Confidence: rec.ExtractionConfidence,
	}, entry)

	if len(vres.AppliedTraits) > 0 && rec.ApplyTraits(vres.AppliedTraits) {
		// expected income follows the traits the card now carries
		vres.ExpectedIncome = income.Total(entry.BaseIncome, income.NormalizeMutation(rec.Mutation), rec.Traits)
		p.logger.Info("Applied inferred traits",
			"region", region.Index,
			"name", entry.Name,
			"traits", vres.AppliedTraits,
			"expectedIncome", vres.ExpectedIncome)
	}
	if !vres.Passed {
		p.logger.Warn("Card failed verification",
			"region", region.Index,
			"name", entry.Name,
			"error", errors.NewVerificationMismatchError(vres.ClaimedIncome, vres.ExpectedIncome).WithRegion(region.Index))
	}

	breakdown := confidenceBreakdown(region, rec, match, vres)
	card := &CardReport{
		Region:            region,
		Extracted:         *rec,
		Match:             match,
		Verification:      vres,
		Confidence:        breakdown,
		OverallConfidence: overallConfidence(rec.Method, breakdown),
		Candidate: Candidate{
			CatalogID: entry.ID,
			Mutation:  rec.Mutation,
			Traits:    append([]string{}, rec.Traits...),
		},
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}
	return regionOutcome{card: card}
}

func confidenceBreakdown(region Region, rec *ExtractedRecord, match catalog.MatchResult, vres verify.Result) ConfidenceBreakdown {
	b := ConfidenceBreakdown{
		Detection:          region.DetectionConfidence,
		Extraction:         rec.ExtractionConfidence,
		Match:              match.Confidence,
		VerificationFactor: vres.Factor(),
	}
	switch rec.Method {
	case MethodClassical:
		b.OCR = rec.OCRConfidence
		b.Parse = rec.ExtractionConfidence
	default:
		// The recognizer reports modifier icons with the rest of the card.
		b.Modifiers = rec.ExtractionConfidence
	}
	return b
}

// overallConfidence blends stage confidences and applies the verification
// factor. Classical extraction cannot see modifier icons, so it earns no
// modifier share.
func overallConfidence(method Method, b ConfidenceBreakdown) float64 {
	var base float64
	switch method {
	case MethodClassical:
		base = b.Detection*0.15 + b.OCR*0.20 + b.Parse*0.20 + b.Match*0.40
	default:
		base = b.Detection*0.15 + b.Extraction*0.40 + b.Match*0.40 + b.Modifiers*0.05
	}
	return clamp01(base * b.VerificationFactor)
}

func failedOutcome(region Region, stage Stage, partial *ExtractedRecord, err error, elapsed time.Duration) regionOutcome {
	code := errors.CodeOf(err)
	if code == "" && stderrors.Is(err, context.DeadlineExceeded) {
		code = errors.ErrorProcessingTimeout
	}
	return regionOutcome{failed: &FailedRegion{
		Region:           region,
		Stage:            stage,
		Partial:          partial,
		Code:             code,
		Error:            err.Error(),
		ProcessingTimeMs: elapsed.Milliseconds(),
	}}
}

// CropRegion returns the PNG crop of box from img.
func CropRegion(img SourceImage, box BoundingBox) ([]byte, error) {
	decoded, err := decodeImage(&img)
	if err != nil {
		return nil, err
	}
	return cropPNG(decoded, box)
}
