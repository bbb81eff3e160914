package processor

import (
	"context"
	"image"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/adverant/nexus/floorscan-worker/internal/catalog"
	"github.com/adverant/nexus/floorscan-worker/internal/clients"
	"github.com/adverant/nexus/floorscan-worker/internal/errors"
)

// FloorReader reads every card of a screenshot in one recognizer call.
type FloorReader interface {
	ReadFloor(ctx context.Context, image []byte, knownNames []string) (*clients.FloorReading, error)
}

// floorHintLimit caps the catalog names sent with a whole-floor request.
const floorHintLimit = 50

// ScanWholeFloor reads all cards in a single recognizer call and then matches
// and verifies each one like Scan does. Card positions map onto the geometric
// layout so every card still has a region. Cards read with too little
// confidence are re-read from their crop with the region extractor. When the
// floor read fails or returns nothing the screenshot goes through Scan.
func (p *Pipeline) ScanWholeFloor(ctx context.Context, img SourceImage, entries []catalog.Entry) (*BatchReport, error) {
	if p.floorReader == nil {
		return p.Scan(ctx, img, entries)
	}

	start := time.Now()
	batchID := uuid.New().String()

	ctx, span := tracer.Start(ctx, "pipeline.whole_floor", trace.WithAttributes(
		attribute.String("batch.id", batchID),
	))
	defer span.End()

	decoded, decodeErr := decodeImage(&img)

	reading, err := p.floorReader.ReadFloor(ctx, img.Data, catalog.Names(entries, floorHintLimit))
	if err == nil && (reading == nil || len(reading.Cards) == 0) {
		err = errors.NewExtractionFailedError(ModeWholeFloor, "recognizer returned no cards", nil)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "whole-floor read failed")
		p.logger.Warn("Whole-floor read failed, falling back to per-card scan",
			"batchId", batchID,
			"code", errors.CodeOf(err),
			"error", err)
		return p.Scan(ctx, img, entries)
	}

	layout, grid := GeometricLayout(img.Width, img.Height)
	if reading.Layout != "" {
		layout = reading.Layout
	}
	detection := reading.OverallConfidence
	if detection <= 0 || detection > 1 {
		detection = geometricConfidence
	}

	cards := append([]clients.CardReading(nil), reading.Cards...)
	sort.SliceStable(cards, func(i, j int) bool {
		return cards[i].Position < cards[j].Position
	})

	report := &BatchReport{
		BatchID:            batchID,
		Mode:               ModeWholeFloor,
		Layout:             layout,
		SegmentationSource: SourceRecognizer,
		TotalRegions:       len(cards),
		Successful:         []CardReport{},
		Failed:             []FailedRegion{},
	}

	for i := range cards {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		regionStart := time.Now()
		region := floorRegion(i, cards[i].Position, grid, img, detection)

		rec := recordFromReading(&cards[i])
		if rec.ExtractionConfidence < p.opts.MinFloorConfidence || rec.Name == "" {
			rec, err = p.rereadRegion(ctx, region, decoded, decodeErr, rec, entries)
			if err != nil {
				o := failedOutcome(region, StageExtracting, rec, err, time.Since(regionStart))
				report.Failed = append(report.Failed, *o.failed)
				continue
			}
		}

		o := p.resolve(ctx, region, rec, entries, regionStart)
		if o.card != nil {
			report.Successful = append(report.Successful, *o.card)
		} else {
			report.Failed = append(report.Failed, *o.failed)
		}
	}

	report.AggregateTimingMs = time.Since(start).Milliseconds()
	span.SetAttributes(
		attribute.Int("cards", len(cards)),
		attribute.Int("successful", len(report.Successful)),
		attribute.Int("failed", len(report.Failed)),
	)
	p.logger.Info("Whole-floor scan complete",
		"batchId", batchID,
		"cards", len(cards),
		"successful", len(report.Successful),
		"failed", len(report.Failed),
		"durationMs", report.AggregateTimingMs)

	return report, nil
}

// floorRegion places the i-th card (1-based position) on the geometric grid.
// Cards without a usable position cover the whole image.
func floorRegion(i, position int, grid []Region, img SourceImage, detection float64) Region {
	region := Region{
		Index:               i,
		Box:                 BoundingBox{Width: img.Width, Height: img.Height},
		DetectionConfidence: detection,
	}
	if position >= 1 && position <= len(grid) {
		region.Box = grid[position-1].Box
	}
	return region
}

// rereadRegion runs the region extractor on a weak whole-floor card.
func (p *Pipeline) rereadRegion(ctx context.Context, region Region, decoded image.Image, decodeErr error, weak *ExtractedRecord, entries []catalog.Entry) (*ExtractedRecord, error) {
	lowConf := errors.NewExtractionLowConfidenceError(ModeWholeFloor, weak.ExtractionConfidence, p.opts.MinFloorConfidence)
	if p.extractor == nil || decodeErr != nil || region.Box.Empty() {
		return weak, lowConf
	}
	crop, err := cropPNG(decoded, region.Box)
	if err != nil {
		return weak, lowConf
	}

	p.logger.Debug("Re-reading weak whole-floor card", "region", region.Index, "name", weak.Name)
	rec, err := p.extractor.Extract(ctx, &RegionInput{Region: region, Image: crop}, entries)
	if err != nil {
		if rec == nil {
			rec = weak
		}
		return rec, err
	}
	return rec, nil
}
