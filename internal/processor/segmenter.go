package processor

import (
	"context"
	"math"
	"sort"

	"github.com/adverant/nexus/floorscan-worker/internal/clients"
	"github.com/adverant/nexus/floorscan-worker/internal/errors"
	"github.com/adverant/nexus/floorscan-worker/internal/logging"
)

// Segmentation sources
const (
	SourceRecognizer = "recognizer"
	SourceGeometric  = "geometric"
)

// geometricConfidence is the detection confidence of every fallback region.
const geometricConfidence = 0.95

// CardDetector finds card bounding boxes in a full screenshot.
type CardDetector interface {
	DetectCards(ctx context.Context, image []byte) (*clients.CardDetection, error)
}

// Segmentation is the outcome of Segment.
type Segmentation struct {
	Regions           []Region
	Layout            string
	Source            string
	OverallConfidence float64
}

// Segmenter splits a screenshot into card regions. It asks the recognizer
// first and falls back to fixed geometric layouts chosen by aspect ratio.
type Segmenter struct {
	detector CardDetector
	logger   *logging.Logger
}

// NewSegmenter creates a segmenter. detector may be nil, in which case only
// the geometric layouts are used.
func NewSegmenter(detector CardDetector, logger *logging.Logger) *Segmenter {
	if logger == nil {
		logger = logging.NewLogger("Segmenter")
	}
	return &Segmenter{detector: detector, logger: logger}
}

// Segment never fails because of the recognizer; a recognizer failure only
// switches to the geometric path. An image without dimensions yields no
// regions, which the caller treats as fatal.
func (s *Segmenter) Segment(ctx context.Context, img SourceImage) (*Segmentation, error) {
	if s.detector != nil {
		seg, err := s.segmentWithRecognizer(ctx, img)
		if err == nil {
			return seg, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("Card detection unavailable, falling back to geometric layout",
			"error", err,
			"width", img.Width,
			"height", img.Height)
	}

	layout, regions := GeometricLayout(img.Width, img.Height)
	seg := &Segmentation{
		Regions: regions,
		Layout:  layout,
		Source:  SourceGeometric,
	}
	if len(regions) > 0 {
		seg.OverallConfidence = geometricConfidence
	}
	return seg, nil
}

func (s *Segmenter) segmentWithRecognizer(ctx context.Context, img SourceImage) (*Segmentation, error) {
	det, err := s.detector.DetectCards(ctx, img.Data)
	if err != nil {
		return nil, errors.NewSegmentationUnavailableError(err)
	}
	if det == nil {
		return nil, errors.NewSegmentationUnavailableError(nil)
	}

	var regions []Region
	for _, c := range det.Cards {
		box := BoundingBox{
			X:      int(math.Round(c.BoundingBox.X)),
			Y:      int(math.Round(c.BoundingBox.Y)),
			Width:  int(math.Round(c.BoundingBox.Width)),
			Height: int(math.Round(c.BoundingBox.Height)),
		}
		if img.Width > 0 && img.Height > 0 {
			box = box.Clamp(img.Width, img.Height)
		}
		if box.Empty() {
			continue
		}
		conf := c.Confidence
		if conf <= 0 || conf > 1 {
			conf = 0.5
		}
		regions = append(regions, Region{Box: box, DetectionConfidence: conf})
	}

	if len(regions) == 0 {
		return nil, errors.NewSegmentationUnavailableError(nil)
	}

	regions = readingOrder(regions)

	total := 0.0
	for _, r := range regions {
		total += r.DetectionConfidence
	}

	layout := det.Layout
	if layout == "" {
		layout = "detected"
	}

	s.logger.Info("Card regions detected",
		"regions", len(regions),
		"reportedCount", det.DetectedCount,
		"layout", layout)

	return &Segmentation{
		Regions:           regions,
		Layout:            layout,
		Source:            SourceRecognizer,
		OverallConfidence: total / float64(len(regions)),
	}, nil
}

// readingOrder groups boxes into rows (a box joins a row when its top lies
// within half the row's first box height) and orders rows top to bottom and
// boxes left to right, then renumbers them.
func readingOrder(regions []Region) []Region {
	sort.SliceStable(regions, func(i, j int) bool {
		return regions[i].Box.Y < regions[j].Box.Y
	})

	var rows [][]Region
	for _, r := range regions {
		n := len(rows)
		if n > 0 {
			head := rows[n-1][0].Box
			if r.Box.Y-head.Y <= head.Height/2 {
				rows[n-1] = append(rows[n-1], r)
				continue
			}
		}
		rows = append(rows, []Region{r})
	}

	out := make([]Region, 0, len(regions))
	for _, row := range rows {
		sort.SliceStable(row, func(i, j int) bool {
			return row[i].Box.X < row[j].Box.X
		})
		out = append(out, row...)
	}
	for i := range out {
		out[i].Index = i
	}
	return out
}

// GeometricLayout picks a fixed layout from the aspect ratio and slices the
// image into equal regions:
//
//	ratio > 2.4  horizontal-5
//	ratio > 1.8  horizontal-4
//	ratio < 0.5  vertical-3
//	otherwise    grid-2x2
//
// Horizontal slices overlap their neighbours by 5% of a card width so that
// a card straddling a cut is still fully inside one region.
func GeometricLayout(width, height int) (string, []Region) {
	if width <= 0 || height <= 0 {
		return "none", nil
	}

	ratio := float64(width) / float64(height)
	switch {
	case ratio > 2.4:
		return "horizontal-5", horizontalSlices(width, height, 5)
	case ratio > 1.8:
		return "horizontal-4", horizontalSlices(width, height, 4)
	case ratio < 0.5:
		return "vertical-3", verticalSlices(width, height, 3)
	default:
		return "grid-2x2", gridSlices(width, height, 2, 2)
	}
}

func horizontalSlices(width, height, n int) []Region {
	cardWidth := width / n
	overlap := int(math.Floor(float64(cardWidth) * 0.05))

	regions := make([]Region, 0, n)
	for i := 0; i < n; i++ {
		x := max(0, cardWidth*i-overlap)
		w := cardWidth + 2*overlap
		switch {
		case i == n-1:
			// last slice absorbs the remainder of width / n
			w = width - x
		case i == 0:
			w = cardWidth + overlap
		}
		box := BoundingBox{X: x, Y: 0, Width: w, Height: height}.Clamp(width, height)
		regions = append(regions, Region{Index: i, Box: box, DetectionConfidence: geometricConfidence})
	}
	return regions
}

func verticalSlices(width, height, n int) []Region {
	cardHeight := height / n
	regions := make([]Region, 0, n)
	for i := 0; i < n; i++ {
		h := cardHeight
		if i == n-1 {
			h = height - cardHeight*i
		}
		box := BoundingBox{X: 0, Y: cardHeight * i, Width: width, Height: h}
		regions = append(regions, Region{Index: i, Box: box, DetectionConfidence: geometricConfidence})
	}
	return regions
}

func gridSlices(width, height, cols, rows int) []Region {
	cw, ch := width/cols, height/rows
	regions := make([]Region, 0, cols*rows)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			w, h := cw, ch
			if c == cols-1 {
				w = width - c*cw
			}
			if r == rows-1 {
				h = height - r*ch
			}
			box := BoundingBox{X: c * cw, Y: r * ch, Width: w, Height: h}
			regions = append(regions, Region{Index: len(regions), Box: box, DetectionConfidence: geometricConfidence})
		}
	}
	return regions
}
