package processor

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/floorscan-worker/internal/clients"
	"github.com/adverant/nexus/floorscan-worker/internal/logging"
)

type fakeDetector struct {
	detection *clients.CardDetection
	err       error
	calls     int
}

func (f *fakeDetector) DetectCards(ctx context.Context, image []byte) (*clients.CardDetection, error) {
	f.calls++
	return f.detection, f.err
}

func TestGeometricLayoutSelection(t *testing.T) {
	cases := []struct {
		w, h    int
		layout  string
		regions int
	}{
		{2500, 1000, "horizontal-5", 5},
		{2000, 1000, "horizontal-4", 4},
		{400, 1000, "vertical-3", 3},
		{1000, 1000, "grid-2x2", 4},
		{1800, 1000, "grid-2x2", 4},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%dx%d", tc.w, tc.h), func(t *testing.T) {
			layout, regions := GeometricLayout(tc.w, tc.h)
			assert.Equal(t, tc.layout, layout)
			assert.Len(t, regions, tc.regions)
			for i, r := range regions {
				assert.Equal(t, i, r.Index)
				assert.Equal(t, geometricConfidence, r.DetectionConfidence)
			}
		})
	}
}

func TestHorizontalSlicesOverlapAndStayInside(t *testing.T) {
	_, regions := GeometricLayout(2500, 1000)
	require.Len(t, regions, 5)

	// cardWidth 500, overlap 25
	assert.Equal(t, BoundingBox{X: 0, Y: 0, Width: 525, Height: 1000}, regions[0].Box)
	assert.Equal(t, BoundingBox{X: 475, Y: 0, Width: 550, Height: 1000}, regions[1].Box)
	assert.Equal(t, BoundingBox{X: 1975, Y: 0, Width: 525, Height: 1000}, regions[4].Box)

	for i, r := range regions {
		assert.GreaterOrEqual(t, r.Box.X, 0)
		assert.LessOrEqual(t, r.Box.X+r.Box.Width, 2500)
		if i > 0 {
			prev := regions[i-1].Box
			assert.Less(t, r.Box.X, prev.X+prev.Width, "region %d should overlap its left neighbour", i)
		}
	}
}

func TestGeometricLayoutDegenerate(t *testing.T) {
	layout, regions := GeometricLayout(0, 100)
	assert.Equal(t, "none", layout)
	assert.Empty(t, regions)
}

func TestSegmentFallsBackWhenRecognizerFails(t *testing.T) {
	det := &fakeDetector{err: fmt.Errorf("connection refused")}
	s := NewSegmenter(det, logging.NewNopLogger())

	seg, err := s.Segment(context.Background(), SourceImage{Width: 2000, Height: 1000})
	require.NoError(t, err)
	assert.Equal(t, 1, det.calls)
	assert.Equal(t, SourceGeometric, seg.Source)
	assert.Equal(t, "horizontal-4", seg.Layout)
	assert.Len(t, seg.Regions, 4)
	assert.InDelta(t, 0.95, seg.OverallConfidence, 1e-9)
}

func TestSegmentFallsBackOnZeroBoxes(t *testing.T) {
	det := &fakeDetector{detection: &clients.CardDetection{DetectedCount: 0}}
	seg, err := NewSegmenter(det, logging.NewNopLogger()).Segment(context.Background(), SourceImage{Width: 1000, Height: 1000})
	require.NoError(t, err)
	assert.Equal(t, SourceGeometric, seg.Source)
	assert.Equal(t, "grid-2x2", seg.Layout)
}

func TestSegmentUsesRecognizerBoxes(t *testing.T) {
	det := &fakeDetector{detection: &clients.CardDetection{
		DetectedCount: 3,
		Layout:        "grid",
		Cards: []clients.DetectedCard{
			{ID: 1, BoundingBox: clients.Box{X: 510, Y: 20, Width: 480, Height: 400}, Confidence: 0.9},
			{ID: 2, BoundingBox: clients.Box{X: 10, Y: 30, Width: 480, Height: 400}, Confidence: 0.8},
			{ID: 3, BoundingBox: clients.Box{X: 10, Y: 500, Width: 480, Height: 900}, Confidence: 0.7},
		},
	}}
	seg, err := NewSegmenter(det, logging.NewNopLogger()).Segment(context.Background(), SourceImage{Width: 1000, Height: 1000})
	require.NoError(t, err)

	assert.Equal(t, SourceRecognizer, seg.Source)
	assert.Equal(t, "grid", seg.Layout)
	require.Len(t, seg.Regions, 3)

	// top row left to right, then the second row
	assert.Equal(t, 10, seg.Regions[0].Box.X)
	assert.Equal(t, 510, seg.Regions[1].Box.X)
	assert.Equal(t, 500, seg.Regions[2].Box.Y)

	// clamped to the image
	assert.Equal(t, 500, seg.Regions[2].Box.Height)

	for i, r := range seg.Regions {
		assert.Equal(t, i, r.Index)
	}
	assert.InDelta(t, 0.8, seg.OverallConfidence, 1e-9)
}

func TestSegmentWithoutDetector(t *testing.T) {
	seg, err := NewSegmenter(nil, logging.NewNopLogger()).Segment(context.Background(), SourceImage{Width: 300, Height: 1000})
	require.NoError(t, err)
	assert.Equal(t, "vertical-3", seg.Layout)
}

func TestWideScreenshotCoveredByFiveRegions(t *testing.T) {
	for _, width := range []int{3000, 3004} {
		layout, regions := GeometricLayout(width, 1000)
		assert.Equal(t, "horizontal-5", layout)
		require.Len(t, regions, 5)

		assert.Equal(t, 0, regions[0].Box.X)
		end := 0
		for _, r := range regions {
			assert.LessOrEqual(t, r.Box.X, end, "gap before region %d", r.Index)
			assert.Equal(t, 0, r.Box.Y)
			assert.Equal(t, 1000, r.Box.Height)
			end = max(end, r.Box.X+r.Box.Width)
		}
		assert.Equal(t, width, end, "width %d", width)
	}
}

func TestUnevenSizesLeaveNoUncoveredEdge(t *testing.T) {
	cases := []struct {
		width, height int
		layout        string
	}{
		{2001, 1000, "horizontal-4"},
		{400, 1001, "vertical-3"},
		{1001, 1001, "grid-2x2"},
	}
	for _, tc := range cases {
		layout, regions := GeometricLayout(tc.width, tc.height)
		require.Equal(t, tc.layout, layout)

		right, bottom := 0, 0
		for _, r := range regions {
			right = max(right, r.Box.X+r.Box.Width)
			bottom = max(bottom, r.Box.Y+r.Box.Height)
			assert.LessOrEqual(t, r.Box.X+r.Box.Width, tc.width)
			assert.LessOrEqual(t, r.Box.Y+r.Box.Height, tc.height)
		}
		assert.Equal(t, tc.width, right, "%s right edge", tc.layout)
		assert.Equal(t, tc.height, bottom, "%s bottom edge", tc.layout)
	}
}
