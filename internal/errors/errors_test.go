package errors

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineErrorFormatting(t *testing.T) {
	err := NewRecognizerUnavailableError("detect", fmt.Errorf("connection refused"))
	assert.Equal(t, ErrorRecognizerUnavailable, err.Code)
	assert.Contains(t, err.Error(), "RECOGNIZER_UNAVAILABLE")
	assert.Contains(t, err.Error(), "connection refused")

	plain := NewNoCatalogMatchError("Mystery")
	assert.Equal(t, `NO_CATALOG_MATCH: No catalog entry matches "Mystery"`, plain.Error())
}

func TestCodeOfWrapped(t *testing.T) {
	inner := NewExtractionLowConfidenceError("classical", 0.1, 0.2).WithRegion(3)
	wrapped := fmt.Errorf("region 3: %w", inner)

	assert.Equal(t, ErrorExtractionLowConfidence, CodeOf(wrapped))
	assert.True(t, HasCode(wrapped, ErrorExtractionLowConfidence))

	pe, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, 3, pe.RegionIndex)

	assert.Equal(t, ErrorCode(""), CodeOf(fmt.Errorf("plain")))
	assert.Equal(t, ErrorCode(""), CodeOf(nil))
}

func TestUnwrapKeepsCause(t *testing.T) {
	err := NewRecognizerTimeoutError("extract", 2*time.Second, context.DeadlineExceeded)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIsFallbackable(t *testing.T) {
	assert.True(t, IsFallbackable(NewMalformedResponseError("extract", nil)))
	assert.True(t, IsFallbackable(NewExtractionLowConfidenceError("structured", 0.1, 0.2)))
	assert.True(t, IsFallbackable(NewRecognizerTimeoutError("extract", time.Second, nil)))
	assert.False(t, IsFallbackable(NewNoCatalogMatchError("x")))
	assert.False(t, IsFallbackable(NewNoRegionsDetectedError(10, 10)))
	assert.False(t, IsFallbackable(context.Canceled))
}

func TestToMap(t *testing.T) {
	err := NewVerificationMismatchError(100, 50).WithRegion(1).WithJob("job-1")
	m := err.ToMap()

	assert.Equal(t, "VERIFICATION_MISMATCH", m["error_code"])
	assert.Equal(t, 1, m["region_index"])
	assert.Equal(t, int64(100), m["claimed"])
	assert.Equal(t, "job-1", err.JobID)

	noRegion := NewStorageFailedError("job-2", fmt.Errorf("db down")).ToMap()
	_, hasRegion := noRegion["region_index"]
	assert.False(t, hasRegion)
	assert.Equal(t, "db down", noRegion["cause"])
}
