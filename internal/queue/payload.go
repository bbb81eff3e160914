package queue

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adverant/nexus/floorscan-worker/internal/errors"
	"github.com/adverant/nexus/floorscan-worker/internal/processor"
)

// ScanJobPayload is the job body pushed by the scan API.
type ScanJobPayload struct {
	JobID     string                 `json:"jobId"`
	AccountID string                 `json:"accountId"`
	MimeType  string                 `json:"mimeType,omitempty"`
	Width     int                    `json:"width,omitempty"`
	Height    int                    `json:"height,omitempty"`
	Mode      string                 `json:"mode,omitempty"`
	Image     []byte                 `json:"-"` // set by UnmarshalJSON
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// UnmarshalJSON accepts the image either as a base64 string or as a
// serialized Node.js Buffer ({"type":"Buffer","data":[...]}).
func (p *ScanJobPayload) UnmarshalJSON(data []byte) error {
	type Alias ScanJobPayload
	aux := &struct {
		Image interface{} `json:"image,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal scan payload: %w", err)
	}

	if aux.Image == nil {
		return nil
	}

	switch v := aux.Image.(type) {
	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return fmt.Errorf("failed to decode base64 image: %w", err)
		}
		p.Image = decoded

	case map[string]interface{}:
		if bufferType, ok := v["type"].(string); !ok || bufferType != "Buffer" {
			return fmt.Errorf("invalid Buffer object format (missing or incorrect 'type' field)")
		}
		dataArray, ok := v["data"].([]interface{})
		if !ok {
			return fmt.Errorf("Buffer object missing 'data' array")
		}
		p.Image = make([]byte, len(dataArray))
		for i, val := range dataArray {
			byteVal, ok := val.(float64)
			if !ok || byteVal < 0 || byteVal > 255 {
				return fmt.Errorf("invalid byte value in Buffer data array at index %d", i)
			}
			p.Image[i] = byte(byteVal)
		}

	default:
		return fmt.Errorf("image must be either base64 string or Buffer object, got %T", v)
	}

	return nil
}

// MarshalJSON writes the image back as base64 so retried jobs round-trip.
func (p ScanJobPayload) MarshalJSON() ([]byte, error) {
	type Alias ScanJobPayload
	return json.Marshal(&struct {
		Image string `json:"image,omitempty"`
		Alias
	}{
		Image: base64.StdEncoding.EncodeToString(p.Image),
		Alias: Alias(p),
	})
}

// Request converts the payload to a scan request.
func (p *ScanJobPayload) Request() *processor.ScanRequest {
	return &processor.ScanRequest{
		JobID:     p.JobID,
		AccountID: p.AccountID,
		Image:     p.Image,
		MimeType:  p.MimeType,
		Width:     p.Width,
		Height:    p.Height,
		Mode:      p.Mode,
		Metadata:  p.Metadata,
	}
}

// completionMetadata is what a finished job records on its status row.
func completionMetadata(p *ScanJobPayload, result *processor.ScanResult, took time.Duration) map[string]interface{} {
	return map[string]interface{}{
		"accountId":      p.AccountID,
		"confidence":     result.AverageConfidence,
		"processingTime": took.Milliseconds(),
		"batchId":        result.BatchID,
		"reportId":       result.ReportID,
		"mode":           result.Mode,
		"totalRegions":   result.TotalRegions,
		"successful":     result.Successful,
		"failed":         result.Failed,
	}
}

// failureMetadata is what a failed job records on its status row.
func failureMetadata(p *ScanJobPayload, err error, took time.Duration) map[string]interface{} {
	meta := map[string]interface{}{
		"accountId":      p.AccountID,
		"error":          err.Error(),
		"processingTime": took.Milliseconds(),
	}
	if pe, ok := errors.As(err); ok {
		for k, v := range pe.ToMap() {
			meta[k] = v
		}
	}
	return meta
}
