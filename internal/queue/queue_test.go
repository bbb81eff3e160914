package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/floorscan-worker/internal/errors"
	"github.com/adverant/nexus/floorscan-worker/internal/logging"
	"github.com/adverant/nexus/floorscan-worker/internal/processor"
)

func TestPayloadAcceptsBase64Image(t *testing.T) {
	var p ScanJobPayload
	require.NoError(t, json.Unmarshal([]byte(`{"jobId":"j1","accountId":"a1","image":"iVBORw==","width":1920,"height":1080,"mode":"whole-floor"}`), &p))

	assert.Equal(t, "j1", p.JobID)
	assert.Equal(t, "a1", p.AccountID)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, p.Image)
	assert.Equal(t, 1920, p.Width)
	assert.Equal(t, "whole-floor", p.Mode)
}

func TestPayloadAcceptsNodeBuffer(t *testing.T) {
	var p ScanJobPayload
	require.NoError(t, json.Unmarshal([]byte(`{"jobId":"j2","image":{"type":"Buffer","data":[137,80,78,71]}}`), &p))
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, p.Image)
}

func TestPayloadRejectsBadImages(t *testing.T) {
	cases := map[string]string{
		"bad base64":    `{"image":"%%%"}`,
		"not a buffer":  `{"image":{"type":"Blob","data":[1]}}`,
		"missing data":  `{"image":{"type":"Buffer"}}`,
		"byte overflow": `{"image":{"type":"Buffer","data":[300]}}`,
		"number":        `{"image":42}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			var p ScanJobPayload
			assert.Error(t, json.Unmarshal([]byte(body), &p))
		})
	}
}

func TestPayloadWithoutImage(t *testing.T) {
	var p ScanJobPayload
	require.NoError(t, json.Unmarshal([]byte(`{"jobId":"j3"}`), &p))
	assert.Nil(t, p.Image)
}

func TestRedisJobSurvivesRequeue(t *testing.T) {
	job := RedisJobData{
		ID:         "q-1",
		Type:       "scan",
		Payload:    ScanJobPayload{JobID: "j4", AccountID: "a4", Image: []byte{1, 2, 3}, Mode: "per-card"},
		Attempts:   1,
		MaxRetries: 3,
	}
	data, err := json.Marshal(job)
	require.NoError(t, err)

	var back RedisJobData
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, job.Payload.Image, back.Payload.Image)
	assert.Equal(t, "a4", back.Payload.AccountID)
	assert.Equal(t, 1, back.Attempts)
}

type statusCall struct {
	status   string
	progress int
	metadata map[string]interface{}
}

type fakeProcessor struct {
	mu      sync.Mutex
	calls   []statusCall
	result  *processor.ScanResult
	err     error
	block   bool
	request *processor.ScanRequest
}

func (f *fakeProcessor) ProcessScan(ctx context.Context, req *processor.ScanRequest) (*processor.ScanResult, error) {
	f.mu.Lock()
	f.request = req
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.result, f.err
}

func (f *fakeProcessor) UpdateJobStatus(ctx context.Context, jobID string, status string, progress int, metadata map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, statusCall{status, progress, metadata})
	return nil
}

func TestRunScanRecordsCompletion(t *testing.T) {
	proc := &fakeProcessor{result: &processor.ScanResult{BatchID: "b1", ReportID: "r1", Successful: 3, Failed: 1, AverageConfidence: 0.8}}
	p := &ScanJobPayload{JobID: "j5", AccountID: "a5", Image: []byte{1}, Width: 800}

	res, err := runScan(context.Background(), proc, p, time.Second, logging.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, "b1", res.BatchID)
	assert.Equal(t, 800, proc.request.Width)

	require.Len(t, proc.calls, 2)
	assert.Equal(t, "processing", proc.calls[0].status)
	done := proc.calls[1]
	assert.Equal(t, "completed", done.status)
	assert.Equal(t, 100, done.progress)
	assert.Equal(t, 0.8, done.metadata["confidence"])
	assert.Equal(t, "b1", done.metadata["batchId"])
	assert.IsType(t, int64(0), done.metadata["processingTime"])
}

func TestRunScanTimesOut(t *testing.T) {
	proc := &fakeProcessor{block: true}
	p := &ScanJobPayload{JobID: "j6", Image: []byte{1}}

	_, err := runScan(context.Background(), proc, p, 20*time.Millisecond, logging.NewNopLogger())
	require.Error(t, err)
	assert.Equal(t, errors.ErrorProcessingTimeout, errors.CodeOf(err))
	assert.True(t, retryable(err))

	failed := proc.calls[len(proc.calls)-1]
	assert.Equal(t, "failed", failed.status)
	assert.Equal(t, "PROCESSING_TIMEOUT", failed.metadata["error_code"])
}

func TestRunScanFailureIsNotRetriedWhenFatal(t *testing.T) {
	proc := &fakeProcessor{err: errors.NewNoRegionsDetectedError(10, 10).WithJob("j7")}
	_, err := runScan(context.Background(), proc, &ScanJobPayload{JobID: "j7"}, time.Second, logging.NewNopLogger())
	require.Error(t, err)
	assert.False(t, retryable(err))

	failed := proc.calls[len(proc.calls)-1]
	assert.Equal(t, "NO_REGIONS_DETECTED", failed.metadata["error_code"])

	assert.True(t, retryable(errors.NewStorageFailedError("j7", fmt.Errorf("down"))))
}

func TestNewScanTask(t *testing.T) {
	task, err := NewScanTask(&ScanJobPayload{JobID: "j8", Image: []byte{9}})
	require.NoError(t, err)
	assert.Equal(t, TaskScanFloor, task.Type())

	var p ScanJobPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	assert.Equal(t, []byte{9}, p.Image)
}
