package clients

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/floorscan-worker/internal/errors"
)

// visionServer answers every analyze call with the given model text.
func visionServer(t *testing.T, text string, gotTask *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		require.Equal(t, "/api/internal/vision/analyze", r.URL.Path)
		require.Equal(t, "floorscan-worker", r.Header.Get("X-Source"))

		var req VisionAnalyzeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "base64", req.Format)
		assert.NotEmpty(t, req.Image)
		if gotTask != nil {
			*gotTask = req.Task
		}

		_ = json.NewEncoder(w).Encode(VisionAnalyzeResponse{
			Success: true,
			Data:    VisionAnalyzeData{Text: text, ModelUsed: "test-model"},
		})
	}))
}

func TestUnwrapJSON(t *testing.T) {
	cases := map[string]string{
		"bare":       `{"a":1}`,
		"fenced":     "Here you go:\n```json\n{\"a\":1}\n```\nDone.",
		"plainFence": "```\n{\"a\":1}\n```",
		"narrative":  `I found the following: {"a":1} hope that helps`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			out, err := UnwrapJSON(in)
			require.NoError(t, err)
			assert.JSONEq(t, `{"a":1}`, string(out))
		})
	}

	_, err := UnwrapJSON("no json at all")
	assert.Error(t, err)

	_, err = UnwrapJSON("{broken")
	assert.Error(t, err)

	_, err = UnwrapJSON("{not: valid}")
	assert.Error(t, err)
}

func TestDetectCards(t *testing.T) {
	var task string
	srv := visionServer(t, "```json\n"+`{"detected_count":2,"cards":[
		{"id":1,"bounding_box":{"x":0,"y":0,"width":100,"height":200},"confidence":0.9},
		{"id":2,"bounding_box":{"x":100.4,"y":0,"width":100,"height":200},"confidence":0.8}],
		"layout":"horizontal"}`+"\n```", &task)
	defer srv.Close()

	client := NewVisionClient(srv.URL, time.Second)
	det, err := client.DetectCards(context.Background(), []byte("png"))
	require.NoError(t, err)

	assert.Equal(t, TaskDetectCards, task)
	assert.Equal(t, 2, det.DetectedCount)
	require.Len(t, det.Cards, 2)
	assert.InDelta(t, 100.4, det.Cards[1].BoundingBox.X, 1e-9)
	assert.Equal(t, "horizontal", det.Layout)
}

func TestReadCardIncomeFallbacks(t *testing.T) {
	srv := visionServer(t, `Sure! {"name":"Tralalero Tralala","rarity":"Brainrot God","mutation":"gold",
		"income_per_second":"$1.5M/s","modifier_icons":["fire"],"confidence":0.92}`, nil)
	defer srv.Close()

	client := NewVisionClient(srv.URL, time.Second)
	card, err := client.ReadCard(context.Background(), []byte("png"), []string{"Tralalero Tralala"})
	require.NoError(t, err)

	assert.Equal(t, "Tralalero Tralala", card.Name)
	assert.Equal(t, int64(1500000), card.Income())
	assert.Equal(t, []string{"fire"}, card.ModifierIcons)

	numeric := CardReading{IncomeValue: json.RawMessage(`2500`)}
	assert.Equal(t, int64(2500), numeric.Income())

	textual := CardReading{IncomeValue: json.RawMessage(`"$3K/s"`)}
	assert.Equal(t, int64(3000), textual.Income())

	assert.Equal(t, int64(0), (&CardReading{}).Income())
}

func TestReadFloor(t *testing.T) {
	srv := visionServer(t, `{"brainrots":[{"position":1,"name":"A","income_value":10,"confidence":0.8},
		{"position":2,"name":"B","income_per_second":"$20/s","confidence":0.7}],"layout":"horizontal","overall_confidence":0.75}`, nil)
	defer srv.Close()

	floor, err := NewVisionClient(srv.URL, time.Second).ReadFloor(context.Background(), []byte("png"), nil)
	require.NoError(t, err)
	require.Len(t, floor.Cards, 2)
	assert.Equal(t, 2, floor.Cards[1].Position)
	assert.Equal(t, int64(20), floor.Cards[1].Income())
	assert.InDelta(t, 0.75, floor.OverallConfidence, 1e-9)
}

func TestMalformedResponse(t *testing.T) {
	srv := visionServer(t, "I could not see any cards, sorry.", nil)
	defer srv.Close()

	_, err := NewVisionClient(srv.URL, time.Second).DetectCards(context.Background(), []byte("png"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrorMalformedResponse, errors.CodeOf(err))
}

func TestServiceErrors(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer failing.Close()

	_, err := NewVisionClient(failing.URL, time.Second).ReadCard(context.Background(), []byte("png"), nil)
	assert.Equal(t, errors.ErrorRecognizerUnavailable, errors.CodeOf(err))
	assert.Error(t, NewVisionClient(failing.URL, time.Second).HealthCheck(context.Background()))

	unsuccessful := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(VisionAnalyzeResponse{Success: false, Message: "no model"})
	}))
	defer unsuccessful.Close()

	_, err = NewVisionClient(unsuccessful.URL, time.Second).ReadCard(context.Background(), []byte("png"), nil)
	assert.Equal(t, errors.ErrorRecognizerUnavailable, errors.CodeOf(err))
}

func TestTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	_, err := NewVisionClient(slow.URL, 50*time.Millisecond).DetectCards(context.Background(), []byte("png"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrorRecognizerTimeout, errors.CodeOf(err))
}

func TestHealthCheck(t *testing.T) {
	srv := visionServer(t, "", nil)
	defer srv.Close()
	assert.NoError(t, NewVisionClient(srv.URL+"/", time.Second).HealthCheck(context.Background()))
}

func TestUploadRegionCrop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/fileprocess/api/files/upload", r.URL.Path)

		_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		require.NoError(t, err)
		reader := multipart.NewReader(r.Body, params["boundary"])

		fields := map[string]string{}
		for {
			part, err := reader.NextPart()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			data, _ := io.ReadAll(part)
			if part.FormName() == "file" {
				assert.Equal(t, "job-1-region-2.png", part.FileName())
				assert.Equal(t, "crop", string(data))
				continue
			}
			fields[part.FormName()] = string(data)
		}
		assert.Equal(t, "job-1", fields["source_id"])
		assert.Equal(t, "floorscan-worker", fields["source_service"])
		assert.True(t, strings.Contains(fields["metadata"], `"region_index":2`))

		_, _ = w.Write([]byte(`{"success":true,"artifact":{"id":"a1","download_url":"http://files/a1"}}`))
	}))
	defer srv.Close()

	url, err := NewArtifactClient(srv.URL).UploadRegionCrop(context.Background(), "job-1", 2, []byte("crop"), nil)
	require.NoError(t, err)
	assert.Equal(t, "http://files/a1", url)
}

func TestUploadRejectsEmptyCrop(t *testing.T) {
	_, err := NewArtifactClient("http://unused").UploadRegionCrop(context.Background(), "job-1", 0, nil, nil)
	assert.Error(t, err)
}
