/**
 * Vision Client - card detection and card reading through the MageAgent
 * vision endpoint
 *
 * The service picks the model; this client only sends an image plus a task
 * instruction and gets free text back. The text is expected to contain one
 * JSON object, possibly wrapped in code fences or narrative, which is
 * unwrapped and decoded into the task's response type.
 */

package clients

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/adverant/nexus/floorscan-worker/internal/errors"
	"github.com/adverant/nexus/floorscan-worker/internal/income"
	"github.com/adverant/nexus/floorscan-worker/internal/logging"
)

// Task names sent to the vision service
const (
	TaskDetectCards = "detect-cards"
	TaskReadCard    = "read-card"
	TaskReadFloor   = "read-floor"
)

// VisionClient handles communication with the vision service
type VisionClient struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	logger     *logging.Logger
}

// VisionAnalyzeRequest represents a request to analyze an image
type VisionAnalyzeRequest struct {
	Image          string `json:"image"`  // Base64 encoded image
	Format         string `json:"format"` // "base64"
	Task           string `json:"task"`
	Instruction    string `json:"instruction"`
	MaxTokens      int    `json:"maxTokens"`
	PreferAccuracy bool   `json:"preferAccuracy"`
	JobID          string `json:"jobId,omitempty"`
}

// VisionAnalyzeResponse represents the vision endpoint envelope
type VisionAnalyzeResponse struct {
	Success bool              `json:"success"`
	Data    VisionAnalyzeData `json:"data"`
	Message string            `json:"message"`
}

// VisionAnalyzeData contains the model output and metadata
type VisionAnalyzeData struct {
	Text           string  `json:"text"`
	Confidence     float64 `json:"confidence"`
	ModelUsed      string  `json:"modelUsed"`
	ProcessingTime int64   `json:"processingTime"` // milliseconds
}

// Box is a pixel rectangle as reported by the model. Models sometimes emit
// fractional pixels, so fields are floats and rounded by the caller.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DetectedCard is one bounding box from card detection
type DetectedCard struct {
	ID          int     `json:"id"`
	BoundingBox Box     `json:"bounding_box"`
	Confidence  float64 `json:"confidence"`
}

// CardDetection is the decoded detect-cards answer
type CardDetection struct {
	DetectedCount int            `json:"detected_count"`
	Cards         []DetectedCard `json:"cards"`
	Layout        string         `json:"layout"`
}

// CardReading is the decoded read-card answer, also used per card in a floor reading
type CardReading struct {
	Position        int             `json:"position,omitempty"`
	Name            string          `json:"name"`
	Rarity          string          `json:"rarity"`
	Mutation        string          `json:"mutation"`
	IncomePerSecond string          `json:"income_per_second"`
	IncomeValue     json.RawMessage `json:"income_value,omitempty"`
	ModifierIcons   []string        `json:"modifier_icons"`
	Confidence      float64         `json:"confidence"`
	Notes           string          `json:"notes,omitempty"`
}

// Income returns the numeric income, preferring income_value and falling
// back to parsing income_per_second.
func (r *CardReading) Income() int64 {
	if len(r.IncomeValue) > 0 {
		var n float64
		if err := json.Unmarshal(r.IncomeValue, &n); err == nil && n > 0 {
			return int64(math.Round(n))
		}
		var s string
		if err := json.Unmarshal(r.IncomeValue, &s); err == nil {
			if v, ok := income.ParseGameNumber(s); ok {
				return v
			}
		}
	}
	if v, ok := income.ParseGameNumber(r.IncomePerSecond); ok {
		return v
	}
	return 0
}

// FloorReading is the decoded read-floor answer
type FloorReading struct {
	Cards             []CardReading `json:"brainrots"`
	Layout            string        `json:"layout"`
	OverallConfidence float64       `json:"overall_confidence"`
}

// NewVisionClient creates a new vision client. timeout bounds each call.
func NewVisionClient(baseURL string, timeout time.Duration) *VisionClient {
	return &VisionClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 120 * time.Second, // hard ceiling, per-call timeout comes from ctx
		},
		timeout: timeout,
		logger:  logging.NewLogger("VisionClient"),
	}
}

// Analyze sends one image and instruction to the vision service and returns the raw model text
func (c *VisionClient) Analyze(ctx context.Context, req *VisionAnalyzeRequest) (*VisionAnalyzeData, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	endpoint := fmt.Sprintf("%s/api/internal/vision/analyze", c.baseURL)

	// Marshal request
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, errors.NewRecognizerUnavailableError(req.Task, fmt.Errorf("failed to marshal request: %w", err))
	}

	// Create HTTP request
	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, errors.NewRecognizerUnavailableError(req.Task, fmt.Errorf("failed to create request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Source", "floorscan-worker")
	httpReq.Header.Set("X-Request-ID", fmt.Sprintf("%s-%d", req.Task, time.Now().UnixNano()))

	start := time.Now()

	// Execute request
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, errors.NewRecognizerTimeoutError(req.Task, c.timeout, err)
		}
		return nil, errors.NewRecognizerUnavailableError(req.Task, fmt.Errorf("request to vision service failed: %w", err))
	}
	defer resp.Body.Close()

	// Read response body
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, errors.NewRecognizerTimeoutError(req.Task, c.timeout, err)
		}
		return nil, errors.NewRecognizerUnavailableError(req.Task, fmt.Errorf("failed to read response body: %w", err))
	}

	// Check status code
	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewRecognizerUnavailableError(req.Task,
			fmt.Errorf("vision service returned error status %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	// Parse envelope
	var envelope VisionAnalyzeResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, errors.NewMalformedResponseError(req.Task, fmt.Errorf("failed to parse envelope: %w", err))
	}

	if !envelope.Success {
		return nil, errors.NewRecognizerUnavailableError(req.Task, fmt.Errorf("vision operation failed: %s", envelope.Message))
	}

	c.logger.Debug("Vision analysis complete",
		"task", req.Task,
		"modelUsed", envelope.Data.ModelUsed,
		"textLength", len(envelope.Data.Text),
		"durationMs", time.Since(start).Milliseconds())

	return &envelope.Data, nil
}

// DetectCards asks for card bounding boxes over the whole screenshot
func (c *VisionClient) DetectCards(ctx context.Context, image []byte) (*CardDetection, error) {
	var out CardDetection
	if err := c.analyzeInto(ctx, TaskDetectCards, detectInstruction, image, 1000, &out); err != nil {
		return nil, err
	}

	c.logger.Info("Card detection complete",
		"detectedCount", out.DetectedCount,
		"boxes", len(out.Cards),
		"layout", out.Layout)

	return &out, nil
}

// ReadCard reads the fields of a single cropped card. knownNames is passed as a hint.
func (c *VisionClient) ReadCard(ctx context.Context, image []byte, knownNames []string) (*CardReading, error) {
	var out CardReading
	if err := c.analyzeInto(ctx, TaskReadCard, readCardInstruction(knownNames), image, 800, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReadFloor reads every card of a whole screenshot in one call
func (c *VisionClient) ReadFloor(ctx context.Context, image []byte, knownNames []string) (*FloorReading, error) {
	var out FloorReading
	if err := c.analyzeInto(ctx, TaskReadFloor, readFloorInstruction(knownNames), image, 2000, &out); err != nil {
		return nil, err
	}

	c.logger.Info("Floor reading complete",
		"cards", len(out.Cards),
		"layout", out.Layout,
		"overallConfidence", out.OverallConfidence)

	return &out, nil
}

// HealthCheck checks if the vision service is healthy
func (c *VisionClient) HealthCheck(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/api/health", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vision service unhealthy: status %d", resp.StatusCode)
	}

	return nil
}

func (c *VisionClient) analyzeInto(ctx context.Context, task, instruction string, image []byte, maxTokens int, v interface{}) error {
	data, err := c.Analyze(ctx, &VisionAnalyzeRequest{
		Image:          base64.StdEncoding.EncodeToString(image),
		Format:         "base64",
		Task:           task,
		Instruction:    instruction,
		MaxTokens:      maxTokens,
		PreferAccuracy: true,
	})
	if err != nil {
		return err
	}

	if err := decodeWrapped(data.Text, v); err != nil {
		c.logger.Warn("Unparseable vision response",
			"task", task,
			"preview", truncate(data.Text, 120),
			"error", err)
		return errors.NewMalformedResponseError(task, err)
	}
	return nil
}

func isTimeout(ctx context.Context, err error) bool {
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) || stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr) && netErr.Timeout()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
