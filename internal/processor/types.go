package processor

import (
	"github.com/adverant/nexus/floorscan-worker/internal/catalog"
	"github.com/adverant/nexus/floorscan-worker/internal/errors"
	"github.com/adverant/nexus/floorscan-worker/internal/verify"
)

// SourceImage is the screenshot being scanned. It is never modified.
type SourceImage struct {
	Data     []byte
	Width    int
	Height   int
	MimeType string
}

// Region is one card-sized area of the source image.
type Region struct {
	Index               int         `json:"index"`
	Box                 BoundingBox `json:"boundingBox"`
	DetectionConfidence float64     `json:"detectionConfidence"`
}

// Method identifies the extraction strategy that produced a record.
type Method string

const (
	MethodStructured Method = "structured"
	MethodClassical  Method = "classical"
)

// Stage is the lifecycle position of a region.
type Stage string

const (
	StageSegmenting Stage = "segmenting"
	StageExtracting Stage = "extracting"
	StageMatching   Stage = "matching"
	StageVerifying  Stage = "verifying"
	StageDone       Stage = "done"
)

// ExtractedRecord holds the fields read off one card.
type ExtractedRecord struct {
	Name                 string   `json:"name"`
	Rarity               string   `json:"rarity,omitempty"`
	Mutation             string   `json:"mutation"`
	IncomeText           string   `json:"incomeText,omitempty"`
	IncomeValue          int64    `json:"incomeValue"`
	Cost                 int64    `json:"cost,omitempty"`
	CollectionValue      int64    `json:"collectionValue,omitempty"`
	ModifierLabels       []string `json:"modifierLabels,omitempty"`
	Traits               []string `json:"traits"`
	ExtractionConfidence float64  `json:"extractionConfidence"`
	OCRConfidence        float64  `json:"ocrConfidence,omitempty"`
	Method               Method   `json:"method"`
	TraitsAutoApplied    bool     `json:"traitsAutoApplied"`
	Notes                string   `json:"notes,omitempty"`
}

// ApplyTraits adds solver-inferred traits. It works once per record; later
// calls are ignored and return false.
func (r *ExtractedRecord) ApplyTraits(traits []string) bool {
	if r.TraitsAutoApplied || len(traits) == 0 {
		return false
	}
	have := make(map[string]bool, len(r.Traits))
	for _, t := range r.Traits {
		have[t] = true
	}
	for _, t := range traits {
		if !have[t] {
			r.Traits = append(r.Traits, t)
			have[t] = true
		}
	}
	r.TraitsAutoApplied = true
	return true
}

// ConfidenceBreakdown records the inputs to a card's overall confidence.
type ConfidenceBreakdown struct {
	Detection          float64 `json:"detection"`
	Extraction         float64 `json:"extraction"`
	OCR                float64 `json:"ocr,omitempty"`
	Parse              float64 `json:"parse,omitempty"`
	Match              float64 `json:"match"`
	Modifiers          float64 `json:"modifiers"`
	VerificationFactor float64 `json:"verificationFactor"`
}

// Candidate is what downstream consumers add to an inventory.
type Candidate struct {
	CatalogID string   `json:"catalogId"`
	Mutation  string   `json:"mutation"`
	Traits    []string `json:"traits"`
}

// CardReport is a successfully processed region.
type CardReport struct {
	Region            Region              `json:"region"`
	Extracted         ExtractedRecord     `json:"extracted"`
	Match             catalog.MatchResult `json:"match"`
	Verification      verify.Result       `json:"verification"`
	Confidence        ConfidenceBreakdown `json:"confidenceBreakdown"`
	OverallConfidence float64             `json:"overallConfidence"`
	Candidate         Candidate           `json:"candidate"`
	ProcessingTimeMs  int64               `json:"processingTimeMs"`
}

// FailedRegion is a region that did not produce a CardReport.
type FailedRegion struct {
	Region           Region           `json:"region"`
	Stage            Stage            `json:"stage"`
	Partial          *ExtractedRecord `json:"partial,omitempty"`
	Code             errors.ErrorCode `json:"code"`
	Error            string           `json:"error"`
	ProcessingTimeMs int64            `json:"processingTimeMs"`
	// Filled in by the worker for manual review
	ArtifactURL string   `json:"artifactUrl,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// BatchReport is the outcome of one scan.
type BatchReport struct {
	BatchID            string         `json:"batchId"`
	Mode               string         `json:"mode"`
	Layout             string         `json:"layout"`
	SegmentationSource string         `json:"segmentationSource"`
	TotalRegions       int            `json:"totalRegions"`
	Successful         []CardReport   `json:"successful"`
	Failed             []FailedRegion `json:"failed"`
	AggregateTimingMs  int64          `json:"aggregateTimingMs"`
}

// Candidates returns the inventory candidates of every successful card.
func (b *BatchReport) Candidates() []Candidate {
	out := make([]Candidate, 0, len(b.Successful))
	for _, c := range b.Successful {
		out = append(out, c.Candidate)
	}
	return out
}

// AverageConfidence is the mean overall confidence of successful cards.
func (b *BatchReport) AverageConfidence() float64 {
	if len(b.Successful) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range b.Successful {
		sum += c.OverallConfidence
	}
	return sum / float64(len(b.Successful))
}
