/**
 * Scan Service for the FloorScan Worker
 *
 * Turns a queued scan job into a persisted batch report:
 * - decodes the uploaded screenshot
 * - runs the per-card or whole-floor pipeline
 * - uploads crops of unresolved regions for manual review
 * - attaches nearest catalog names to unmatched regions
 * - stores the report and its card rows
 */

package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adverant/nexus/floorscan-worker/internal/catalog"
	"github.com/adverant/nexus/floorscan-worker/internal/errors"
	"github.com/adverant/nexus/floorscan-worker/internal/logging"
	"github.com/adverant/nexus/floorscan-worker/internal/storage"
)

// ScanProcessorInterface is what the queue consumers drive.
type ScanProcessorInterface interface {
	ProcessScan(ctx context.Context, req *ScanRequest) (*ScanResult, error)
	UpdateJobStatus(ctx context.Context, jobID string, status string, progress int, metadata map[string]interface{}) error
}

// ReportStore persists job state and reports.
type ReportStore interface {
	UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error
	StoreScanReport(ctx context.Context, rec *storage.ScanRecord) (string, error)
}

// NameSuggester proposes catalog names for a name that matched nothing.
type NameSuggester interface {
	SuggestNames(ctx context.Context, name string, limit int) ([]string, error)
}

// CropUploader stores crops of regions that need manual review.
type CropUploader interface {
	UploadRegionCrop(ctx context.Context, jobID string, regionIndex int, crop []byte, metadata map[string]interface{}) (string, error)
}

// ServiceConfig holds scan service dependencies. Suggester and Uploader are
// optional.
type ServiceConfig struct {
	Pipeline  *Pipeline
	Catalog   []catalog.Entry
	Store     ReportStore
	Suggester NameSuggester
	Uploader  CropUploader
	// Default mode when a job does not name one
	Mode string
}

// ScanRequest represents one queued scan
type ScanRequest struct {
	JobID     string
	AccountID string
	Image     []byte
	MimeType  string
	Width     int
	Height    int
	Mode      string
	Metadata  map[string]interface{}
}

// ScanResult summarises a finished scan
type ScanResult struct {
	BatchID           string      `json:"batchId"`
	ReportID          string      `json:"reportId,omitempty"`
	Mode              string      `json:"mode"`
	TotalRegions      int         `json:"totalRegions"`
	Successful        int         `json:"successful"`
	Failed            int         `json:"failed"`
	AverageConfidence float64     `json:"averageConfidence"`
	Candidates        []Candidate `json:"candidates"`
	ProcessingTimeMs  int64       `json:"processingTimeMs"`
}

// ScanService handles scan jobs
type ScanService struct {
	config *ServiceConfig
	logger *logging.Logger
}

// NewScanService creates a new scan service
func NewScanService(cfg *ServiceConfig) (*ScanService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("report store is required")
	}
	if len(cfg.Catalog) == 0 {
		return nil, fmt.Errorf("catalog is empty")
	}
	if cfg.Mode == "" {
		cfg.Mode = ModePerCard
	}
	return &ScanService{config: cfg, logger: logging.NewLogger("ScanService")}, nil
}

// ProcessScan runs one job end to end. Only a batch-fatal pipeline error or
// a storage failure fails the job; unresolved regions are part of the report.
func (s *ScanService) ProcessScan(ctx context.Context, req *ScanRequest) (*ScanResult, error) {
	start := time.Now()
	log := s.logger.With("jobId", req.JobID)

	if req.JobID == "" {
		return nil, errors.NewInvalidJobError("", "job ID is required")
	}
	if len(req.Image) == 0 {
		return nil, errors.NewInvalidJobError(req.JobID, "job carries no image")
	}

	mime := req.MimeType
	if detected := DetectImageMimeType(req.Image); detected != "" && (mime == "" || mime == "application/octet-stream") {
		mime = detected
	}

	img := SourceImage{Data: req.Image, Width: req.Width, Height: req.Height, MimeType: mime}
	mode := req.Mode
	if mode == "" {
		mode = s.config.Mode
	}

	log.Info("Starting scan", "mode", mode, "bytes", len(req.Image), "mimeType", mime)

	var (
		report *BatchReport
		err    error
	)
	switch mode {
	case ModeWholeFloor:
		report, err = s.config.Pipeline.ScanWholeFloor(ctx, img, s.config.Catalog)
	case ModePerCard:
		report, err = s.config.Pipeline.Scan(ctx, img, s.config.Catalog)
	default:
		return nil, errors.NewInvalidJobError(req.JobID, fmt.Sprintf("unknown scan mode %q", mode))
	}
	if err != nil {
		if pe, ok := errors.As(err); ok {
			return nil, pe.WithJob(req.JobID)
		}
		return nil, err
	}

	s.annotateFailures(ctx, req.JobID, img, report)

	doc, err := json.Marshal(report)
	if err != nil {
		return nil, errors.NewStorageFailedError(req.JobID, err)
	}
	reportID, err := s.config.Store.StoreScanReport(ctx, &storage.ScanRecord{
		JobID:      req.JobID,
		AccountID:  req.AccountID,
		BatchID:    report.BatchID,
		Mode:       report.Mode,
		Successful: len(report.Successful),
		Failed:     len(report.Failed),
		Report:     doc,
		Cards:      cardRows(report),
	})
	if err != nil {
		return nil, errors.NewStorageFailedError(req.JobID, err)
	}

	result := &ScanResult{
		BatchID:           report.BatchID,
		ReportID:          reportID,
		Mode:              report.Mode,
		TotalRegions:      report.TotalRegions,
		Successful:        len(report.Successful),
		Failed:            len(report.Failed),
		AverageConfidence: report.AverageConfidence(),
		Candidates:        report.Candidates(),
		ProcessingTimeMs:  time.Since(start).Milliseconds(),
	}

	log.Info("Scan stored",
		"reportId", reportID,
		"successful", result.Successful,
		"failed", result.Failed,
		"averageConfidence", result.AverageConfidence,
		"durationMs", result.ProcessingTimeMs)

	return result, nil
}

// annotateFailures uploads crops of failed regions and adds catalog
// suggestions for unmatched names. Both are best effort.
func (s *ScanService) annotateFailures(ctx context.Context, jobID string, img SourceImage, report *BatchReport) {
	for i := range report.Failed {
		f := &report.Failed[i]

		if s.config.Suggester != nil && f.Partial != nil && f.Partial.Name != "" {
			names, err := s.config.Suggester.SuggestNames(ctx, f.Partial.Name, 3)
			if err != nil {
				s.logger.Warn("Catalog suggestion failed", "jobId", jobID, "region", f.Region.Index, "error", err)
			} else {
				f.Suggestions = names
			}
		}

		if s.config.Uploader == nil || f.Region.Box.Empty() {
			continue
		}
		crop, err := CropRegion(img, f.Region.Box)
		if err != nil {
			s.logger.Debug("Could not crop failed region", "jobId", jobID, "region", f.Region.Index, "error", err)
			continue
		}
		url, err := s.config.Uploader.UploadRegionCrop(ctx, jobID, f.Region.Index, crop, map[string]interface{}{
			"code":  string(f.Code),
			"stage": string(f.Stage),
		})
		if err != nil {
			s.logger.Warn("Failed to upload region crop", "jobId", jobID, "region", f.Region.Index, "error", err)
			continue
		}
		f.ArtifactURL = url
	}
}

func cardRows(report *BatchReport) []storage.CardRow {
	rows := make([]storage.CardRow, 0, len(report.Successful))
	for _, c := range report.Successful {
		rows = append(rows, storage.CardRow{
			RegionIndex:    c.Region.Index,
			CatalogID:      c.Candidate.CatalogID,
			Name:           c.Match.Entry.Name,
			Mutation:       c.Candidate.Mutation,
			Traits:         c.Candidate.Traits,
			ClaimedIncome:  c.Verification.ClaimedIncome,
			ExpectedIncome: c.Verification.ExpectedIncome,
			Confidence:     c.OverallConfidence,
			Passed:         c.Verification.Passed,
		})
	}
	return rows
}

// UpdateJobStatus maps the consumer's loose metadata onto a job update.
func (s *ScanService) UpdateJobStatus(ctx context.Context, jobID string, status string, progress int, metadata map[string]interface{}) error {
	update := &storage.JobUpdate{
		JobID:    jobID,
		Status:   status,
		Progress: progress,
		Metadata: metadata,
	}

	if metadata != nil {
		if v, ok := metadata["accountId"].(string); ok {
			update.AccountID = v
		}
		if v, ok := metadata["confidence"].(float64); ok {
			update.Confidence = v
		}
		if v, ok := metadata["processingTime"].(int64); ok {
			update.ProcessingTimeMs = v
		}
		if v, ok := metadata["batchId"].(string); ok {
			update.BatchID = v
		}
		if v, ok := metadata["error_code"].(string); ok {
			update.ErrorCode = v
		}
		if v, ok := metadata["error"].(string); ok {
			if update.ErrorCode == "" {
				update.ErrorCode = "PROCESSING_ERROR"
			}
			update.ErrorMessage = v
		} else if v, ok := metadata["message"].(string); ok && update.ErrorCode != "" {
			update.ErrorMessage = v
		}
	}

	return s.config.Store.UpdateJobStatus(ctx, update)
}
