/**
 * PostgreSQL Client for the FloorScan Worker
 *
 * Scan job state, persisted batch reports and the catalog table.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/adverant/nexus/floorscan-worker/internal/catalog"
)

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// JobUpdate represents a job status update
type JobUpdate struct {
	JobID            string
	AccountID        string
	Status           string
	Progress         int
	Confidence       float64
	ProcessingTimeMs int64
	BatchID          string
	ErrorCode        string
	ErrorMessage     string
	Metadata         map[string]interface{}
}

// CardRow is one successfully scanned card.
type CardRow struct {
	RegionIndex    int
	CatalogID      string
	Name           string
	Mutation       string
	Traits         []string
	ClaimedIncome  int64
	ExpectedIncome int64
	Confidence     float64
	Passed         bool
}

// ScanRecord is a batch report ready to persist. Report holds the full JSON
// document; Cards is the queryable projection of its successful cards.
type ScanRecord struct {
	JobID      string
	AccountID  string
	BatchID    string
	Mode       string
	Successful int
	Failed     int
	Report     json.RawMessage
	Cards      []CardRow
}

// sanitizeConfidence clamps to [0,1] and rounds to 4 decimals for the
// NUMERIC(5,4) columns.
func sanitizeConfidence(confidence float64) float64 {
	if confidence < 0.0 {
		return 0.0
	}
	if confidence > 1.0 {
		return 1.0
	}
	return float64(int(confidence*10000+0.5)) / 10000
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// UpdateJobStatus upserts the job row so the worker can report on jobs the
// API has not created yet.
func (p *PostgresClient) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}
	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	confidence := sanitizeConfidence(update.Confidence)

	metadataJSON, err := json.Marshal(update.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO floorscan.scan_jobs (
			id, account_id, status, progress, confidence, processing_time_ms,
			batch_id, error_code, error_message, metadata, created_at, updated_at
		) VALUES (
			$1::uuid, COALESCE(NULLIF($2, ''), 'anonymous'), $3, $4,
			NULLIF($5::NUMERIC(5,4), 0), NULLIF($6, 0),
			CASE WHEN $7 = '' THEN NULL ELSE $7::uuid END,
			NULLIF($8, ''), NULLIF($9, ''),
			COALESCE($10::jsonb, '{}'::jsonb),
			NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			progress = GREATEST(EXCLUDED.progress, floorscan.scan_jobs.progress),
			confidence = COALESCE(EXCLUDED.confidence, floorscan.scan_jobs.confidence),
			processing_time_ms = COALESCE(EXCLUDED.processing_time_ms, floorscan.scan_jobs.processing_time_ms),
			batch_id = COALESCE(EXCLUDED.batch_id, floorscan.scan_jobs.batch_id),
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			metadata = floorscan.scan_jobs.metadata || EXCLUDED.metadata,
			updated_at = NOW()
		RETURNING id
	`

	var returnedID string
	err = p.db.QueryRowContext(
		ctx,
		query,
		update.JobID,            // $1
		update.AccountID,        // $2
		update.Status,           // $3
		update.Progress,         // $4
		confidence,              // $5
		update.ProcessingTimeMs, // $6
		update.BatchID,          // $7
		update.ErrorCode,        // $8
		update.ErrorMessage,     // $9
		metadataJSON,            // $10
	).Scan(&returnedID)

	if err == sql.ErrNoRows {
		return fmt.Errorf("job not found: %s", update.JobID)
	}
	if err != nil {
		return fmt.Errorf("failed to update job status (job=%s, status=%s, confidence=%.4f): %w",
			update.JobID, update.Status, confidence, err)
	}
	return nil
}

// StoreScanReport writes the report and its card rows in one transaction and
// returns the report row ID.
func (p *PostgresClient) StoreScanReport(ctx context.Context, rec *ScanRecord) (string, error) {
	if rec.JobID == "" {
		return "", fmt.Errorf("job ID is required")
	}
	if len(rec.Report) == 0 {
		return "", fmt.Errorf("report document is required")
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var reportID string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO floorscan.scan_reports (
			job_id, account_id, batch_id, mode, successful, failed, report, created_at
		) VALUES ($1::uuid, COALESCE(NULLIF($2, ''), 'anonymous'), $3::uuid, $4, $5, $6, $7::jsonb, NOW())
		RETURNING id
	`, rec.JobID, rec.AccountID, rec.BatchID, rec.Mode, rec.Successful, rec.Failed, []byte(rec.Report)).Scan(&reportID)
	if err != nil {
		return "", fmt.Errorf("failed to store scan report: %w", err)
	}

	if len(rec.Cards) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO floorscan.scan_cards (
				report_id, region_index, catalog_id, name, mutation, traits,
				claimed_income, expected_income, confidence, passed
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::NUMERIC(5,4), $10)
		`)
		if err != nil {
			return "", fmt.Errorf("failed to prepare card insert: %w", err)
		}
		defer stmt.Close()

		for _, c := range rec.Cards {
			_, err := stmt.ExecContext(ctx,
				reportID,
				c.RegionIndex,
				c.CatalogID,
				c.Name,
				c.Mutation,
				pq.Array(c.Traits),
				c.ClaimedIncome,
				c.ExpectedIncome,
				sanitizeConfidence(c.Confidence),
				c.Passed,
			)
			if err != nil {
				return "", fmt.Errorf("failed to store card %d: %w", c.RegionIndex, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit scan report: %w", err)
	}
	return reportID, nil
}

// GetScanReport returns the stored report document of a job.
func (p *PostgresClient) GetScanReport(ctx context.Context, jobID string) (json.RawMessage, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	var doc []byte
	err := p.db.QueryRowContext(ctx, `
		SELECT report FROM floorscan.scan_reports
		WHERE job_id = $1::uuid
		ORDER BY created_at DESC
		LIMIT 1
	`, jobID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("scan report not found: %s", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan report: %w", err)
	}
	return json.RawMessage(doc), nil
}

// LoadCatalog reads every catalog item.
func (p *PostgresClient) LoadCatalog(ctx context.Context) ([]catalog.Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(rarity, ''), base_income, COALESCE(cost, 0), COALESCE(image_url, '')
		FROM floorscan.catalog_items
		ORDER BY sort_order, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer rows.Close()

	var entries []catalog.Entry
	for rows.Next() {
		var e catalog.Entry
		if err := rows.Scan(&e.ID, &e.Name, &e.Rarity, &e.BaseIncome, &e.Cost, &e.Image); err != nil {
			return nil, fmt.Errorf("failed to scan catalog row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return entries, nil
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}
