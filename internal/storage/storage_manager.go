/**
 * Storage Manager for the FloorScan Worker
 *
 * Coordinates PostgreSQL (jobs, reports, catalog) and the optional Qdrant
 * catalog index. A missing or unreachable Qdrant only disables suggestions.
 */

package storage

import (
	"context"
	"fmt"
	"regexp"

	"github.com/adverant/nexus/floorscan-worker/internal/catalog"
	"github.com/adverant/nexus/floorscan-worker/internal/logging"
)

var (
	nullEscapeRe    = regexp.MustCompile(`\\u0000`)
	controlEscapeRe = regexp.MustCompile(`\\u00[01][0-9a-fA-F]`)
)

// StorageManager coordinates PostgreSQL and Qdrant operations
type StorageManager struct {
	postgres *PostgresClient
	qdrant   *QdrantClient
	logger   *logging.Logger
}

// NewStorageManager connects to PostgreSQL and, when qdrantAddress is set,
// to the catalog index.
func NewStorageManager(postgresURL string, qdrantAddress string, qdrantCollection string) (*StorageManager, error) {
	logger := logging.NewLogger("Storage")

	postgres, err := NewPostgresClient(postgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL client: %w", err)
	}

	sm := &StorageManager{postgres: postgres, logger: logger}

	if qdrantAddress == "" {
		logger.Warn("QDRANT_URL not configured, catalog suggestions disabled")
		return sm, nil
	}
	qdrant, err := NewQdrantClient(qdrantAddress, qdrantCollection)
	if err != nil {
		logger.Warn("Qdrant unavailable, catalog suggestions disabled", "address", qdrantAddress, "error", err)
		return sm, nil
	}
	sm.qdrant = qdrant
	return sm, nil
}

// LoadCatalog reads the catalog table.
func (sm *StorageManager) LoadCatalog(ctx context.Context) ([]catalog.Entry, error) {
	return sm.postgres.LoadCatalog(ctx)
}

// IndexCatalog pushes the catalog names into Qdrant. It is a no-op without
// an index.
func (sm *StorageManager) IndexCatalog(ctx context.Context, entries []catalog.Entry) error {
	if sm.qdrant == nil {
		return nil
	}
	n, err := sm.qdrant.IndexCatalog(ctx, entries)
	if err != nil {
		return err
	}
	sm.logger.Info("Catalog indexed", "points", n, "entries", len(entries))
	return nil
}

// SuggestNames returns the catalog names nearest to name, best first.
func (sm *StorageManager) SuggestNames(ctx context.Context, name string, limit int) ([]string, error) {
	if sm.qdrant == nil {
		return nil, nil
	}
	suggestions, err := sm.qdrant.Suggest(ctx, name, limit)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(suggestions))
	for _, s := range suggestions {
		if s.Name != "" {
			names = append(names, s.Name)
		}
	}
	return names, nil
}

// StoreScanReport persists a report after stripping escapes PostgreSQL JSONB
// rejects.
func (sm *StorageManager) StoreScanReport(ctx context.Context, rec *ScanRecord) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("scan record is required")
	}
	rec.Report = sanitizeJSONForPostgres(rec.Report)
	return sm.postgres.StoreScanReport(ctx, rec)
}

// GetScanReport returns the stored report document of a job.
func (sm *StorageManager) GetScanReport(ctx context.Context, jobID string) ([]byte, error) {
	return sm.postgres.GetScanReport(ctx, jobID)
}

// UpdateJobStatus updates job status in PostgreSQL
func (sm *StorageManager) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	return sm.postgres.UpdateJobStatus(ctx, update)
}

// GetStats returns statistics from both systems
func (sm *StorageManager) GetStats(ctx context.Context) (map[string]interface{}, error) {
	pgStats := sm.postgres.GetStats()
	stats := map[string]interface{}{
		"postgres": map[string]interface{}{
			"max_open_connections": pgStats.MaxOpenConnections,
			"open_connections":     pgStats.OpenConnections,
			"in_use":               pgStats.InUse,
			"idle":                 pgStats.Idle,
			"wait_count":           pgStats.WaitCount,
			"wait_duration":        pgStats.WaitDuration.String(),
		},
	}

	if sm.qdrant != nil {
		qdrantStats, err := sm.qdrant.GetCollectionInfo(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get Qdrant stats: %w", err)
		}
		stats["qdrant"] = qdrantStats
	}
	return stats, nil
}

// Close closes all connections
func (sm *StorageManager) Close() error {
	var pgErr, qdErr error

	if sm.postgres != nil {
		pgErr = sm.postgres.Close()
	}
	if sm.qdrant != nil {
		qdErr = sm.qdrant.Close()
	}

	if pgErr != nil {
		return fmt.Errorf("failed to close PostgreSQL: %w", pgErr)
	}
	if qdErr != nil {
		return fmt.Errorf("failed to close Qdrant: %w", qdErr)
	}
	return nil
}

// sanitizeJSONForPostgres drops \u0000 escapes and blanks the other control
// character escapes, which JSONB refuses.
func sanitizeJSONForPostgres(jsonBytes []byte) []byte {
	result := nullEscapeRe.ReplaceAll(jsonBytes, []byte{})
	return controlEscapeRe.ReplaceAll(result, []byte(" "))
}
