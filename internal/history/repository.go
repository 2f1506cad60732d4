// Package history keeps an audit trail of sync batches and confirmed
// transfers for later review.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexopos/sucursalsync/internal/inconsistencies"
	"github.com/nexopos/sucursalsync/internal/products"
	"github.com/nexopos/sucursalsync/internal/transfers"
)

// SyncRun is one recorded batch.
type SyncRun struct {
	ID        int64             `json:"id"`
	Catalog   string            `json:"catalog"`
	Total     int               `json:"total"`
	Synced    int               `json:"synced"`
	Failed    int               `json:"failed"`
	Results   []products.Result `json:"results"`
	CreatedAt time.Time         `json:"created_at"`
}

// TransferRun is one recorded transfer confirmation.
type TransferRun struct {
	ID        int64             `json:"id"`
	Code      string            `json:"code"`
	Success   bool              `json:"success"`
	Total     int               `json:"total"`
	Processed int               `json:"processed"`
	Skipped   int               `json:"skipped"`
	Outcome   transfers.Outcome `json:"outcome"`
	CreatedAt time.Time         `json:"created_at"`
}

// DriftRun is one recorded inconsistency scan.
type DriftRun struct {
	ID             int64                           `json:"id"`
	PrincipalTotal int                             `json:"principal_total"`
	BranchTotal    int                             `json:"branch_total"`
	Findings       []inconsistencies.Inconsistency `json:"findings"`
	CreatedAt      time.Time                       `json:"created_at"`
}

// Repository persists runs in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RecordSync stores a finished batch.
func (r *Repository) RecordSync(ctx context.Context, catalog string, results []products.Result) error {
	synced := 0
	for _, res := range results {
		if res.Success {
			synced++
		}
	}
	payload, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("history: encode sync results: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO sync_history (catalog, total, synced, failed, results, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
	`, catalog, len(results), synced, len(results)-synced, payload)
	return err
}

// RecordTransfer stores a confirmed transfer outcome.
func (r *Repository) RecordTransfer(ctx context.Context, out transfers.Outcome) error {
	payload, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("history: encode transfer outcome: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO transfer_history (code, success, total, processed, skipped, outcome, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
	`, out.Code, out.Success, out.Total, out.ProcessedCount, out.SkippedCount, payload)
	return err
}

// RecordDriftScan stores the outcome of a scheduled inconsistency scan.
func (r *Repository) RecordDriftScan(ctx context.Context, report *inconsistencies.Report) error {
	payload, err := json.Marshal(report.Inconsistencies)
	if err != nil {
		return fmt.Errorf("history: encode drift findings: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO drift_history (principal_total, branch_total, findings, created_at)
		VALUES ($1, $2, $3, now())
	`, report.PrincipalTotal, report.BranchTotal, payload)
	return err
}

// ListSyncRuns returns recent batches, newest first.
func (r *Repository) ListSyncRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, catalog, total, synced, failed, results, created_at
		FROM sync_history
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []SyncRun
	for rows.Next() {
		var (
			run     SyncRun
			payload []byte
		)
		if err := rows.Scan(&run.ID, &run.Catalog, &run.Total, &run.Synced, &run.Failed, &payload, &run.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &run.Results); err != nil {
			return nil, fmt.Errorf("history: decode sync results: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListDriftRuns returns recent scheduled scans, newest first.
func (r *Repository) ListDriftRuns(ctx context.Context, limit int) ([]DriftRun, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, principal_total, branch_total, findings, created_at
		FROM drift_history
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []DriftRun
	for rows.Next() {
		var (
			run     DriftRun
			payload []byte
		)
		if err := rows.Scan(&run.ID, &run.PrincipalTotal, &run.BranchTotal, &payload, &run.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &run.Findings); err != nil {
			return nil, fmt.Errorf("history: decode drift findings: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListTransferRuns returns recent transfer confirmations, newest first.
func (r *Repository) ListTransferRuns(ctx context.Context, limit int) ([]TransferRun, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, code, success, total, processed, skipped, outcome, created_at
		FROM transfer_history
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []TransferRun
	for rows.Next() {
		var (
			run     TransferRun
			payload []byte
		)
		if err := rows.Scan(&run.ID, &run.Code, &run.Success, &run.Total, &run.Processed, &run.Skipped, &payload, &run.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &run.Outcome); err != nil {
			return nil, fmt.Errorf("history: decode transfer outcome: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
