package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/nexopos/sucursalsync/internal/inconsistencies"
	"github.com/nexopos/sucursalsync/internal/odoo"
)

// DriftRecorder stores scan outcomes for later review.
type DriftRecorder interface {
	RecordDriftScan(ctx context.Context, report *inconsistencies.Report) error
}

// DriftScanDeps carries the dependencies of the periodic drift scan. History
// may be nil; findings are then only logged.
type DriftScanDeps struct {
	Logger   *slog.Logger
	Registry *odoo.Registry
	Detector *inconsistencies.Service
	History  DriftRecorder
}

// NewDriftScanHandler builds the handler for TaskTypeDriftScan. A scan with
// either catalog disconnected is skipped without retry; the next cron tick
// picks it up once an operator reconnects.
func NewDriftScanHandler(deps DriftScanDeps) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload DriftScanPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}

		principal, err := deps.Registry.Principal()
		if err != nil {
			deps.Logger.Warn("drift scan skipped", slog.Any("error", err))
			return asynq.SkipRetry
		}
		branch, err := deps.Registry.Branch()
		if err != nil {
			deps.Logger.Warn("drift scan skipped", slog.Any("error", err))
			return asynq.SkipRetry
		}

		report, err := deps.Detector.Detect(ctx, principal, branch)
		if err != nil {
			return err
		}
		deps.Logger.Info("scheduled drift scan finished",
			slog.Int("principal_total", report.PrincipalTotal),
			slog.Int("branch_total", report.BranchTotal),
			slog.Int("inconsistent", len(report.Inconsistencies)),
		)

		if payload.RecordHistory && deps.History != nil {
			if err := deps.History.RecordDriftScan(ctx, report); err != nil {
				deps.Logger.Warn("record drift scan", slog.Any("error", err))
			}
		}
		return nil
	}
}
