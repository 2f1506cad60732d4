package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeDriftScan is the task type for the periodic catalog drift scan.
	TaskTypeDriftScan = "catalog:drift_scan"
)

// DriftScanPayload tunes a drift scan run.
type DriftScanPayload struct {
	// RecordHistory stores the scan outcome in the sync history when set.
	RecordHistory bool `json:"record_history"`
}

// NewDriftScanTask constructs an Asynq task.
func NewDriftScanTask(payload DriftScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeDriftScan, data), nil
}
