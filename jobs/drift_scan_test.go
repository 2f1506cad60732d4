package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/nexopos/sucursalsync/internal/inconsistencies"
	"github.com/nexopos/sucursalsync/internal/odoo"
)

func TestDriftScanSkipsMalformedPayload(t *testing.T) {
	handler := NewDriftScanHandler(DriftScanDeps{
		Logger:   slog.Default(),
		Registry: odoo.NewRegistry(nil),
		Detector: inconsistencies.NewService(nil),
	})

	task := asynq.NewTask(TaskTypeDriftScan, []byte("{not json"))
	err := handler(context.Background(), task)
	require.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestDriftScanSkipsWhileDisconnected(t *testing.T) {
	handler := NewDriftScanHandler(DriftScanDeps{
		Logger:   slog.Default(),
		Registry: odoo.NewRegistry(nil),
		Detector: inconsistencies.NewService(nil),
	})

	payload, err := json.Marshal(DriftScanPayload{RecordHistory: true})
	require.NoError(t, err)

	task := asynq.NewTask(TaskTypeDriftScan, payload)
	err = handler(context.Background(), task)
	require.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestNewDriftScanTaskCarriesPayload(t *testing.T) {
	task, err := NewDriftScanTask(DriftScanPayload{RecordHistory: true})
	require.NoError(t, err)
	require.Equal(t, TaskTypeDriftScan, task.Type())

	var decoded DriftScanPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	require.True(t, decoded.RecordHistory)
}
