// Package audit provides PDR (Process Decision Record) writing for planwise.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/fentz26/planwise/internal/models"
)

// Actions recorded by the scheduler and the control plane.
const (
	ActionScheduleRun  = "schedule.run"
	ActionReschedule   = "schedule.reschedule"
	ActionWeights      = "schedule.weights"
	ActionTaskCreate   = "task.create"
	ActionTaskUpdate   = "task.update"
	ActionTaskComplete = "task.complete"
	ActionTaskDelete   = "task.delete"
)

// Writer persists decision records.
type Writer interface {
	WritePDR(ctx context.Context, entry models.PDREntry) (*models.PDREntry, error)
}

// PDRWriter writes Process Decision Records for audit trails.
type PDRWriter struct {
	store Writer
}

// NewPDRWriter creates a new PDR writer.
func NewPDRWriter(s Writer) *PDRWriter {
	return &PDRWriter{store: s}
}

// Record writes a PDR entry for a state-mutating action.
func (w *PDRWriter) Record(ctx context.Context, action string, inputs any, outcome, ownerID, taskID, details string) (*models.PDREntry, error) {
	return w.store.WritePDR(ctx, models.PDREntry{
		Action:     action,
		InputsHash: HashInputs(inputs),
		Outcome:    outcome,
		OwnerID:    ownerID,
		TaskID:     taskID,
		Details:    details,
	})
}

// HashInputs creates a SHA256 hash of the inputs for reproducibility.
func HashInputs(inputs any) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
