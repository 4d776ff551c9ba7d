package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/kueskilink/kueskilink/internal/observability"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeLinkNotify is the task type for delivering a payment link.
	TaskTypeLinkNotify = "link:notify"
	// TaskTypeReconcileSweep is the periodic lapsed-link reconciliation.
	TaskTypeReconcileSweep = "links:reconcile_sweep"
)

// LinkNotifyPayload describes a payment link delivery.
type LinkNotifyPayload struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	PaymentLink   string    `json:"payment_link"`
}

// NewLinkNotifyTask constructs an Asynq task.
func NewLinkNotifyTask(payload LinkNotifyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeLinkNotify, data), nil
}

// HandleLinkNotifyTask processes TaskTypeLinkNotify tasks.
func HandleLinkNotifyTask(ctx context.Context, t *asynq.Task) error {
	var payload LinkNotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	// Placeholder: WhatsApp/mail delivery integrates here.
	fmt.Printf("[jobs] deliver payment link %s for %s\n", payload.PaymentLink, payload.TransactionID)
	return nil
}

// NewReconcileSweepTask constructs the sweep task. The payload is empty;
// the sweep always scans everything lapsed.
func NewReconcileSweepTask() *asynq.Task {
	return asynq.NewTask(TaskTypeReconcileSweep, nil)
}

// Reconciler is the slice of the links service the sweep needs.
type Reconciler interface {
	ReconcileLapsed(ctx context.Context, limit int) (int, error)
}

// sweepBatchLimit bounds one sweep run; the cron cadence covers the rest.
const sweepBatchLimit = 500

// NewReconcileSweepHandler builds the handler for TaskTypeReconcileSweep.
func NewReconcileSweepHandler(reconciler Reconciler, metrics *observability.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		updated, err := reconciler.ReconcileLapsed(ctx, sweepBatchLimit)
		if err != nil {
			logger.Error("reconcile sweep", slog.Any("error", err))
			return err
		}
		metrics.ObserveReconciled(updated)
		if updated > 0 {
			logger.Info("reconcile sweep", slog.Int("updated", updated))
		}
		return nil
	}
}
