package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"findash/internal/amqp"
	"findash/internal/services"
	"findash/internal/storage"
)

// Importer runs one staging import.
type Importer interface {
	Run(ctx context.Context, req services.ImportRequest) (storage.Import, error)
}

// ImportWorker triggers imports from a cron schedule and from queue
// messages.
type ImportWorker struct {
	importer Importer
	schedule string
	cron     *cron.Cron
}

// NewImportWorker builds a worker. An empty schedule disables periodic runs.
func NewImportWorker(importer Importer, schedule string) *ImportWorker {
	return &ImportWorker{importer: importer, schedule: schedule}
}

// HandleImportMessage processes a queued import request.
func (w *ImportWorker) HandleImportMessage(ctx context.Context, msg *amqp.ImportMessage) error {
	slog.InfoContext(ctx, "Processing import message",
		"import_id", msg.ID,
		"sources", msg.Sources,
		"requested_at", msg.RequestedAt)

	_, err := w.importer.Run(ctx, services.ImportRequest{
		ID:          msg.ID,
		Trigger:     services.TriggerQueue,
		Sources:     msg.Sources,
		RequestedAt: msg.RequestedAt,
	})
	if err != nil {
		return fmt.Errorf("import %s: %w", msg.ID, err)
	}
	return nil
}

// RunOnce performs a full import with a fresh id.
func (w *ImportWorker) RunOnce(ctx context.Context, trigger string) error {
	id := uuid.NewString()
	_, err := w.importer.Run(ctx, services.ImportRequest{ID: id, Trigger: trigger, RequestedAt: time.Now().UTC()})
	if err != nil {
		slog.ErrorContext(ctx, "Import failed", "import_id", id, "trigger", trigger, "error", err)
		return err
	}
	return nil
}

// Start registers the schedule and starts the cron runner. Scheduled runs
// use ctx, so cancelling it aborts an in-flight import.
func (w *ImportWorker) Start(ctx context.Context) error {
	if w.schedule == "" {
		slog.InfoContext(ctx, "Import schedule disabled")
		return nil
	}
	w.cron = cron.New()
	_, err := w.cron.AddFunc(w.schedule, func() {
		_ = w.RunOnce(ctx, services.TriggerSchedule)
	})
	if err != nil {
		return fmt.Errorf("parse import schedule %q: %w", w.schedule, err)
	}
	w.cron.Start()
	slog.InfoContext(ctx, "Import schedule started", "schedule", w.schedule)
	return nil
}

// Stop halts the scheduler and waits for a running job up to ctx.
func (w *ImportWorker) Stop(ctx context.Context) error {
	if w.cron == nil {
		return nil
	}
	done := w.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
