package worker

import (
	"context"
	"fmt"
	"log/slog"

	"claims/internal/amqp"
	"claims/internal/core"
	"claims/internal/log"
	"claims/internal/sheets"
	"claims/internal/storage"
)

// ExportWorker moves approved expenses from SQLite into the report sheet.
// Messages from AMQP drive the normal path; the pending-export scan is the
// backup for lost messages and worker downtime.
type ExportWorker struct {
	storage   *storage.SQLiteRepository
	report    sheets.ReportWriter
	batchSize int
}

func NewExportWorker(storage *storage.SQLiteRepository, report sheets.ReportWriter, batchSize int) *ExportWorker {
	return &ExportWorker{
		storage:   storage,
		report:    report,
		batchSize: batchSize,
	}
}

// HandleExportMessage processes a single expense export message from AMQP
func (w *ExportWorker) HandleExportMessage(ctx context.Context, msg *amqp.ExpenseExportMessage) error {
	slog.InfoContext(ctx, "Processing export message", "id", msg.ID)

	expense, err := w.storage.GetExpense(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("get expense from storage: %w", err)
	}

	if expense.Status != core.StatusApproved {
		// A stale or duplicated message; nothing to export.
		slog.WarnContext(ctx, "Skipping export of non-approved expense",
			"id", msg.ID, "status", expense.Status)
		return nil
	}

	if err := w.exportExpense(ctx, expense); err != nil {
		return fmt.Errorf("export expense: %w", err)
	}

	return nil
}

// ProcessPendingExports exports any approved expenses that haven't reached
// the sheet yet. This is a backup mechanism in case AMQP messages are lost.
func (w *ExportWorker) ProcessPendingExports(ctx context.Context) error {
	pending, err := w.storage.GetPendingExportExpenses(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending exports: %w", err)
	}

	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending exports", "count", len(pending))

	for _, expense := range pending {
		if err := w.exportExpense(ctx, expense); err != nil {
			slog.ErrorContext(ctx, "Failed to export expense", "id", expense.ID, "error", err)
			continue
		}
	}

	return nil
}

// StartupExportCheck drains the pending-export backlog at worker startup,
// recovering from missed AMQP messages or worker downtime.
func (w *ExportWorker) StartupExportCheck(ctx context.Context) error {
	// Larger batch for the startup pass
	pending, err := w.storage.GetPendingExportExpenses(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending exports for startup check: %w", err)
	}

	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending exports found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending exports on startup, processing...",
		"count", len(pending))

	successCount := 0
	errorCount := 0

	for _, expense := range pending {
		if err := w.exportExpense(ctx, expense); err != nil {
			slog.ErrorContext(ctx, "Failed to export expense during startup",
				"id", expense.ID, "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Startup export completed",
		"total", len(pending),
		"exported", successCount,
		"errors", errorCount)

	return nil
}

func (w *ExportWorker) exportExpense(ctx context.Context, expense core.Expense) error {
	categoryName := ""
	if category, err := w.storage.GetCategory(ctx, expense.CategoryID); err == nil {
		categoryName = category.Name
	} else {
		slog.WarnContext(ctx, "Category lookup failed, exporting without name",
			"id", expense.ID, "category_id", expense.CategoryID, "error", err)
	}

	ref, err := w.report.Append(ctx, expense, categoryName)
	if err != nil {
		if markErr := w.storage.MarkExportError(ctx, expense.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark export error", "id", expense.ID, "error", markErr)
		}
		return fmt.Errorf("append to report: %w", err)
	}

	if err := w.storage.MarkExported(ctx, expense.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark as exported", "id", expense.ID, "error", err)
		// Don't return error here - the export actually worked
	}

	slog.InfoContext(ctx, "Successfully exported expense",
		"id", expense.ID,
		log.FieldSheetsRef, ref,
		log.FieldAmount, expense.Amount)

	return nil
}
