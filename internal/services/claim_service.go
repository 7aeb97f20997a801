package services

import (
	"context"
	"fmt"
	"log/slog"

	"claims/internal/amqp"
	"claims/internal/core"
	"claims/internal/ledger"
	"claims/internal/storage"
)

// ClaimService orchestrates claim operations across the in-memory ledger,
// SQLite and AMQP. The ledger is authoritative: every mutation commits
// there first and is then written through to SQLite. A write-through
// failure is logged, not returned, so a storage hiccup cannot leave the
// caller believing a committed operation failed.
type ClaimService struct {
	ledger     *ledger.Ledger
	storage    *storage.SQLiteRepository
	amqpClient *amqp.Client
}

func NewClaimService(l *ledger.Ledger, storage *storage.SQLiteRepository, amqpClient *amqp.Client) *ClaimService {
	return &ClaimService{
		ledger:     l,
		storage:    storage,
		amqpClient: amqpClient,
	}
}

// RestoreLedger rebuilds the ledger from SQLite at startup. A fresh
// database yields an empty ledger administered by the configured admin,
// which is persisted immediately so later boots agree on it.
func RestoreLedger(ctx context.Context, repo *storage.SQLiteRepository, admin core.Principal) (*ledger.Ledger, error) {
	snap, err := repo.LoadSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger snapshot: %w", err)
	}

	if snap.Admin == "" {
		if err := repo.SaveAdmin(ctx, admin); err != nil {
			return nil, fmt.Errorf("save initial admin: %w", err)
		}
		slog.InfoContext(ctx, "Initialized empty ledger", "admin", admin)
		return ledger.New(admin), nil
	}

	slog.InfoContext(ctx, "Restored ledger from database",
		"admin", snap.Admin,
		"expenses", len(snap.Expenses),
		"categories", len(snap.Categories))
	return ledger.FromSnapshot(snap), nil
}

// CreateExpense records a pending expense for caller and writes it through
// to SQLite.
func (s *ClaimService) CreateExpense(ctx context.Context, amount uint64, description string, categoryID, date uint64, caller core.Principal) (uint64, error) {
	if err := caller.Validate(); err != nil {
		return 0, err
	}
	if err := core.ValidateDescription(description); err != nil {
		return 0, err
	}

	id, err := s.ledger.CreateExpense(amount, description, categoryID, date, caller)
	if err != nil {
		return 0, err
	}

	e, _ := s.ledger.Expense(id)
	if err := s.persistExpense(ctx, e); err != nil {
		slog.ErrorContext(ctx, "Failed to persist expense",
			"id", id, "error", err)
	}

	return id, nil
}

// ApproveExpense moves a pending expense to approved and publishes an
// export message for the worker. The returned flag reports whether the
// approval pushed the category past its budget; it is advisory and never
// blocks the approval.
func (s *ClaimService) ApproveExpense(ctx context.Context, expenseID uint64, notes string, caller core.Principal) (overBudget bool, err error) {
	if err := caller.Validate(); err != nil {
		return false, err
	}
	if err := core.ValidateNotes(notes); err != nil {
		return false, err
	}

	e, ok := s.ledger.Expense(expenseID)
	if ok {
		overBudget = s.ledger.WouldExceedBudget(e.CategoryID, e.Amount)
	}

	if err := s.ledger.ApproveExpense(expenseID, notes, caller); err != nil {
		return false, err
	}

	resolved, _ := s.ledger.Expense(expenseID)
	if err := s.persistResolution(ctx, resolved); err != nil {
		slog.ErrorContext(ctx, "Failed to persist approval",
			"id", expenseID, "error", err)
	}

	// Publish async export message (non-blocking)
	if err := s.publishExportMessage(ctx, expenseID); err != nil {
		slog.ErrorContext(ctx, "Failed to publish export message",
			"id", expenseID, "error", err)
		// Don't fail the request, the startup scan will pick it up
	}

	return overBudget, nil
}

// RejectExpense moves a pending expense to rejected. Nothing is exported
// and the category accumulator is untouched.
func (s *ClaimService) RejectExpense(ctx context.Context, expenseID uint64, notes string, caller core.Principal) error {
	if err := caller.Validate(); err != nil {
		return err
	}
	if err := core.ValidateNotes(notes); err != nil {
		return err
	}

	if err := s.ledger.RejectExpense(expenseID, notes, caller); err != nil {
		return err
	}

	resolved, _ := s.ledger.Expense(expenseID)
	if err := s.persistResolution(ctx, resolved); err != nil {
		slog.ErrorContext(ctx, "Failed to persist rejection",
			"id", expenseID, "error", err)
	}

	return nil
}

// CreateCategory stores a new budget category owned by caller.
func (s *ClaimService) CreateCategory(ctx context.Context, name string, budget uint64, description string, caller core.Principal) (uint64, error) {
	if err := caller.Validate(); err != nil {
		return 0, err
	}
	if err := core.ValidateCategoryName(name); err != nil {
		return 0, err
	}
	if err := core.ValidateDescription(description); err != nil {
		return 0, err
	}

	id := s.ledger.CreateCategory(name, budget, description, caller)

	c, _ := s.ledger.Category(id)
	if s.storage != nil {
		if err := s.storage.CreateCategory(ctx, c, id+1); err != nil {
			slog.ErrorContext(ctx, "Failed to persist category",
				"id", id, "error", err)
		}
	}

	return id, nil
}

// UpdateCategoryBudget replaces a category's budget ceiling.
func (s *ClaimService) UpdateCategoryBudget(ctx context.Context, categoryID, newBudget uint64, caller core.Principal) error {
	if err := caller.Validate(); err != nil {
		return err
	}

	if err := s.ledger.UpdateCategoryBudget(categoryID, newBudget, caller); err != nil {
		return err
	}

	if s.storage != nil {
		if err := s.storage.UpdateCategoryBudget(ctx, categoryID, newBudget); err != nil {
			slog.ErrorContext(ctx, "Failed to persist budget update",
				"category_id", categoryID, "error", err)
		}
	}

	return nil
}

// SetAdmin hands the admin role to newAdmin.
func (s *ClaimService) SetAdmin(ctx context.Context, newAdmin, caller core.Principal) error {
	if err := newAdmin.Validate(); err != nil {
		return err
	}
	if err := caller.Validate(); err != nil {
		return err
	}

	if err := s.ledger.SetAdmin(newAdmin, caller); err != nil {
		return err
	}

	if s.storage != nil {
		if err := s.storage.SaveAdmin(ctx, newAdmin); err != nil {
			slog.ErrorContext(ctx, "Failed to persist admin change",
				"admin", newAdmin, "error", err)
		}
	}

	return nil
}

// GetExpense returns the expense record for id.
func (s *ClaimService) GetExpense(id uint64) (core.Expense, error) {
	e, ok := s.ledger.Expense(id)
	if !ok {
		return core.Expense{}, core.ErrExpenseNotFound
	}
	return e, nil
}

// GetCategory returns the category record for id together with its
// accumulated approved spend.
func (s *ClaimService) GetCategory(id uint64) (core.Category, uint64, error) {
	c, ok := s.ledger.Category(id)
	if !ok {
		return core.Category{}, 0, core.ErrCategoryNotFound
	}
	return c, s.ledger.CategorySpent(id), nil
}

// UserExpenses returns the caller's expense index, oldest first.
func (s *ClaimService) UserExpenses(user core.Principal) []uint64 {
	return s.ledger.UserExpenses(user)
}

// Admin returns the current admin principal.
func (s *ClaimService) Admin() core.Principal {
	return s.ledger.Admin()
}

func (s *ClaimService) persistExpense(ctx context.Context, e core.Expense) error {
	if s.storage == nil {
		return nil
	}
	return s.storage.CreateExpense(ctx, e, e.ID+1, s.ledger.UserExpenses(e.Creator))
}

func (s *ClaimService) persistResolution(ctx context.Context, e core.Expense) error {
	if s.storage == nil {
		return nil
	}
	return s.storage.ResolveExpense(ctx, e, s.ledger.CategorySpent(e.CategoryID))
}

func (s *ClaimService) publishExportMessage(ctx context.Context, id uint64) error {
	if s.amqpClient == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping export message")
		return nil
	}

	return s.amqpClient.PublishExpenseExport(ctx, id)
}

// Close closes both storage and AMQP connections
func (s *ClaimService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close claim service: %v", errs)
	}

	return nil
}
