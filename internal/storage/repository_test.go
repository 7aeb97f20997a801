package storage

import (
	"context"
	"path/filepath"
	"testing"

	"claims/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "claims_test.db")
	repo, err := NewSQLiteRepository(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestLoadSnapshot_EmptyDatabase(t *testing.T) {
	repo := newTestRepo(t)

	snap, err := repo.LoadSnapshot(context.Background())
	if err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}
	if snap.Admin != "" {
		t.Errorf("empty db admin = %q, want empty", snap.Admin)
	}
	if len(snap.Expenses) != 0 || len(snap.Categories) != 0 {
		t.Errorf("empty db snapshot has records: %d expenses, %d categories",
			len(snap.Expenses), len(snap.Categories))
	}
}

func TestCreateAndLoadRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.SaveAdmin(ctx, "deployer"); err != nil {
		t.Fatalf("SaveAdmin() error = %v", err)
	}

	cat := core.Category{ID: 1, Name: "Travel", Budget: 1000, Description: "trips", CreatedBy: "alice"}
	if err := repo.CreateCategory(ctx, cat, 2); err != nil {
		t.Fatalf("CreateCategory() error = %v", err)
	}

	exp := core.Expense{
		ID: 1, Creator: "alice", Amount: 500, Description: "flight",
		CategoryID: 1, Date: 20240101, Status: core.StatusPending,
	}
	if err := repo.CreateExpense(ctx, exp, 2, []uint64{1}); err != nil {
		t.Fatalf("CreateExpense() error = %v", err)
	}

	snap, err := repo.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}

	if snap.Admin != "deployer" {
		t.Errorf("admin = %q, want deployer", snap.Admin)
	}
	if snap.NextExpenseID != 2 || snap.NextCategoryID != 2 {
		t.Errorf("counters = %d/%d, want 2/2", snap.NextExpenseID, snap.NextCategoryID)
	}
	if got := snap.Categories[1]; got != cat {
		t.Errorf("category = %+v, want %+v", got, cat)
	}
	if got := snap.Expenses[1]; got != exp {
		t.Errorf("expense = %+v, want %+v", got, exp)
	}
	if spent := snap.Spent[1]; spent != 0 {
		t.Errorf("spent = %d, want 0", spent)
	}
	if ids := snap.UserIndex["alice"]; len(ids) != 1 || ids[0] != 1 {
		t.Errorf("user index = %v, want [1]", ids)
	}
}

func TestResolveExpense_ApprovalQueuesExport(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	cat := core.Category{ID: 1, Name: "Travel", Budget: 1000, CreatedBy: "alice"}
	if err := repo.CreateCategory(ctx, cat, 2); err != nil {
		t.Fatalf("CreateCategory() error = %v", err)
	}
	exp := core.Expense{ID: 1, Creator: "alice", Amount: 500, CategoryID: 1, Date: 20240101, Status: core.StatusPending}
	if err := repo.CreateExpense(ctx, exp, 2, []uint64{1}); err != nil {
		t.Fatalf("CreateExpense() error = %v", err)
	}

	exp.Status = core.StatusApproved
	exp.Approver = "admin"
	exp.Notes = "ok"
	if err := repo.ResolveExpense(ctx, exp, 500); err != nil {
		t.Fatalf("ResolveExpense() error = %v", err)
	}

	got, err := repo.GetExpense(ctx, 1)
	if err != nil {
		t.Fatalf("GetExpense() error = %v", err)
	}
	if got.Status != core.StatusApproved || got.Approver != "admin" || got.Notes != "ok" {
		t.Errorf("resolved expense = %+v", got)
	}

	snap, err := repo.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}
	if snap.Spent[1] != 500 {
		t.Errorf("persisted spent = %d, want 500", snap.Spent[1])
	}

	pending, err := repo.GetPendingExportExpenses(ctx, 10)
	if err != nil {
		t.Fatalf("GetPendingExportExpenses() error = %v", err)
	}
	if len(pending) != 1 || pending[0].ID != 1 {
		t.Fatalf("pending export = %+v, want the approved expense", pending)
	}

	if err := repo.MarkExported(ctx, 1); err != nil {
		t.Fatalf("MarkExported() error = %v", err)
	}
	pending, err = repo.GetPendingExportExpenses(ctx, 10)
	if err != nil {
		t.Fatalf("GetPendingExportExpenses() error = %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending export after MarkExported = %+v, want none", pending)
	}
}

func TestResolveExpense_RejectionDoesNotQueueExport(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	cat := core.Category{ID: 1, Name: "Travel", Budget: 1000, CreatedBy: "alice"}
	if err := repo.CreateCategory(ctx, cat, 2); err != nil {
		t.Fatalf("CreateCategory() error = %v", err)
	}
	exp := core.Expense{ID: 1, Creator: "alice", Amount: 500, CategoryID: 1, Date: 20240101, Status: core.StatusPending}
	if err := repo.CreateExpense(ctx, exp, 2, []uint64{1}); err != nil {
		t.Fatalf("CreateExpense() error = %v", err)
	}

	exp.Status = core.StatusRejected
	exp.Approver = "admin"
	if err := repo.ResolveExpense(ctx, exp, 0); err != nil {
		t.Fatalf("ResolveExpense() error = %v", err)
	}

	pending, err := repo.GetPendingExportExpenses(ctx, 10)
	if err != nil {
		t.Fatalf("GetPendingExportExpenses() error = %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("rejected expense must not be queued for export, got %+v", pending)
	}

	snap, err := repo.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}
	if snap.Spent[1] != 0 {
		t.Errorf("persisted spent after rejection = %d, want 0", snap.Spent[1])
	}
}

func TestMarkExportError(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	cat := core.Category{ID: 1, Name: "Travel", CreatedBy: "alice"}
	if err := repo.CreateCategory(ctx, cat, 2); err != nil {
		t.Fatalf("CreateCategory() error = %v", err)
	}
	exp := core.Expense{ID: 1, Creator: "alice", Amount: 10, CategoryID: 1, Date: 20240101, Status: core.StatusApproved, Approver: "alice"}
	if err := repo.CreateExpense(ctx, exp, 2, []uint64{1}); err != nil {
		t.Fatalf("CreateExpense() error = %v", err)
	}
	if err := repo.ResolveExpense(ctx, exp, 10); err != nil {
		t.Fatalf("ResolveExpense() error = %v", err)
	}

	if err := repo.MarkExportError(ctx, 1); err != nil {
		t.Fatalf("MarkExportError() error = %v", err)
	}
	pending, err := repo.GetPendingExportExpenses(ctx, 10)
	if err != nil {
		t.Fatalf("GetPendingExportExpenses() error = %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("errored expense must leave the pending queue, got %+v", pending)
	}
}

func TestUserIndexReplacedWholesale(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	cat := core.Category{ID: 1, Name: "Travel", CreatedBy: "alice"}
	if err := repo.CreateCategory(ctx, cat, 2); err != nil {
		t.Fatalf("CreateCategory() error = %v", err)
	}

	e1 := core.Expense{ID: 1, Creator: "alice", Amount: 1, CategoryID: 1, Date: 1, Status: core.StatusPending}
	if err := repo.CreateExpense(ctx, e1, 2, []uint64{1}); err != nil {
		t.Fatalf("CreateExpense() error = %v", err)
	}
	e2 := core.Expense{ID: 2, Creator: "alice", Amount: 1, CategoryID: 1, Date: 1, Status: core.StatusPending}
	// Simulate the overflow policy: the ledger replaced the index with just the new ID.
	if err := repo.CreateExpense(ctx, e2, 3, []uint64{2}); err != nil {
		t.Fatalf("CreateExpense() error = %v", err)
	}

	snap, err := repo.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}
	if ids := snap.UserIndex["alice"]; len(ids) != 1 || ids[0] != 2 {
		t.Errorf("user index = %v, want [2]", ids)
	}
}

func TestGetCategory(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	cat := core.Category{ID: 7, Name: "Office", Budget: 300, Description: "supplies", CreatedBy: "bob"}
	if err := repo.CreateCategory(ctx, cat, 8); err != nil {
		t.Fatalf("CreateCategory() error = %v", err)
	}

	got, err := repo.GetCategory(ctx, 7)
	if err != nil {
		t.Fatalf("GetCategory() error = %v", err)
	}
	if got != cat {
		t.Errorf("category = %+v, want %+v", got, cat)
	}

	if _, err := repo.GetCategory(ctx, 99); err == nil {
		t.Error("GetCategory(99) should fail for unknown id")
	}
}
