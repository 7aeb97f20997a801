package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"claims/internal/core"
	"claims/internal/ledger"

	_ "modernc.org/sqlite"
)

// Export states for approved expenses mirrored to the reporting sheet.
const (
	ExportPending = "pending"
	ExportSynced  = "synced"
	ExportError   = "error"
)

const (
	metaAdmin          = "admin"
	metaNextExpenseID  = "next_expense_id"
	metaNextCategoryID = "next_category_id"
)

// SQLiteRepository durably records ledger state. The in-memory ledger stays
// authoritative; the service layer writes through to this repository after
// each successful operation and rebuilds the ledger from it at startup.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// LoadSnapshot reads the full persisted state so a ledger can be rebuilt.
// An empty database yields a zero snapshot; the caller supplies the admin
// principal in that case.
func (r *SQLiteRepository) LoadSnapshot(ctx context.Context) (ledger.Snapshot, error) {
	snap := ledger.Snapshot{
		Expenses:   make(map[uint64]core.Expense),
		Categories: make(map[uint64]core.Category),
		Spent:      make(map[uint64]uint64),
		UserIndex:  make(map[core.Principal][]uint64),
	}

	meta, err := r.loadMeta(ctx)
	if err != nil {
		return snap, fmt.Errorf("load ledger meta: %w", err)
	}
	snap.Admin = core.Principal(meta[metaAdmin])
	if v, err := strconv.ParseUint(meta[metaNextExpenseID], 10, 64); err == nil {
		snap.NextExpenseID = v
	}
	if v, err := strconv.ParseUint(meta[metaNextCategoryID], 10, 64); err == nil {
		snap.NextCategoryID = v
	}

	rows, err := r.db.QueryContext(ctx, `SELECT id, name, budget, description, created_by, spent FROM categories`)
	if err != nil {
		return snap, fmt.Errorf("load categories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c core.Category
		var spent uint64
		if err := rows.Scan(&c.ID, &c.Name, &c.Budget, &c.Description, (*string)(&c.CreatedBy), &spent); err != nil {
			return snap, fmt.Errorf("scan category: %w", err)
		}
		snap.Categories[c.ID] = c
		snap.Spent[c.ID] = spent
	}
	if err := rows.Err(); err != nil {
		return snap, fmt.Errorf("iterate categories: %w", err)
	}

	expRows, err := r.db.QueryContext(ctx,
		`SELECT id, creator, amount, description, category_id, expense_date, status, approver, notes FROM expenses`)
	if err != nil {
		return snap, fmt.Errorf("load expenses: %w", err)
	}
	defer expRows.Close()
	for expRows.Next() {
		var e core.Expense
		if err := expRows.Scan(&e.ID, (*string)(&e.Creator), &e.Amount, &e.Description,
			&e.CategoryID, &e.Date, (*string)(&e.Status), (*string)(&e.Approver), &e.Notes); err != nil {
			return snap, fmt.Errorf("scan expense: %w", err)
		}
		snap.Expenses[e.ID] = e
	}
	if err := expRows.Err(); err != nil {
		return snap, fmt.Errorf("iterate expenses: %w", err)
	}

	idxRows, err := r.db.QueryContext(ctx,
		`SELECT user, expense_id FROM user_expenses ORDER BY user, position`)
	if err != nil {
		return snap, fmt.Errorf("load user index: %w", err)
	}
	defer idxRows.Close()
	for idxRows.Next() {
		var user string
		var expenseID uint64
		if err := idxRows.Scan(&user, &expenseID); err != nil {
			return snap, fmt.Errorf("scan user index: %w", err)
		}
		p := core.Principal(user)
		snap.UserIndex[p] = append(snap.UserIndex[p], expenseID)
	}
	if err := idxRows.Err(); err != nil {
		return snap, fmt.Errorf("iterate user index: %w", err)
	}

	return snap, nil
}

func (r *SQLiteRepository) loadMeta(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM ledger_meta`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

func setMeta(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// SaveAdmin persists the admin principal.
func (r *SQLiteRepository) SaveAdmin(ctx context.Context, admin core.Principal) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin admin update: %w", err)
	}
	defer tx.Rollback()

	if err := setMeta(ctx, tx, metaAdmin, string(admin)); err != nil {
		return fmt.Errorf("save admin: %w", err)
	}
	return tx.Commit()
}

// CreateCategory records a new category and the advanced category counter
// in one transaction.
func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category, nextCategoryID uint64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin category insert: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO categories (id, name, budget, description, created_by, spent) VALUES (?, ?, ?, ?, ?, 0)`,
		c.ID, c.Name, c.Budget, c.Description, string(c.CreatedBy))
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	if err := setMeta(ctx, tx, metaNextCategoryID, strconv.FormatUint(nextCategoryID, 10)); err != nil {
		return fmt.Errorf("save category counter: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit category insert: %w", err)
	}

	slog.InfoContext(ctx, "Category saved to SQLite", "id", c.ID, "name", c.Name, "budget", c.Budget)
	return nil
}

// UpdateCategoryBudget replaces the persisted budget; spent is untouched.
func (r *SQLiteRepository) UpdateCategoryBudget(ctx context.Context, categoryID, newBudget uint64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE categories SET budget = ? WHERE id = ?`, newBudget, categoryID)
	if err != nil {
		return fmt.Errorf("update category budget: %w", err)
	}
	return nil
}

// CreateExpense records a pending expense, the advanced expense counter and
// the creator's full user index in one transaction. The index is replaced
// wholesale so the capped overflow policy persists exactly as the ledger
// applied it.
func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense, nextExpenseID uint64, userIndex []uint64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin expense insert: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO expenses (id, creator, amount, description, category_id, expense_date, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Creator), e.Amount, e.Description, e.CategoryID, e.Date, string(e.Status))
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}
	if err := setMeta(ctx, tx, metaNextExpenseID, strconv.FormatUint(nextExpenseID, 10)); err != nil {
		return fmt.Errorf("save expense counter: %w", err)
	}
	if err := replaceUserIndex(ctx, tx, e.Creator, userIndex); err != nil {
		return fmt.Errorf("save user index: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit expense insert: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", e.ID,
		"creator", string(e.Creator),
		"amount", e.Amount,
		"category_id", e.CategoryID)
	return nil
}

func replaceUserIndex(ctx context.Context, tx *sql.Tx, user core.Principal, ids []uint64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM user_expenses WHERE user = ?`, string(user)); err != nil {
		return err
	}
	for pos, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_expenses (user, position, expense_id) VALUES (?, ?, ?)`,
			string(user), pos, id); err != nil {
			return err
		}
	}
	return nil
}

// ResolveExpense records a terminal transition. Approved expenses carry the
// new category spent total and are queued for export; rejections only
// update the record.
func (r *SQLiteRepository) ResolveExpense(ctx context.Context, e core.Expense, categorySpent uint64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin expense resolution: %w", err)
	}
	defer tx.Rollback()

	exportStatus := ""
	if e.Status == core.StatusApproved {
		exportStatus = ExportPending
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE expenses SET status = ?, approver = ?, notes = ?, export_status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		string(e.Status), string(e.Approver), e.Notes, exportStatus, e.ID)
	if err != nil {
		return fmt.Errorf("update expense status: %w", err)
	}

	if e.Status == core.StatusApproved {
		if _, err := tx.ExecContext(ctx,
			`UPDATE categories SET spent = ? WHERE id = ?`, categorySpent, e.CategoryID); err != nil {
			return fmt.Errorf("update category spent: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit expense resolution: %w", err)
	}

	slog.InfoContext(ctx, "Expense resolution saved to SQLite",
		"id", e.ID,
		"status", string(e.Status),
		"approver", string(e.Approver))
	return nil
}

// GetExpense retrieves a single expense by ID.
func (r *SQLiteRepository) GetExpense(ctx context.Context, id uint64) (core.Expense, error) {
	var e core.Expense
	err := r.db.QueryRowContext(ctx,
		`SELECT id, creator, amount, description, category_id, expense_date, status, approver, notes
		 FROM expenses WHERE id = ?`, id).
		Scan(&e.ID, (*string)(&e.Creator), &e.Amount, &e.Description,
			&e.CategoryID, &e.Date, (*string)(&e.Status), (*string)(&e.Approver), &e.Notes)
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense by id: %w", err)
	}
	return e, nil
}

// GetCategory retrieves a single category by ID.
func (r *SQLiteRepository) GetCategory(ctx context.Context, id uint64) (core.Category, error) {
	var c core.Category
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, budget, description, created_by FROM categories WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Budget, &c.Description, (*string)(&c.CreatedBy))
	if err != nil {
		return core.Category{}, fmt.Errorf("get category by id: %w", err)
	}
	return c, nil
}

// GetPendingExportExpenses returns approved expenses that still need to be
// mirrored to the reporting sheet.
func (r *SQLiteRepository) GetPendingExportExpenses(ctx context.Context, limit int) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, creator, amount, description, category_id, expense_date, status, approver, notes
		 FROM expenses WHERE export_status = ? ORDER BY id LIMIT ?`, ExportPending, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending export expenses: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		var e core.Expense
		if err := rows.Scan(&e.ID, (*string)(&e.Creator), &e.Amount, &e.Description,
			&e.CategoryID, &e.Date, (*string)(&e.Status), (*string)(&e.Approver), &e.Notes); err != nil {
			return nil, fmt.Errorf("scan pending export expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkExported marks an expense as successfully mirrored.
func (r *SQLiteRepository) MarkExported(ctx context.Context, id uint64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET export_status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, ExportSynced, id)
	if err != nil {
		return fmt.Errorf("mark expense exported: %w", err)
	}

	slog.InfoContext(ctx, "Expense marked as exported", "id", id)
	return nil
}

// MarkExportError marks an expense as having export errors.
func (r *SQLiteRepository) MarkExportError(ctx context.Context, id uint64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET export_status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, ExportError, id)
	if err != nil {
		return fmt.Errorf("mark expense export error: %w", err)
	}

	slog.WarnContext(ctx, "Expense marked with export error", "id", id)
	return nil
}
