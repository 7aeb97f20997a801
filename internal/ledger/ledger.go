// Package ledger owns every piece of mutable claim state: expense and
// category records, per-category spend accumulation, the per-user expense
// index, the admin principal and both ID counters.
//
// A single mutex serializes operations, so each call is one indivisible
// unit: all validation happens before the first write and a returned error
// guarantees the store is unchanged. Persistence and transport live in the
// layers around this package.
package ledger

import (
	"sync"

	"claims/internal/core"
)

// UserIndexCap bounds the per-user expense index. When a user is at
// capacity the next insertion replaces the whole index with a single-entry
// list holding only the new ID. That is deliberate: the index is not a
// ring buffer and the prior entries are discarded, not rotated.
const UserIndexCap = 100

type Ledger struct {
	mu sync.Mutex

	admin          core.Principal
	nextExpenseID  uint64
	nextCategoryID uint64

	expenses   map[uint64]core.Expense
	categories map[uint64]core.Category
	spent      map[uint64]uint64
	userIndex  map[core.Principal][]uint64
}

// Snapshot is a full copy of ledger state, used to persist and restore it.
type Snapshot struct {
	Admin          core.Principal
	NextExpenseID  uint64
	NextCategoryID uint64
	Expenses       map[uint64]core.Expense
	Categories     map[uint64]core.Category
	Spent          map[uint64]uint64
	UserIndex      map[core.Principal][]uint64
}

// New returns an empty ledger administered by admin. The admin principal
// stands in for the deployer identity and can only be replaced via SetAdmin.
func New(admin core.Principal) *Ledger {
	return &Ledger{
		admin:          admin,
		nextExpenseID:  1,
		nextCategoryID: 1,
		expenses:       make(map[uint64]core.Expense),
		categories:     make(map[uint64]core.Category),
		spent:          make(map[uint64]uint64),
		userIndex:      make(map[core.Principal][]uint64),
	}
}

// FromSnapshot rebuilds a ledger from persisted state. Counters below 1 are
// normalized so a snapshot of an empty store behaves like New.
func FromSnapshot(s Snapshot) *Ledger {
	l := New(s.Admin)
	if s.NextExpenseID > 1 {
		l.nextExpenseID = s.NextExpenseID
	}
	if s.NextCategoryID > 1 {
		l.nextCategoryID = s.NextCategoryID
	}
	for id, e := range s.Expenses {
		l.expenses[id] = e
	}
	for id, c := range s.Categories {
		l.categories[id] = c
	}
	for id, amount := range s.Spent {
		l.spent[id] = amount
	}
	for user, ids := range s.UserIndex {
		l.userIndex[user] = append([]uint64(nil), ids...)
	}
	return l
}

// Snapshot copies the full ledger state.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Snapshot{
		Admin:          l.admin,
		NextExpenseID:  l.nextExpenseID,
		NextCategoryID: l.nextCategoryID,
		Expenses:       make(map[uint64]core.Expense, len(l.expenses)),
		Categories:     make(map[uint64]core.Category, len(l.categories)),
		Spent:          make(map[uint64]uint64, len(l.spent)),
		UserIndex:      make(map[core.Principal][]uint64, len(l.userIndex)),
	}
	for id, e := range l.expenses {
		s.Expenses[id] = e
	}
	for id, c := range l.categories {
		s.Categories[id] = c
	}
	for id, amount := range l.spent {
		s.Spent[id] = amount
	}
	for user, ids := range l.userIndex {
		s.UserIndex[user] = append([]uint64(nil), ids...)
	}
	return s
}

// isAdmin, canResolve and canModifyCategory are the authorization
// predicates gating every mutation. Callers must hold l.mu.
func (l *Ledger) isAdmin(caller core.Principal) bool {
	return caller == l.admin
}

func (l *Ledger) canResolve(caller core.Principal, e core.Expense) bool {
	return l.isAdmin(caller) || caller == e.Creator
}

func (l *Ledger) canModifyCategory(caller core.Principal, c core.Category) bool {
	return l.isAdmin(caller) || caller == c.CreatedBy
}

// CreateCategory stores a new category owned by caller with zero spend.
// Any caller may create categories; the operation never fails.
func (l *Ledger) CreateCategory(name string, budget uint64, description string, caller core.Principal) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextCategoryID
	l.nextCategoryID++

	l.categories[id] = core.Category{
		ID:          id,
		Name:        name,
		Budget:      budget,
		Description: description,
		CreatedBy:   caller,
	}
	l.spent[id] = 0
	return id
}

// UpdateCategoryBudget replaces the category's budget. Only the admin or
// the category's creator may do so; accumulated spend is untouched.
func (l *Ledger) UpdateCategoryBudget(categoryID, newBudget uint64, caller core.Principal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.categories[categoryID]
	if !ok {
		return core.ErrCategoryNotFound
	}
	if !l.canModifyCategory(caller, c) {
		return core.ErrNotAuthorized
	}
	c.Budget = newBudget
	l.categories[categoryID] = c
	return nil
}

// CreateExpense stores a pending expense for caller and indexes it under
// the caller's user index. All validation runs before the ID is drawn, so
// a failed call never consumes an ID.
func (l *Ledger) CreateExpense(amount uint64, description string, categoryID, date uint64, caller core.Principal) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount == 0 {
		return 0, core.ErrInvalidAmount
	}
	if _, ok := l.categories[categoryID]; !ok {
		return 0, core.ErrCategoryNotFound
	}
	if date == 0 {
		return 0, core.ErrInvalidDate
	}

	id := l.nextExpenseID
	l.nextExpenseID++

	l.expenses[id] = core.Expense{
		ID:          id,
		Creator:     caller,
		Amount:      amount,
		Description: description,
		CategoryID:  categoryID,
		Date:        date,
		Status:      core.StatusPending,
	}
	l.appendUserIndex(caller, id)
	return id, nil
}

// appendUserIndex applies the capped-index insertion policy. Caller must
// hold l.mu.
func (l *Ledger) appendUserIndex(user core.Principal, expenseID uint64) {
	ids := l.userIndex[user]
	if len(ids) < UserIndexCap {
		l.userIndex[user] = append(ids, expenseID)
		return
	}
	l.userIndex[user] = []uint64{expenseID}
}

// ApproveExpense transitions a pending expense to approved, records the
// approver and notes, and adds the amount to the category's spent
// accumulator. The category budget is not consulted here: the ceiling is
// advisory along this path (see WouldExceedBudget). Any non-pending status
// yields ErrAlreadyApproved, whichever terminal state was reached first.
func (l *Ledger) ApproveExpense(expenseID uint64, notes string, caller core.Principal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.expenses[expenseID]
	if !ok {
		return core.ErrExpenseNotFound
	}
	if !l.canResolve(caller, e) {
		return core.ErrNotAuthorized
	}
	if e.Status != core.StatusPending {
		return core.ErrAlreadyApproved
	}

	e.Status = core.StatusApproved
	e.Approver = caller
	e.Notes = notes
	l.expenses[expenseID] = e
	l.spent[e.CategoryID] += e.Amount
	return nil
}

// RejectExpense transitions a pending expense to rejected. No accumulator
// update. Any non-pending status yields ErrAlreadyRejected, whichever
// terminal state was reached first.
func (l *Ledger) RejectExpense(expenseID uint64, notes string, caller core.Principal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.expenses[expenseID]
	if !ok {
		return core.ErrExpenseNotFound
	}
	if !l.canResolve(caller, e) {
		return core.ErrNotAuthorized
	}
	if e.Status != core.StatusPending {
		return core.ErrAlreadyRejected
	}

	e.Status = core.StatusRejected
	e.Approver = caller
	e.Notes = notes
	l.expenses[expenseID] = e
	return nil
}

// SetAdmin hands the admin role to newAdmin. Only the current admin may
// call it; the replacement is unconditional.
func (l *Ledger) SetAdmin(newAdmin, caller core.Principal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.isAdmin(caller) {
		return core.ErrNotAuthorized
	}
	l.admin = newAdmin
	return nil
}

// Expense returns the expense record for id.
func (l *Ledger) Expense(id uint64) (core.Expense, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.expenses[id]
	return e, ok
}

// Category returns the category record for id.
func (l *Ledger) Category(id uint64) (core.Category, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.categories[id]
	return c, ok
}

// CategorySpent returns the approved spend accumulated against the
// category, or 0 if the category was never initialized.
func (l *Ledger) CategorySpent(id uint64) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.spent[id]
}

// UserExpenses returns a copy of the user's expense index, oldest first,
// empty if the user never created an expense.
func (l *Ledger) UserExpenses(user core.Principal) []uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]uint64(nil), l.userIndex[user]...)
}

// Admin returns the current admin principal.
func (l *Ledger) Admin() core.Principal {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.admin
}

// WouldExceedBudget reports whether approving an expense of amount against
// the category would push accumulated spend past the budget. It is the
// reserved budget predicate: approval does not gate on it, callers may
// surface it as advisory information.
func (l *Ledger) WouldExceedBudget(categoryID, amount uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.categories[categoryID]
	if !ok {
		return false
	}
	return l.spent[categoryID]+amount > c.Budget
}
