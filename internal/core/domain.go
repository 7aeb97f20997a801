package core

import (
	"errors"
	"strings"
)

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Text bounds enforced at the boundary before a record is stored.
const (
	MaxDescriptionLen = 100
	MaxNameLen        = 50
	MaxNotesLen       = 100
)

type (
	// Principal is an authenticated caller identity. It is supplied by the
	// hosting environment (the API gateway) and trusted as-is.
	Principal string

	Status string

	Expense struct {
		ID          uint64
		Creator     Principal
		Amount      uint64 // minor units, always > 0
		Description string
		CategoryID  uint64
		Date        uint64 // caller-supplied, opaque, always > 0
		Status      Status
		Approver    Principal // empty while pending
		Notes       string    // set at resolution time
	}

	Category struct {
		ID          uint64
		Name        string
		Budget      uint64 // mutable, advisory ceiling
		Description string
		CreatedBy   Principal
	}
)

var (
	ErrNotAuthorized    = errors.New("not authorized")
	ErrExpenseNotFound  = errors.New("expense not found")
	ErrCategoryNotFound = errors.New("category not found")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidDate      = errors.New("invalid date")
	ErrAlreadyApproved  = errors.New("expense already approved")
	ErrAlreadyRejected  = errors.New("expense already rejected")

	// Reserved error kinds. Neither is returned by the observed mutation
	// paths: category creation never collides and approval does not gate on
	// the budget. They stay defined so callers can match on them if those
	// checks are ever wired in.
	ErrCategoryExists = errors.New("category already exists")
	ErrBudgetExceeded = errors.New("budget exceeded")

	ErrEmptyPrincipal     = errors.New("empty principal")
	ErrDescriptionTooLong = errors.New("description too long")
	ErrNameTooLong        = errors.New("name too long")
	ErrNotesTooLong       = errors.New("notes too long")
)

// Resolved reports whether the expense has reached a terminal state.
func (e Expense) Resolved() bool {
	return e.Status != StatusPending
}

func (p Principal) Validate() error {
	if strings.TrimSpace(string(p)) == "" {
		return ErrEmptyPrincipal
	}
	return nil
}

// ValidateDescription bounds free text attached to expenses and categories.
func ValidateDescription(s string) error {
	if len(s) > MaxDescriptionLen {
		return ErrDescriptionTooLong
	}
	return nil
}

func ValidateNotes(s string) error {
	if len(s) > MaxNotesLen {
		return ErrNotesTooLong
	}
	return nil
}

// ValidateCategoryName bounds the name length. An empty name is allowed:
// category creation has no failure modes beyond the length bound.
func ValidateCategoryName(s string) error {
	if len(s) > MaxNameLen {
		return ErrNameTooLong
	}
	return nil
}
