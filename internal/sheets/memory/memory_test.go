package memory

import (
	"context"
	"testing"

	"claims/internal/core"
)

func TestMemoryStoreAppend(t *testing.T) {
	s := New()

	ref, err := s.Append(context.Background(), core.Expense{
		ID:          1,
		Creator:     "alice",
		Amount:      500,
		Description: "flight",
		CategoryID:  1,
		Date:        20240101,
		Status:      core.StatusApproved,
		Approver:    "admin",
	}, "Travel")
	if err != nil || ref != "mem:1" {
		t.Fatalf("unexpected append: ref=%q err=%v", ref, err)
	}

	ref, err = s.Append(context.Background(), core.Expense{ID: 2}, "Office")
	if err != nil || ref != "mem:2" {
		t.Fatalf("unexpected second append: ref=%q err=%v", ref, err)
	}

	rows := s.Rows()
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].Expense.ID != 1 || rows[0].Category != "Travel" {
		t.Errorf("first row = %+v", rows[0])
	}
}

func TestMemoryStoreRowsIsACopy(t *testing.T) {
	s := New()
	if _, err := s.Append(context.Background(), core.Expense{ID: 1}, "Travel"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	rows := s.Rows()
	rows[0].Category = "mutated"

	if got := s.Rows()[0].Category; got != "Travel" {
		t.Errorf("store mutated through returned slice: %q", got)
	}
}
