package core

import (
	"strings"
	"testing"
)

func TestPrincipal_Validate(t *testing.T) {
	tests := []struct {
		name      string
		principal Principal
		wantErr   error
	}{
		{"valid", Principal("alice"), nil},
		{"empty", Principal(""), ErrEmptyPrincipal},
		{"whitespace only", Principal("   "), ErrEmptyPrincipal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.principal.Validate(); err != tt.wantErr {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateDescription(t *testing.T) {
	if err := ValidateDescription(strings.Repeat("a", MaxDescriptionLen)); err != nil {
		t.Errorf("description at limit should pass, got %v", err)
	}
	if err := ValidateDescription(strings.Repeat("a", MaxDescriptionLen+1)); err != ErrDescriptionTooLong {
		t.Errorf("description over limit = %v, want ErrDescriptionTooLong", err)
	}
	if err := ValidateDescription(""); err != nil {
		t.Errorf("empty description should pass, got %v", err)
	}
}

func TestValidateNotes(t *testing.T) {
	if err := ValidateNotes(strings.Repeat("n", MaxNotesLen)); err != nil {
		t.Errorf("notes at limit should pass, got %v", err)
	}
	if err := ValidateNotes(strings.Repeat("n", MaxNotesLen+1)); err != ErrNotesTooLong {
		t.Errorf("notes over limit = %v, want ErrNotesTooLong", err)
	}
}

func TestValidateCategoryName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"valid", "Travel", nil},
		{"at limit", strings.Repeat("x", MaxNameLen), nil},
		{"over limit", strings.Repeat("x", MaxNameLen+1), ErrNameTooLong},
		{"empty", "", nil},
		{"whitespace", "  ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateCategoryName(tt.input); err != tt.wantErr {
				t.Errorf("ValidateCategoryName(%q) = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestExpense_Resolved(t *testing.T) {
	if (Expense{Status: StatusPending}).Resolved() {
		t.Error("pending expense should not be resolved")
	}
	if !(Expense{Status: StatusApproved}).Resolved() {
		t.Error("approved expense should be resolved")
	}
	if !(Expense{Status: StatusRejected}).Resolved() {
		t.Error("rejected expense should be resolved")
	}
}
