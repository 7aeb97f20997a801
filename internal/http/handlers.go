package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"claims/internal/core"
	"claims/internal/log"
)

const maxBodyBytes = 1 << 20

// errEmptyBody marks a request with no body at all, which some endpoints
// accept, unlike a body that fails to parse.
var errEmptyBody = errors.New("empty request body")

type expenseResponse struct {
	ID          uint64 `json:"id"`
	Creator     string `json:"creator"`
	Amount      uint64 `json:"amount"`
	Description string `json:"description"`
	CategoryID  uint64 `json:"category_id"`
	Date        uint64 `json:"date"`
	Status      string `json:"status"`
	Approver    string `json:"approver,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

type categoryResponse struct {
	ID          uint64 `json:"id"`
	Name        string `json:"name"`
	Budget      uint64 `json:"budget"`
	Description string `json:"description"`
	CreatedBy   string `json:"created_by"`
	Spent       uint64 `json:"spent"`
}

func toExpenseResponse(e core.Expense) expenseResponse {
	return expenseResponse{
		ID:          e.ID,
		Creator:     string(e.Creator),
		Amount:      e.Amount,
		Description: e.Description,
		CategoryID:  e.CategoryID,
		Date:        e.Date,
		Status:      string(e.Status),
		Approver:    string(e.Approver),
		Notes:       e.Notes,
	}
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// pathID parses the {id} path segment.
func pathID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", r.PathValue("id"))
	}
	return id, nil
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount      uint64 `json:"amount"`
		Description string `json:"description"`
		CategoryID  uint64 `json:"category_id"`
		Date        uint64 `json:"date"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	caller := principal(r)
	id, err := s.svc.CreateExpense(r.Context(), req.Amount, req.Description, req.CategoryID, req.Date, caller)
	if err != nil {
		writeError(w, err)
		return
	}

	s.userExpensesCache.Delete(string(caller))

	slog.InfoContext(r.Context(), "Expense created",
		log.FieldExpenseID, id, log.FieldPrincipal, caller,
		log.FieldAmount, req.Amount, log.FieldCategoryID, req.CategoryID)
	writeJSON(w, http.StatusCreated, map[string]uint64{"id": id})
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	e, err := s.svc.GetExpense(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseResponse(e))
}

// handleListUserExpenses returns a user's expense index. Without a user
// query parameter the caller's own index is listed.
func (s *Server) handleListUserExpenses(w http.ResponseWriter, r *http.Request) {
	user := core.Principal(r.URL.Query().Get("user"))
	if user == "" {
		user = principal(r)
	}

	key := string(user)
	ids, found := s.userExpensesCache.Get(key)
	if !found {
		ids = s.svc.UserExpenses(user)
		s.userExpensesCache.Set(key, ids)
	}

	writeJSON(w, http.StatusOK, struct {
		User       string   `json:"user"`
		ExpenseIDs []uint64 `json:"expense_ids"`
	}{User: key, ExpenseIDs: ids})
}

func (s *Server) handleApproveExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	var req struct {
		Notes string `json:"notes"`
	}
	// An absent body means no notes; a body that fails to parse is an error.
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	caller := principal(r)
	overBudget, err := s.svc.ApproveExpense(r.Context(), id, req.Notes, caller)
	if err != nil {
		writeError(w, err)
		return
	}

	// The category's spent changed; drop any cached copy.
	if e, err := s.svc.GetExpense(id); err == nil {
		s.categoryCache.Delete(strconv.FormatUint(e.CategoryID, 10))
	}

	slog.InfoContext(r.Context(), "Expense approved",
		log.FieldExpenseID, id, log.FieldPrincipal, caller, "over_budget", overBudget)
	writeJSON(w, http.StatusOK, struct {
		ID         uint64 `json:"id"`
		Status     string `json:"status"`
		OverBudget bool   `json:"over_budget"`
	}{ID: id, Status: string(core.StatusApproved), OverBudget: overBudget})
}

func (s *Server) handleRejectExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	var req struct {
		Notes string `json:"notes"`
	}
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	caller := principal(r)
	if err := s.svc.RejectExpense(r.Context(), id, req.Notes, caller); err != nil {
		writeError(w, err)
		return
	}

	slog.InfoContext(r.Context(), "Expense rejected", log.FieldExpenseID, id, log.FieldPrincipal, caller)
	writeJSON(w, http.StatusOK, struct {
		ID     uint64 `json:"id"`
		Status string `json:"status"`
	}{ID: id, Status: string(core.StatusRejected)})
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Budget      uint64 `json:"budget"`
		Description string `json:"description"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	caller := principal(r)
	id, err := s.svc.CreateCategory(r.Context(), req.Name, req.Budget, req.Description, caller)
	if err != nil {
		writeError(w, err)
		return
	}

	slog.InfoContext(r.Context(), "Category created",
		log.FieldCategoryID, id, log.FieldPrincipal, caller, "name", req.Name, "budget", req.Budget)
	writeJSON(w, http.StatusCreated, map[string]uint64{"id": id})
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	key := strconv.FormatUint(id, 10)
	if resp, found := s.categoryCache.Get(key); found {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	c, spent, err := s.svc.GetCategory(id)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := categoryResponse{
		ID:          c.ID,
		Name:        c.Name,
		Budget:      c.Budget,
		Description: c.Description,
		CreatedBy:   string(c.CreatedBy),
		Spent:       spent,
	}
	s.categoryCache.Set(key, resp)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdateCategoryBudget(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	var req struct {
		Budget uint64 `json:"budget"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	caller := principal(r)
	if err := s.svc.UpdateCategoryBudget(r.Context(), id, req.Budget, caller); err != nil {
		writeError(w, err)
		return
	}

	s.categoryCache.Delete(strconv.FormatUint(id, 10))

	slog.InfoContext(r.Context(), "Category budget updated",
		log.FieldCategoryID, id, log.FieldPrincipal, caller, "budget", req.Budget)
	writeJSON(w, http.StatusOK, map[string]uint64{"id": id, "budget": req.Budget})
}

func (s *Server) handleSetAdmin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Principal string `json:"principal"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	caller := principal(r)
	if err := s.svc.SetAdmin(r.Context(), core.Principal(req.Principal), caller); err != nil {
		writeError(w, err)
		return
	}

	slog.InfoContext(r.Context(), "Admin changed", "new_admin", req.Principal, log.FieldPrincipal, caller)
	writeJSON(w, http.StatusOK, map[string]string{"admin": req.Principal})
}
