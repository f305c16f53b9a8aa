package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"spendwise/internal/auth"
	"spendwise/internal/core"
	"spendwise/internal/log"
	"spendwise/internal/store"
)

// msgInvalidExpense is shown for any local validation failure on the entry
// screen except an over-long name.
const msgInvalidExpense = "Please fill all fields correctly."

// handleCreateExpense validates the entry form locally, then records the
// expense and its effect on the total in one transaction.
func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	p := parseBody(w, r)
	if p == nil {
		return
	}

	ctx := r.Context()
	userID := auth.UserID(ctx)
	logger := log.FromContext(ctx).WithComponent(log.ComponentLedger)

	name, amount, err := core.ParseExpenseInput(p.Get("name"), p.Get("amount"))
	if err != nil {
		msg := msgInvalidExpense
		if errors.Is(err, core.ErrNameTooLong) {
			msg = "Name too long (max 200 characters)."
		}
		logger.DebugContext(ctx, "Expense input rejected",
			log.FieldOperation, log.OpValidate,
			log.FieldUserID, userID,
			log.FieldError, err)
		ValidationError(msg).Write(w)
		return
	}

	e, err := s.deps.Ledger.AddExpense(ctx, userID, name, amount)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to save expense",
			log.NewFields().
				WithOperation(log.OpCreate).
				WithUser(userID).
				WithExpense("", name, amount.Cents).
				WithError(err).
				ToSlice()...)
		DialogResponse(http.StatusInternalServerError, TitleSaveError, "Transaction failed: "+err.Error()).Write(w)
		return
	}

	if r.Header.Get("HX-Request") == "true" {
		NewHTMXResponse().TriggerExpenseCreated(e.ID).Redirect(pathList).Write(w)
		return
	}
	http.Redirect(w, r, pathList, http.StatusSeeOther)
}

// handleDeleteExpense removes one of the signed-in user's expenses. An empty
// 200 lets htmx drop the row in place.
func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := auth.UserID(ctx)
	expenseID := chi.URLParam(r, "id")
	logger := log.FromContext(ctx).WithComponent(log.ComponentLedger)

	if expenseID == "" {
		DialogResponse(http.StatusBadRequest, TitleDeleteError, "Missing expense id.").Write(w)
		return
	}

	if _, err := s.deps.Ledger.RemoveExpense(ctx, userID, expenseID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		logger.ErrorContext(ctx, "Failed to delete expense",
			log.FieldOperation, log.OpDelete,
			log.FieldUserID, userID,
			log.FieldExpenseID, expenseID,
			log.FieldError, err)
		DialogResponse(status, TitleDeleteError, err.Error()).Write(w)
		return
	}

	NewHTMXResponse().TriggerExpenseDeleted(expenseID).Write(w)
}
