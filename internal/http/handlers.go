package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"spendwise/internal/auth"
	"spendwise/internal/core"
	"spendwise/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).String(),
	})
}

// handleReady reports whether the document store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := map[string]any{
		"templates":      "ok",
		"event_streams":  s.streams.Load(),
		"rate_limit":     s.deps.Limiter.GetMetrics(),
		"requests_total": s.tracer.GetMetrics().TotalRequests,
	}

	if s.deps.Pinger == nil {
		checks["store"] = "not_configured"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else if err := s.deps.Pinger.Ping(ctx); err != nil {
		checks["store"] = "failed: " + err.Error()
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
		log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", log.FieldError, err)
	} else {
		checks["store"] = "ok"
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleList renders the expense list with the current total and day
// sections. The page then follows both over the event stream.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := auth.UserID(ctx)
	logger := log.FromContext(ctx)

	total, err := s.deps.Ledger.Total(ctx, userID)
	if err != nil {
		logger.WarnContext(ctx, "Total read failed", log.FieldUserID, userID, log.FieldError, err)
		total = core.Money{}
	}

	expenses, err := s.deps.Reader.ListExpenses(ctx, userID)
	if err != nil {
		logger.WarnContext(ctx, "Expense list read failed", log.FieldUserID, userID, log.FieldError, err)
		expenses = nil
	}

	s.render(w, r, http.StatusOK, "list.html", pageData{
		Title:  "My Expenses",
		Email:  currentEmail(ctx),
		Total:  total.String(),
		Groups: buildDayViews(expenses, s.opts.Location),
	})
}

func (s *Server) handleEntryPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "entry.html", pageData{Title: "Add Expense"})
}

func currentEmail(ctx context.Context) string {
	sess, _ := auth.SessionFrom(ctx)
	return sess.Identity.Email
}
