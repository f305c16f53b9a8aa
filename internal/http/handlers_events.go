package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"spendwise/internal/auth"
	"spendwise/internal/log"
)

// Event names on the list screen's stream; they match the sse-swap targets.
const (
	eventTotal    = "total"
	eventExpenses = "expenses"
)

// handleEvents streams the list screen's total and expense sections. One
// listener of each kind is held for the life of the request and released
// when the browser goes away. Only this goroutine writes to w.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := auth.UserID(ctx)
	logger := log.FromContext(ctx).WithComponent(log.ComponentRealtime)

	rc := http.NewResponseController(w)
	// The stream outlives the server's read and write timeouts.
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		logger.ErrorContext(ctx, "Event stream not supported", log.FieldError, err)
		return
	}

	s.streams.Add(1)
	defer s.streams.Add(-1)
	logger.DebugContext(ctx, "Event stream opened", log.FieldOperation, log.OpWatch, log.FieldUserID, userID)
	defer logger.DebugContext(ctx, "Event stream closed", log.FieldOperation, log.OpWatch, log.FieldUserID, userID)

	totals := s.deps.Listener.WatchTotal(ctx, userID)
	lists := s.deps.Listener.WatchExpenses(ctx, userID)

	heartbeat := time.NewTicker(s.opts.Heartbeat)
	defer heartbeat.Stop()

	var buf bytes.Buffer
	for totals != nil || lists != nil {
		buf.Reset()

		select {
		case <-ctx.Done():
			return
		case <-s.closing:
			return
		case <-heartbeat.C:
			buf.WriteString(": ping\n\n")
		case snap, ok := <-totals:
			if !ok {
				totals = nil
				continue
			}
			// Listener errors are already logged; the total falls back to zero.
			if err := s.renderEvent(&buf, eventTotal, "total", snap.Total.String()); err != nil {
				logger.ErrorContext(ctx, "Render total event failed", log.FieldError, err)
				continue
			}
		case snap, ok := <-lists:
			if !ok {
				lists = nil
				continue
			}
			if err := s.renderEvent(&buf, eventExpenses, "expenses", buildDayViews(snap.Expenses, s.opts.Location)); err != nil {
				logger.ErrorContext(ctx, "Render expenses event failed", log.FieldError, err)
				continue
			}
		}

		if _, err := w.Write(buf.Bytes()); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// renderEvent writes one server-sent event whose data is the rendered partial.
func (s *Server) renderEvent(buf *bytes.Buffer, event, tmpl string, data any) error {
	var html bytes.Buffer
	if err := s.templates.ExecuteTemplate(&html, tmpl, data); err != nil {
		return err
	}
	writeSSE(buf, event, html.String())
	return nil
}

// writeSSE frames data as an event, one data line per input line.
func writeSSE(buf *bytes.Buffer, event, data string) {
	fmt.Fprintf(buf, "event: %s\n", event)
	for _, line := range strings.Split(strings.ReplaceAll(data, "\r\n", "\n"), "\n") {
		buf.WriteString("data: ")
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
}
