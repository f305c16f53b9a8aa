// Package http serves the spendwise screens.
//
// This file implements the builder used for HTMX responses: HX-Trigger
// events, HX-Redirect navigation and the blocking error dialog every screen
// falls back to on failure.

package http

import (
	"encoding/json"
	"html/template"
	"net/http"
)

// Dialog titles shown by the screens.
const (
	TitleError         = "Error"
	TitleAccountError  = "Account Error"
	TitleLoginError    = "Login Error"
	TitleSaveError     = "Save Error"
	TitleDeleteError   = "Delete Error"
	TitleDatabaseError = "Database Error"
	TitleLogoutError   = "Logout Error"
	TitleSuccess       = "Success!"
)

// EventShowDialog is the client event that opens the blocking dialog.
const EventShowDialog = "show-dialog"

// Dialog is a blocking message with a single OK action.
type Dialog struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// HTMXResponseBuilder provides a fluent API for building HTMX responses.
type HTMXResponseBuilder struct {
	triggers   map[string]any
	statusCode int
	body       []byte
	headers    map[string]string
}

// NewHTMXResponse creates a new response builder with default 200 status.
func NewHTMXResponse() *HTMXResponseBuilder {
	return &HTMXResponseBuilder{
		triggers:   make(map[string]any),
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *HTMXResponseBuilder) Status(code int) *HTMXResponseBuilder {
	b.statusCode = code
	return b
}

// Trigger adds a named trigger with optional data to the HX-Trigger header.
func (b *HTMXResponseBuilder) Trigger(name string, data any) *HTMXResponseBuilder {
	b.triggers[name] = data
	return b
}

// TriggerDialog opens the blocking dialog on the client.
func (b *HTMXResponseBuilder) TriggerDialog(title, message string) *HTMXResponseBuilder {
	return b.Trigger(EventShowDialog, Dialog{Title: title, Message: message})
}

// TriggerExpenseCreated announces a saved expense to listening elements.
func (b *HTMXResponseBuilder) TriggerExpenseCreated(id string) *HTMXResponseBuilder {
	return b.Trigger("expense:created", map[string]string{"id": id})
}

// TriggerExpenseDeleted announces a removed expense to listening elements.
func (b *HTMXResponseBuilder) TriggerExpenseDeleted(id string) *HTMXResponseBuilder {
	return b.Trigger("expense:deleted", map[string]string{"id": id})
}

// Redirect makes htmx navigate the whole page to path.
func (b *HTMXResponseBuilder) Redirect(path string) *HTMXResponseBuilder {
	return b.Header("HX-Redirect", path)
}

func (b *HTMXResponseBuilder) Header(name, value string) *HTMXResponseBuilder {
	b.headers[name] = value
	return b
}

func (b *HTMXResponseBuilder) Body(content []byte) *HTMXResponseBuilder {
	b.body = content
	return b
}

func (b *HTMXResponseBuilder) BodyString(content string) *HTMXResponseBuilder {
	b.body = []byte(content)
	return b
}

// BodyHTML sets the response body as HTML content.
func (b *HTMXResponseBuilder) BodyHTML(html string) *HTMXResponseBuilder {
	b.headers["Content-Type"] = "text/html; charset=utf-8"
	b.body = []byte(html)
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *HTMXResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	if len(b.triggers) > 0 {
		triggerJSON, err := json.Marshal(b.triggers)
		if err == nil {
			w.Header().Set("HX-Trigger", string(triggerJSON))
		}
	}

	w.WriteHeader(b.statusCode)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

// DialogResponse reports a failure as a blocking dialog. The body carries the
// same text for clients without JavaScript; it is HTML-escaped.
func DialogResponse(statusCode int, title, message string) *HTMXResponseBuilder {
	return NewHTMXResponse().
		Status(statusCode).
		TriggerDialog(title, message).
		BodyHTML(`<div class="error"><strong>` + template.HTMLEscapeString(title) + `</strong> ` +
			template.HTMLEscapeString(message) + `</div>`)
}

// ValidationError is the local validation dialog; no backend call was made.
func ValidationError(message string) *HTMXResponseBuilder {
	return DialogResponse(http.StatusUnprocessableEntity, TitleError, message)
}

// MethodNotAllowedError creates a 405 Method Not Allowed error response.
func MethodNotAllowedError(allowedMethods string) *HTMXResponseBuilder {
	return NewHTMXResponse().
		Status(http.StatusMethodNotAllowed).
		Header("Allow", allowedMethods)
}
