// Package api exposes the storefront checkout HTTP surface. Error
// responses follow RFC 7807 (Problem Details for HTTP APIs) with a
// `retriable` extension so clients can tell "try again" from "this can
// never succeed".
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// ProblemDetail implements RFC 7807. All API error responses use this
// format.
type ProblemDetail struct {
	// Type is a URI reference that identifies the problem type.
	Type string `json:"type"`
	// Title is a short, human-readable summary of the problem type.
	Title string `json:"title"`
	// Status is the HTTP status code.
	Status int `json:"status"`
	// Detail is a human-readable explanation specific to this occurrence.
	Detail string `json:"detail,omitempty"`
	// Instance is a URI reference identifying the specific occurrence.
	Instance string `json:"instance,omitempty"`
	// TraceID links the response to the request for support escalation.
	TraceID string `json:"trace_id,omitempty"`
	// Retriable tells the client whether repeating the request can
	// succeed (e.g. payment gateway temporarily unreachable).
	Retriable bool `json:"retriable"`
}

// Error implements the error interface.
func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

// WriteProblem writes an RFC 7807 response enriched with request context.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, title, detail string, retriable bool) {
	problem := &ProblemDetail{
		Type:      fmt.Sprintf("https://decorluxe.example/errors/%d", status),
		Title:     title,
		Status:    status,
		Detail:    detail,
		Instance:  r.URL.Path,
		TraceID:   w.Header().Get("X-Request-ID"),
		Retriable: retriable,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}

// WriteBadRequest writes a 400 error response.
func WriteBadRequest(w http.ResponseWriter, r *http.Request, detail string) {
	WriteProblem(w, r, http.StatusBadRequest, "Bad Request", detail, false)
}

// WriteUnauthorized writes a 401 error response.
func WriteUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	if detail == "" {
		detail = "Authentication required"
	}
	WriteProblem(w, r, http.StatusUnauthorized, "Unauthorized", detail, false)
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, r *http.Request, detail string) {
	WriteProblem(w, r, http.StatusNotFound, "Not Found", detail, false)
}

// WriteConflict writes a 409 error response.
func WriteConflict(w http.ResponseWriter, r *http.Request, detail string) {
	WriteProblem(w, r, http.StatusConflict, "Conflict", detail, false)
}

// WriteUnprocessable writes a 422 error response for requests that are
// well-formed but can never be satisfied (e.g. a conclusively rejected
// payment proof).
func WriteUnprocessable(w http.ResponseWriter, r *http.Request, detail string) {
	WriteProblem(w, r, http.StatusUnprocessableEntity, "Unprocessable Entity", detail, false)
}

// WriteTooManyRequests writes a 429 error response with a Retry-After
// header.
func WriteTooManyRequests(w http.ResponseWriter, r *http.Request, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	WriteProblem(w, r, http.StatusTooManyRequests, "Too Many Requests",
		"Rate limit exceeded. Retry after the specified interval.", true)
}

// WriteUpstreamUnavailable writes a 503 for transient upstream failures
// (payment provider or blockchain node unreachable).
func WriteUpstreamUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	w.Header().Set("Retry-After", "5")
	WriteProblem(w, r, http.StatusServiceUnavailable, "Service Unavailable", detail, true)
}

// WriteInternal writes a 500 error response. The err is logged but never
// exposed to the client.
func WriteInternal(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("internal server error", "path", r.URL.Path, "error", err)
	WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error",
		"An unexpected error occurred. Please try again later.", false)
}
