// Package handlers provides the HTTP handlers of the relay API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/marmos91/dittorelay/pkg/device"
	"github.com/marmos91/dittorelay/pkg/registry"
	"github.com/marmos91/dittorelay/pkg/relay"
)

// Problem represents an RFC 7807 "problem details" response.
// https://tools.ietf.org/html/rfc7807
type Problem struct {
	// Type is a URI reference that identifies the problem type.
	Type string `json:"type,omitempty"`

	// Title is a short, human-readable summary of the problem type.
	Title string `json:"title"`

	// Status is the HTTP status code for this occurrence of the problem.
	Status int `json:"status"`

	// Detail is a human-readable explanation specific to this occurrence.
	Detail string `json:"detail,omitempty"`
}

// ContentTypeProblemJSON is the Content-Type for RFC 7807 problem responses.
const ContentTypeProblemJSON = "application/problem+json"

// WriteProblem writes an RFC 7807 problem response.
func WriteProblem(w http.ResponseWriter, status int, title, detail string) {
	problem := &Problem{
		Type:   "about:blank",
		Title:  title,
		Status: status,
		Detail: detail,
	}

	w.Header().Set("Content-Type", ContentTypeProblemJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}

// BadRequest writes a 400 Bad Request problem response.
func BadRequest(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusBadRequest, "Bad Request", detail)
}

// NotFound writes a 404 Not Found problem response.
func NotFound(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusNotFound, "Not Found", detail)
}

// Conflict writes a 409 Conflict problem response.
func Conflict(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusConflict, "Conflict", detail)
}

// ServiceUnavailable writes a 503 Service Unavailable problem response.
func ServiceUnavailable(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusServiceUnavailable, "Service Unavailable", detail)
}

// InternalServerError writes a 500 Internal Server Error problem response.
func InternalServerError(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusInternalServerError, "Internal Server Error", detail)
}

// writeRelayError maps relay and device errors to problem responses.
func writeRelayError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrRelayNotFound):
		NotFound(w, err.Error())
	case errors.Is(err, relay.ErrRelayClosed), errors.Is(err, device.ErrBusy):
		Conflict(w, err.Error())
	case errors.Is(err, relay.ErrDeviceUnavailable), errors.Is(err, relay.ErrNoDevice):
		ServiceUnavailable(w, err.Error())
	case errors.Is(err, device.ErrInvalidRequest), errors.Is(err, device.ErrOutOfRange):
		BadRequest(w, err.Error())
	case errors.Is(err, device.ErrNotFound):
		NotFound(w, err.Error())
	default:
		InternalServerError(w, err.Error())
	}
}
