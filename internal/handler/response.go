package handler

// RESPONSE HELPERS:
// Every endpoint answers with a flat JSON object. Failures always carry an
// "error" field; success bodies carry "error": "" so the frontend can test
// a single field.
//
// STATUS MAPPING:
//
//	validation / malformed body        → 400
//	uniqueness conflict                → 409
//	not found, expired, wrong code,    → 200 with {"error": ...}
//	wrong password, business refusal
//	email delivery failure             → 500 with a fixed message
//	anything else                      → 500, logged, never echoed

import (
	"errors"
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/sakif/showdex/internal/apperror"
)

const msgUnexpected = "An unexpected error occurred."

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// MessageResponse is the body of the account flows that only report text.
type MessageResponse struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error"`
}

// writeJSON sends data with the given status. Headers must be set before
// the body, which render.JSON takes care of.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	render.Status(r, status)
	render.JSON(w, r, data)
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperror.ErrNotFound),
		errors.Is(err, apperror.ErrExpired),
		errors.Is(err, apperror.ErrInvalidCredential),
		errors.Is(err, apperror.ErrRejected):
		return http.StatusOK
	}
	return http.StatusInternalServerError
}

// writeError maps err to a status and a client-safe message. Errors that are
// not *AppError are logged with the request ID and replaced by a generic
// message; their text never reaches the client.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("requestID", chimiddleware.GetReqID(r.Context())),
			slog.String("error", err.Error()),
		)
		writeJSON(w, r, http.StatusInternalServerError, ErrorResponse{Error: msgUnexpected})
		return
	}

	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("requestID", chimiddleware.GetReqID(r.Context())),
			slog.String("error", err.Error()),
		)
	}
	writeJSON(w, r, status, ErrorResponse{Error: appErr.Message})
}
