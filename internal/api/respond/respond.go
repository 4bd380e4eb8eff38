package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/ryosuke1832/remind/internal/apperr"
	"github.com/ryosuke1832/remind/internal/upload"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// WriteError writes a standardized error response
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Code:    statusCode,
		Message: message,
	})
}

// WriteBadRequest writes a 400 Bad Request response
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message)
}

// WriteNotFound writes a 404 Not Found response
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message)
}

// WriteInternalError writes a 500 Internal Server Error response
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message)
}

// WriteDomainError maps the error taxonomy onto HTTP statuses.
// Unknown errors are logged and reported as 500 without their text.
func WriteDomainError(w http.ResponseWriter, err error) {
	var (
		ve  apperr.ValidationError
		pe  apperr.PermissionError
		ne  apperr.NotFoundError
		ce  apperr.ConflictError
		ufe *upload.UploadFailedError
	)
	switch {
	case errors.As(err, &ve):
		writeField(w, http.StatusBadRequest, ve.Field, ve.Message)
	case errors.As(err, &pe):
		writeField(w, http.StatusForbidden, pe.Capability, pe.Message)
	case errors.As(err, &ne):
		writeField(w, http.StatusNotFound, ne.Field, ne.Field+" "+ne.Message+" not found")
	case errors.As(err, &ce):
		writeField(w, http.StatusConflict, ce.Field, ce.Message)
	case errors.As(err, &ufe):
		writeField(w, http.StatusBadGateway, ufe.PublicID, ufe.Error())
	default:
		log.Error().Stack().Err(err).Msg("request failed")
		WriteInternalError(w, "internal error")
	}
}

func writeField(w http.ResponseWriter, status int, field, message string) {
	WriteJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Code:    status,
		Field:   field,
		Message: message,
	})
}
