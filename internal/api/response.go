package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
)

// Error codes returned in failure envelopes.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeInsufficientData   = "INSUFFICIENT_DATA"
	CodeInvalidJSON        = "INVALID_REQUEST"
	CodeTooLarge           = "REQUEST_TOO_LARGE"
	CodeMissingTenant      = "MISSING_TENANT"
	CodeInvalidTenant      = "INVALID_TENANT"
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeRateLimited        = "RATE_LIMITED"
	CodeUnavailable        = "SERVICE_UNAVAILABLE"
	CodeInternal           = "INTERNAL_ERROR"
	CodeIncomeUnverifiable = "INCOME_VERIFICATION_FAILED"
	CodeEmploymentNotFound = "EMPLOYMENT_NOT_FOUND"
)

// Envelope wraps every /v1 response.
type Envelope struct {
	Success   bool              `json:"success"`
	Data      any               `json:"data,omitempty"`
	Message   string            `json:"message,omitempty"`
	ErrorCode string            `json:"errorCode,omitempty"`
	Errors    []string          `json:"errors,omitempty"`
	Metadata  *ResponseMetadata `json:"metadata,omitempty"`
}

// ResponseMetadata describes the request that produced a response.
type ResponseMetadata struct {
	RequestID    string    `json:"requestId"`
	Timestamp    time.Time `json:"timestamp"`
	ProcessingMs int64     `json:"processingMs"`
	ModelVersion string    `json:"modelVersion,omitempty"`
}

func newMetadata(r *http.Request) *ResponseMetadata {
	md := &ResponseMetadata{Timestamp: time.Now().UTC()}
	if info := infoFrom(r.Context()); info != nil {
		md.RequestID = info.RequestID
		md.ProcessingMs = time.Since(info.Start).Milliseconds()
	}
	return md
}

// writeData writes a success envelope.
func writeData(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeJSON(w, status, Envelope{
		Success:  true,
		Data:     data,
		Metadata: newMetadata(r),
	})
}

// writeFailure writes a failure envelope.
func writeFailure(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, Envelope{
		Success:   false,
		Message:   message,
		ErrorCode: code,
		Metadata:  newMetadata(r),
	})
}

// writeError maps an error to a status and failure envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		provider *domain.ProviderError
		invalid  *domain.ValidationError
	)

	switch {
	case errors.As(err, &invalid):
		writeFailure(w, r, http.StatusBadRequest, CodeValidation, err.Error())
	case errors.Is(err, domain.ErrInsufficientData):
		writeFailure(w, r, http.StatusBadRequest, CodeInsufficientData, err.Error())
	case errors.As(err, &provider):
		writeFailure(w, r, http.StatusInternalServerError, provider.Code, provider.Message)
	case errors.Is(err, repository.ErrNotFound):
		writeFailure(w, r, http.StatusNotFound, CodeNotFound, "resource not found")
	case errors.Is(err, repository.ErrConflict):
		writeFailure(w, r, http.StatusConflict, CodeConflict, "resource already exists")
	case errors.Is(err, repository.ErrInvalidInput):
		writeFailure(w, r, http.StatusBadRequest, CodeValidation, err.Error())
	default:
		slog.Error("request failed",
			"path", r.URL.Path,
			"request_id", GetRequestID(r.Context()),
			"error", err,
		)
		writeFailure(w, r, http.StatusInternalServerError, CodeInternal, "internal server error")
	}
}

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// decodeJSON reads a request body into v, writing a failure on error.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeFailure(w, r, http.StatusRequestEntityTooLarge, CodeTooLarge, "request body exceeds 1 MiB")
		return false
	}
	writeFailure(w, r, http.StatusBadRequest, CodeInvalidJSON, "invalid JSON request body")
	return false
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}
