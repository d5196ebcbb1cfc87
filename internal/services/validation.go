package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/ruralpay/ledger/internal/apperrors"
)

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string            `json:"error"`             // Error message
	Kind    string            `json:"kind,omitempty"`    // Stable error kind
	Details map[string]string `json:"details,omitempty"` // Validation details
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a new validation helper
func NewValidationHelper() *ValidationHelper {
	return &ValidationHelper{
		validator: validator.New(),
	}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindValidation, apperrors.KindInvalidAmount, apperrors.KindInvalidAccountType,
		apperrors.KindAccountNotFound, apperrors.KindLedgerNotFound,
		apperrors.KindCodeImmutable, apperrors.KindTypeImmutable:
		return http.StatusBadRequest
	case apperrors.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperrors.KindForbidden:
		return http.StatusForbidden
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindDuplicateCode, apperrors.KindHasTransactions, apperrors.KindAlreadyReversed:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func kindForStatus(statusCode int) apperrors.Kind {
	switch statusCode {
	case http.StatusBadRequest:
		return apperrors.KindValidation
	case http.StatusUnauthorized:
		return apperrors.KindUnauthenticated
	case http.StatusForbidden:
		return apperrors.KindForbidden
	case http.StatusNotFound:
		return apperrors.KindNotFound
	default:
		return ""
	}
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	writeError(w, statusCode, ErrorResponse{
		Error:   message,
		Kind:    string(kindForStatus(statusCode)),
		Details: validationDetails(validationErr),
	})
}

// SendError writes err with the status of its kind. Errors without a kind are
// logged and reported as a generic internal error.
func SendError(w http.ResponseWriter, err error) {
	kind := apperrors.KindOf(err)
	if kind == "" {
		log.Printf("[HTTP] internal error: %v", err)
		writeError(w, http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
		return
	}
	status := StatusFor(kind)
	if status == http.StatusInternalServerError {
		log.Printf("[HTTP] %v", err)
	}
	writeError(w, status, ErrorResponse{
		Error:   apperrors.MessageOf(err),
		Kind:    string(kind),
		Details: validationDetails(err),
	})
}

func validationDetails(err error) map[string]string {
	var ve validator.ValidationErrors
	if err == nil || !errors.As(err, &ve) {
		return nil
	}
	details := make(map[string]string, len(ve))
	for _, fe := range ve {
		details[fe.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", fe.Tag())
	}
	return details
}

func writeError(w http.ResponseWriter, statusCode int, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}
