package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/ruralpay/ledger/internal/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCreateInput() CreateTransactionInput {
	return CreateTransactionInput{
		Type:           "expense",
		Amount:         dec("10"),
		Currency:       "BRL",
		Description:    "Lunch",
		Date:           day(2024, 6, 1),
		Tags:           []string{"food"},
		IdempotencyKey: "lunch-1",
	}
}

func requireSingleFieldError(t *testing.T, err error, field, tag string) {
	t.Helper()
	require.Error(t, err)
	validationErrors, ok := err.(validator.ValidationErrors)
	require.True(t, ok)
	require.Len(t, validationErrors, 1)
	assert.Equal(t, field, validationErrors[0].Field())
	assert.Equal(t, tag, validationErrors[0].Tag())
}

func TestValidationHelper_CreateTransactionInput(t *testing.T) {
	vh := NewValidationHelper()

	t.Run("valid input", func(t *testing.T) {
		in := validCreateInput()
		assert.NoError(t, vh.ValidateStruct(&in))
	})

	t.Run("currency may be omitted", func(t *testing.T) {
		in := validCreateInput()
		in.Currency = ""
		assert.NoError(t, vh.ValidateStruct(&in))
	})

	tooManyTags := make([]string, 21)
	for i := range tooManyTags {
		tooManyTags[i] = "t"
	}
	cases := []struct {
		name   string
		mutate func(*CreateTransactionInput)
		field  string
		tag    string
	}{
		{"missing description", func(in *CreateTransactionInput) { in.Description = "" }, "Description", "required"},
		{"long description", func(in *CreateTransactionInput) { in.Description = strings.Repeat("x", 501) }, "Description", "max"},
		{"missing idempotency key", func(in *CreateTransactionInput) { in.IdempotencyKey = "" }, "IdempotencyKey", "required"},
		{"short currency", func(in *CreateTransactionInput) { in.Currency = "BR" }, "Currency", "len"},
		{"currency with digits", func(in *CreateTransactionInput) { in.Currency = "BR1" }, "Currency", "alpha"},
		{"negative installments", func(in *CreateTransactionInput) { in.Installments = -1 }, "Installments", "gte"},
		{"too many tags", func(in *CreateTransactionInput) { in.Tags = tooManyTags }, "Tags", "max"},
		{"empty tag", func(in *CreateTransactionInput) { in.Tags = []string{""} }, "Tags[0]", "required"},
		{"long tag", func(in *CreateTransactionInput) { in.Tags = []string{strings.Repeat("x", 51)} }, "Tags[0]", "max"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validCreateInput()
			tc.mutate(&in)
			requireSingleFieldError(t, vh.ValidateStruct(&in), tc.field, tc.tag)
		})
	}
}

func TestValidationHelper_AccountInputs(t *testing.T) {
	vh := NewValidationHelper()
	valid := func() CreateAccountInput {
		return CreateAccountInput{LedgerID: "ledger-1", Name: "Checking", Code: "1.01", Type: "asset", Subtype: "checking"}
	}

	t.Run("valid create", func(t *testing.T) {
		in := valid()
		assert.NoError(t, vh.ValidateStruct(&in))
	})

	t.Run("missing ledger", func(t *testing.T) {
		in := valid()
		in.LedgerID = ""
		requireSingleFieldError(t, vh.ValidateStruct(&in), "LedgerID", "required")
	})

	t.Run("long code", func(t *testing.T) {
		in := valid()
		in.Code = strings.Repeat("9", 51)
		requireSingleFieldError(t, vh.ValidateStruct(&in), "Code", "max")
	})

	t.Run("empty patch is valid", func(t *testing.T) {
		assert.NoError(t, vh.ValidateStruct(&UpdateAccountInput{}))
	})

	t.Run("patch cannot blank the name", func(t *testing.T) {
		empty := ""
		requireSingleFieldError(t, vh.ValidateStruct(&UpdateAccountInput{Name: &empty}), "Name", "min")
	})
}

func TestSendErrorResponse(t *testing.T) {
	t.Run("error response without validation errors", func(t *testing.T) {
		w := httptest.NewRecorder()

		SendErrorResponse(w, "Something went wrong", http.StatusInternalServerError, nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response ErrorResponse
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.Equal(t, "Something went wrong", response.Error)
		assert.Empty(t, response.Kind)
		assert.Nil(t, response.Details)
	})

	t.Run("error response with validation errors", func(t *testing.T) {
		vh := NewValidationHelper()
		invalid := validCreateInput()
		invalid.Description = ""
		invalid.IdempotencyKey = ""
		invalid.Currency = "BR"

		validationErr := vh.ValidateStruct(&invalid)
		assert.Error(t, validationErr)

		w := httptest.NewRecorder()
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, validationErr)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response ErrorResponse
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.Equal(t, "Validation failed", response.Error)
		assert.Equal(t, "ValidationError", response.Kind)
		assert.NotNil(t, response.Details)
		assert.Contains(t, response.Details, "Description")
		assert.Contains(t, response.Details, "IdempotencyKey")
		assert.Equal(t, "Field Validation Failed on 'len' tag", response.Details["Currency"])
	})

	t.Run("bad request error", func(t *testing.T) {
		w := httptest.NewRecorder()

		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response ErrorResponse
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.Equal(t, "Invalid request", response.Error)
	})

	t.Run("unauthorized error", func(t *testing.T) {
		w := httptest.NewRecorder()

		SendErrorResponse(w, "Unauthorized access", http.StatusUnauthorized, nil)

		assert.Equal(t, http.StatusUnauthorized, w.Code)

		var response ErrorResponse
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.Equal(t, "Unauthorized access", response.Error)
		assert.Equal(t, "Unauthenticated", response.Kind)
	})
}

func TestSendError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"invalid amount", apperrors.New(apperrors.KindInvalidAmount, "amount must be positive"), http.StatusBadRequest, "InvalidAmount"},
		{"code immutable", apperrors.ErrCodeImmutable, http.StatusBadRequest, "CodeImmutable"},
		{"cross tenant", fmt.Errorf("lookup: %w", apperrors.ErrForbidden), http.StatusForbidden, "ForbiddenCrossTenant"},
		{"not found", apperrors.ErrNotFound, http.StatusNotFound, "NotFound"},
		{"has transactions", apperrors.ErrHasTransactions, http.StatusConflict, "HasTransactions"},
		{"already reversed", apperrors.ErrAlreadyReversed, http.StatusConflict, "AlreadyReversed"},
		{"integrity", apperrors.ErrIntegrity, http.StatusInternalServerError, "IntegrityViolation"},
		{"unauthenticated", apperrors.ErrUnauthenticated, http.StatusUnauthorized, "Unauthenticated"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			SendError(w, tc.err)

			assert.Equal(t, tc.status, w.Code)
			var response ErrorResponse
			assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, tc.kind, response.Kind)
			assert.NotEmpty(t, response.Error)
		})
	}

	t.Run("internal error hides cause", func(t *testing.T) {
		w := httptest.NewRecorder()
		SendError(w, errors.New("pq: connection refused"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "connection refused")
	})

	t.Run("validation details", func(t *testing.T) {
		vh := NewValidationHelper()
		in := validCreateInput()
		in.Currency = "R$1"
		verr := vh.ValidateStruct(&in)

		w := httptest.NewRecorder()
		SendError(w, apperrors.Wrap(apperrors.KindValidation, verr, "Validation failed"))

		var response ErrorResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, response.Details, "Currency")
	})
}
