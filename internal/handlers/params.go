package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ruralpay/ledger/internal/apperrors"
	"github.com/ruralpay/ledger/internal/services"
	"github.com/shopspring/decimal"
)

const (
	maxBodyBytes = 1_048_576
	dateLayout   = "2006-01-02"
)

// decodeBody reads exactly one JSON object into dst. It writes the error
// response itself and reports whether the handler may continue.
func decodeBody(w http.ResponseWriter, r *http.Request, tag string, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		log.Printf("[%s] Decode error: %v", tag, err)
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		log.Printf("[%s] Multiple JSON objects detected", tag)
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] encode response: %v", err)
	}
}

// ParseDate accepts an RFC 3339 instant or a bare YYYY-MM-DD date. A bare
// date is the start of that day in UTC, or its last instant when endOfDay is
// set, so that a date used as an upper bound includes the whole day.
func ParseDate(value string, endOfDay bool) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	day, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC 3339 nor YYYY-MM-DD", value)
	}
	if endOfDay {
		return day.Add(24*time.Hour - time.Nanosecond), nil
	}
	return day, nil
}

type queryParams struct {
	r   *http.Request
	err error
}

func query(r *http.Request) *queryParams {
	return &queryParams{r: r}
}

func (q *queryParams) fail(name string, err error) {
	if q.err == nil {
		q.err = apperrors.New(apperrors.KindValidation, "invalid %s: %v", name, err)
	}
}

func (q *queryParams) text(name string) string {
	return strings.TrimSpace(q.r.URL.Query().Get(name))
}

func (q *queryParams) date(name string, endOfDay bool) *time.Time {
	raw := q.text(name)
	if raw == "" {
		return nil
	}
	t, err := ParseDate(raw, endOfDay)
	if err != nil {
		q.fail(name, err)
		return nil
	}
	return &t
}

// requiredDate is date for parameters a report cannot do without.
func (q *queryParams) requiredDate(name string, endOfDay bool) time.Time {
	t := q.date(name, endOfDay)
	if t == nil {
		if q.err == nil {
			q.err = apperrors.New(apperrors.KindValidation, "%s is required", name)
		}
		return time.Time{}
	}
	return *t
}

func (q *queryParams) integer(name string) int {
	raw := q.text(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		q.fail(name, errors.New("not an integer"))
		return 0
	}
	return n
}

func (q *queryParams) flag(name string) *bool {
	raw := q.text(name)
	if raw == "" {
		return nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		q.fail(name, errors.New("not a boolean"))
		return nil
	}
	return &b
}

func (q *queryParams) amount(name string) *decimal.Decimal {
	raw := q.text(name)
	if raw == "" {
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		q.fail(name, errors.New("not a number"))
		return nil
	}
	return &d
}
