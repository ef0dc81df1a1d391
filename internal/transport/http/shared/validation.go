package shared

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"hrassist/internal/transport/http/api"
)

// ValidationIssue names one rejected field. Batch rows use indexed names such as "rows[2].hire_date".
type ValidationIssue struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Validator collects issues so a handler can report every bad field in one response.
type Validator struct {
	issues []ValidationIssue
	seen   map[ValidationIssue]struct{}
}

func NewValidator() *Validator {
	return &Validator{seen: map[ValidationIssue]struct{}{}}
}

// Add records an issue once; repeats of the same field and reason are ignored.
func (v *Validator) Add(field, reason string) {
	issue := ValidationIssue{Field: strings.TrimSpace(field), Reason: strings.TrimSpace(reason)}
	if v == nil || issue.Reason == "" {
		return
	}
	if _, dup := v.seen[issue]; dup {
		return
	}
	v.seen[issue] = struct{}{}
	v.issues = append(v.issues, issue)
}

// Required returns the trimmed value.
func (v *Validator) Required(field, value, reason string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		v.Add(field, reason)
	}
	return value
}

// Enum matches value case-insensitively and returns the allowed spelling. An empty value is left
// to Required and returns "".
func (v *Validator) Enum(field, value string, allowed []string, reason string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	for _, candidate := range allowed {
		if strings.EqualFold(value, candidate) {
			return candidate
		}
	}
	v.Add(field, reason)
	return ""
}

func (v *Validator) MaxLength(field, value string, limit int) {
	if len(strings.TrimSpace(value)) > limit {
		v.Add(field, "must be at most "+strconv.Itoa(limit)+" characters")
	}
}

func (v *Validator) PositiveID(field string, id int64) {
	if id < 1 {
		v.Add(field, "must be a positive id")
	}
}

// AtLeast checks an optional count; nil means the caller lets the server derive it.
func (v *Validator) AtLeast(field string, value *int, min int) {
	if value != nil && *value < min {
		v.Add(field, "must be at least "+strconv.Itoa(min))
	}
}

// Count bounds the number of items in a batch payload.
func (v *Validator) Count(field string, n, min, max int) {
	switch {
	case n < min:
		v.Add(field, "must contain at least "+strconv.Itoa(min)+" item(s)")
	case n > max:
		v.Add(field, "must contain at most "+strconv.Itoa(max)+" items")
	}
}

func (v *Validator) Date(field, raw string) (time.Time, bool) {
	parsed, err := ParseDate(strings.TrimSpace(raw))
	if err != nil || parsed.IsZero() {
		v.Add(field, "must be a valid date in YYYY-MM-DD or DD-MM-YYYY format")
		return time.Time{}, false
	}
	return parsed, true
}

func (v *Validator) DateOrder(startField string, start time.Time, endField string, end time.Time) {
	if start.IsZero() || end.IsZero() {
		return
	}
	if end.Before(start) {
		v.Add(startField, "must be on or before "+endField)
		v.Add(endField, "must be on or after "+startField)
	}
}

func (v *Validator) HasIssues() bool {
	return v != nil && len(v.issues) > 0
}

// Issues returns a sorted copy so responses are stable regardless of check order.
func (v *Validator) Issues() []ValidationIssue {
	if !v.HasIssues() {
		return nil
	}
	out := append([]ValidationIssue(nil), v.issues...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Field != out[j].Field {
			return out[i].Field < out[j].Field
		}
		return out[i].Reason < out[j].Reason
	})
	return out
}

func (v *Validator) Reject(w http.ResponseWriter, requestID string) bool {
	if !v.HasIssues() {
		return false
	}
	FailValidation(w, requestID, v.Issues())
	return true
}

func FailValidation(w http.ResponseWriter, requestID string, issues []ValidationIssue) {
	api.FailWithDetails(
		w,
		http.StatusBadRequest,
		"validation_error",
		"payload validation failed",
		map[string]any{"fields": issues},
		requestID,
	)
}
