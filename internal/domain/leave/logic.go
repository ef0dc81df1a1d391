package leave

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const MaxReasonLength = 500

var (
	ErrInvalidDateRange = errors.New("end date before start date")
	ErrInvalidDays      = errors.New("days must be at least 1")
	ErrInvalidDate      = errors.New("invalid date")
	ErrWorkflowConflict = errors.New("leave request already decided")
	ErrNotFound         = errors.New("leave request not found")
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidDecision  = errors.New("decision must be APPROVED or REJECTED")
	ErrReasonTooLong    = fmt.Errorf("reason must be at most %d characters", MaxReasonLength)
	// ErrInsufficientBalance rejects an approval that would take the balance below zero.
	ErrInsufficientBalance = errors.New("insufficient leave balance")
)

var dateLayouts = []string{"2006-01-02", "02-01-2006"}

// ParseDate accepts YYYY-MM-DD and DD-MM-YYYY.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
}

func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// CalculateDays returns inclusive day count between start and end.
func CalculateDays(start, end time.Time) (int, error) {
	start = truncateDay(start)
	end = truncateDay(end)
	if end.Before(start) {
		return 0, ErrInvalidDateRange
	}
	return int(end.Sub(start).Hours()/24) + 1, nil
}

// ParseDecision normalizes a decision case-insensitively.
func ParseDecision(raw string) (Status, error) {
	switch Status(strings.ToUpper(strings.TrimSpace(raw))) {
	case StatusApproved:
		return StatusApproved, nil
	case StatusRejected:
		return StatusRejected, nil
	}
	return "", ErrInvalidDecision
}

// validateApply normalizes in and returns the day count to store.
func validateApply(in *ApplyInput) (int, error) {
	in.EmployeeID = strings.TrimSpace(in.EmployeeID)
	in.Reason = strings.TrimSpace(in.Reason)
	if len(in.Reason) > MaxReasonLength {
		return 0, ErrReasonTooLong
	}
	span, err := CalculateDays(in.Start, in.End)
	if err != nil {
		return 0, err
	}
	if in.Days == nil {
		return span, nil
	}
	if *in.Days < 1 {
		return 0, ErrInvalidDays
	}
	return *in.Days, nil
}

func monthWindow(now time.Time) (time.Time, time.Time) {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
