package shared

import (
	"time"

	"hrassist/internal/domain/leave"
)

// ParseDate accepts RFC3339, YYYY-MM-DD or DD-MM-YYYY.
func ParseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed, nil
	}
	return leave.ParseDate(value)
}
