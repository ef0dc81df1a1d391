package leave

import (
	"errors"
	"testing"
	"time"
)

func TestCalculateDays(t *testing.T) {
	start := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	days, err := CalculateDays(start, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if days != 1 {
		t.Fatalf("expected 1 day, got %v", days)
	}

	end = time.Date(2025, 1, 12, 0, 0, 0, 0, time.UTC)
	days, err = CalculateDays(start, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if days != 3 {
		t.Fatalf("expected 3 days, got %v", days)
	}
}

func TestCalculateDaysInvalid(t *testing.T) {
	start := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 2, 9, 0, 0, 0, 0, time.UTC)

	_, err := CalculateDays(start, end)
	if !errors.Is(err, ErrInvalidDateRange) {
		t.Fatalf("expected ErrInvalidDateRange, got %v", err)
	}
}

func TestCalculateDaysAcrossMonthBoundary(t *testing.T) {
	start := time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	days, err := CalculateDays(start, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if days != 3 {
		t.Fatalf("expected leap-year span of 3 days, got %d", days)
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "2025-11-10", want: "2025-11-10"},
		{raw: "10-11-2025", want: "2025-11-10"},
		{raw: " 2025-01-02 ", want: "2025-01-02"},
		{raw: "2025/11/10", wantErr: true},
		{raw: "2025-13-01", wantErr: true},
		{raw: "", wantErr: true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.raw, func(t *testing.T) {
			got, err := ParseDate(tc.raw)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidDate) {
					t.Fatalf("expected ErrInvalidDate, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if FormatDate(got) != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, FormatDate(got))
			}
		})
	}
}

func TestParseDecision(t *testing.T) {
	for _, raw := range []string{"approved", " Approved", "APPROVED"} {
		if got, err := ParseDecision(raw); err != nil || got != StatusApproved {
			t.Fatalf("expected APPROVED for %q, got %s %v", raw, got, err)
		}
	}
	if got, err := ParseDecision("rejected"); err != nil || got != StatusRejected {
		t.Fatalf("expected REJECTED, got %s %v", got, err)
	}
	for _, raw := range []string{"PENDING", "approve", ""} {
		if _, err := ParseDecision(raw); !errors.Is(err, ErrInvalidDecision) {
			t.Fatalf("expected ErrInvalidDecision for %q, got %v", raw, err)
		}
	}
}

func TestValidateApply(t *testing.T) {
	start := time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 11, 12, 0, 0, 0, 0, time.UTC)
	zero := 0
	two := 2
	long := make([]byte, MaxReasonLength+1)
	for i := range long {
		long[i] = 'x'
	}

	tests := []struct {
		name    string
		in      ApplyInput
		want    int
		wantErr error
	}{
		{name: "inclusive span", in: ApplyInput{Start: start, End: end}, want: 3},
		{name: "explicit days", in: ApplyInput{Start: start, End: end, Days: &two}, want: 2},
		{name: "zero days", in: ApplyInput{Start: start, End: end, Days: &zero}, wantErr: ErrInvalidDays},
		{name: "reversed", in: ApplyInput{Start: end, End: start}, wantErr: ErrInvalidDateRange},
		{name: "long reason", in: ApplyInput{Start: start, End: end, Reason: string(long)}, wantErr: ErrReasonTooLong},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, err := validateApply(&tc.in)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %d days, got %d", tc.want, got)
			}
		})
	}
}
