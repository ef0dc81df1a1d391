package shared

import (
	"net/url"
	"strconv"
)

type Pagination struct {
	Limit  int
	Offset int
}

// Page reads ?limit= and ?offset=. Malformed values are recorded as issues; a limit above maxLimit is clamped.
func (v *Validator) Page(q url.Values, defaultLimit, maxLimit int) Pagination {
	page := Pagination{Limit: defaultLimit}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			v.Add("limit", "must be a positive integer")
		} else {
			page.Limit = n
		}
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			v.Add("offset", "must be a non-negative integer")
		} else {
			page.Offset = n
		}
	}
	if maxLimit > 0 && page.Limit > maxLimit {
		page.Limit = maxLimit
	}
	return page
}

// Cursor reads a notification id cursor; absent means from the start.
func (v *Validator) Cursor(q url.Values, name string) int64 {
	raw := q.Get(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		v.Add(name, "must be a non-negative id")
		return 0
	}
	return n
}
