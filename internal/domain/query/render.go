package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const noRows = "No matching records found."

// RenderTable formats rows as a plain pipe table. It is the answer when no summarizer is reachable.
func RenderTable(rows Rows) string {
	if len(rows.Values) == 0 {
		return noRows
	}
	var b strings.Builder
	b.WriteString(strings.Join(rows.Columns, " | "))
	for _, r := range rows.Values {
		b.WriteByte('\n')
		cells := make([]string, len(r))
		for i, v := range r {
			cells[i] = formatValue(v)
		}
		b.WriteString(strings.Join(cells, " | "))
	}
	return b.String()
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case string:
		return x
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 {
			return x.Format("2006-01-02")
		}
		return x.UTC().Format(time.RFC3339)
	case float64:
		return formatNumber(x)
	case float32:
		return formatNumber(float64(x))
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int:
		return strconv.Itoa(x)
	}
	return fmt.Sprintf("%v", v)
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
