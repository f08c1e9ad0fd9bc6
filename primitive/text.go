package primitive

import (
	"fmt"
	"strconv"
	"time"
)

// TimeLayout is the ISO-8601 layout used whenever a DateTime is written as
// text.
const TimeLayout = time.RFC3339Nano

// FormatTime renders t as ISO-8601 text.
func FormatTime(t time.Time) string {
	return t.Format(TimeLayout)
}

// Text renders a scalar primitive as text the way text-only formats (xml,
// csv, html) write it. Null renders as the empty string.
func Text(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return FormatTime(val)
	default:
		return fmt.Sprint(val)
	}
}
