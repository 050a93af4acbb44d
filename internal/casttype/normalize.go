package casttype

import "strings"

// normalizeTypeName lowercases a declared type and strips a trailing
// parenthesized parameter list and zone qualifier, e.g.
// "TIMESTAMP(6) WITH TIME ZONE" -> "timestamp", "NUMBER(10,2)" -> "number".
// The zone/precision-carrying timestamp case is re-detected separately by
// isParenthesizedTimestamp so "timestamp(6)" still classifies correctly.
func normalizeTypeName(dataType string) string {
	name := strings.ToLower(strings.TrimSpace(dataType))
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}
	name = strings.TrimSuffix(name, " with time zone")
	name = strings.TrimSuffix(name, " without time zone")
	return strings.TrimSpace(name)
}

// isParenthesizedTimestamp reports whether a normalized name is "timestamp"
// or "time". normalizeTypeName already reduces "timestamp(N)[ with time
// zone]" to "timestamp", and both names are in the family table, so for
// Classify this check never changes the result.
func isParenthesizedTimestamp(name string) bool {
	return name == "timestamp" || name == "time"
}

// HasTimeZone reports whether the original declared type string carries an
// explicit zone qualifier, independent of normalization.
func HasTimeZone(dataType string) bool {
	lower := strings.ToLower(dataType)
	return strings.Contains(lower, "with time zone") ||
		strings.Contains(lower, "timestamptz") ||
		strings.Contains(lower, "datetimeoffset")
}

// PrecisionFromType extracts the declared precision/scale pair from a
// parenthesized type string like "numeric(10,2)" or "timestamp(6)". Returns
// zeros when the type carries no parenthesized parameters.
func PrecisionFromType(dataType string) (precision, scale int, ok bool) {
	start := strings.IndexByte(dataType, '(')
	end := strings.IndexByte(dataType, ')')
	if start < 0 || end < 0 || end <= start+1 {
		return 0, 0, false
	}
	parts := strings.Split(dataType[start+1:end], ",")
	p := parseIntOrZero(strings.TrimSpace(parts[0]))
	s := 0
	if len(parts) > 1 {
		s = parseIntOrZero(strings.TrimSpace(parts[1]))
	}
	return p, s, true
}

func parseIntOrZero(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
