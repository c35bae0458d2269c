package tracking

import (
	"strings"
)

const (
	dbVendorPostgreSQL = "postgresql"
	dbVendorOracle     = "oracle"
	dbVendorUnknown    = "other_sql"

	// Maximum length of error descriptions attached to spans.
	maxStatusLen = 2000
)

// TruncateString truncates value to at most maxLen runes, adding "..." when
// space allows. A non-positive maxLen returns value unchanged.
func TruncateString(value string, maxLen int) string {
	if maxLen <= 0 {
		return value
	}
	r := []rune(value)
	if len(r) <= maxLen {
		return value
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// normalizeDBVendor maps configured vendor names onto OTel db.system values.
func normalizeDBVendor(vendor string) string {
	switch strings.ToLower(strings.TrimSpace(vendor)) {
	case "postgres", "pgx", dbVendorPostgreSQL:
		return dbVendorPostgreSQL
	case dbVendorOracle, "go-ora":
		return dbVendorOracle
	default:
		return dbVendorUnknown
	}
}
