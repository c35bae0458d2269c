package statement

import (
	"strconv"
	"strings"
)

// skipOpaque returns the offset just past a quoted literal, quoted identifier
// or comment starting at i, or i when none starts there.
func skipOpaque(sql string, i int) int {
	switch {
	case sql[i] == '\'' || sql[i] == '"':
		quote := sql[i]
		for j := i + 1; j < len(sql); j++ {
			if sql[j] != quote {
				continue
			}
			if j+1 < len(sql) && sql[j+1] == quote {
				j++
				continue
			}
			return j + 1
		}
		return len(sql)
	case strings.HasPrefix(sql[i:], "--"):
		if k := strings.IndexByte(sql[i:], '\n'); k >= 0 {
			return i + k + 1
		}
		return len(sql)
	case strings.HasPrefix(sql[i:], "/*"):
		if k := strings.Index(sql[i+2:], "*/"); k >= 0 {
			return i + 2 + k + 2
		}
		return len(sql)
	}
	return i
}

// countMarkers counts '?' markers outside literals and comments.
func countMarkers(sql string) int {
	n := 0
	for i := 0; i < len(sql); {
		if j := skipOpaque(sql, i); j > i {
			i = j
			continue
		}
		if sql[i] == '?' {
			n++
		}
		i++
	}
	return n
}

// numberMarkers rewrites each '?' outside literals and comments as prefix
// followed by its 1-based position.
func numberMarkers(sql, prefix string) string {
	var b strings.Builder
	b.Grow(len(sql) + 8)
	n := 0
	for i := 0; i < len(sql); {
		if j := skipOpaque(sql, i); j > i {
			b.WriteString(sql[i:j])
			i = j
			continue
		}
		if sql[i] == '?' {
			n++
			b.WriteString(prefix)
			b.WriteString(strconv.Itoa(n))
		} else {
			b.WriteByte(sql[i])
		}
		i++
	}
	return b.String()
}

// parseNamed replaces each :name marker with '?' and returns the names in
// order of appearance. Casts written as '::' are left alone.
func parseNamed(sql string) (string, []string) {
	var b strings.Builder
	b.Grow(len(sql))
	var names []string

	for i := 0; i < len(sql); {
		if j := skipOpaque(sql, i); j > i {
			b.WriteString(sql[i:j])
			i = j
			continue
		}
		if sql[i] != ':' {
			b.WriteByte(sql[i])
			i++
			continue
		}
		if i+1 < len(sql) && sql[i+1] == ':' {
			b.WriteString("::")
			i += 2
			continue
		}
		j := i + 1
		for j < len(sql) && isNameByte(sql[j], j == i+1) {
			j++
		}
		if j == i+1 {
			b.WriteByte(':')
			i++
			continue
		}
		names = append(names, sql[i+1:j])
		b.WriteByte('?')
		i = j
	}
	return b.String(), names
}

func isNameByte(c byte, first bool) bool {
	switch {
	case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return !first
	}
	return false
}
