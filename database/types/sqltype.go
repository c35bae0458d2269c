//revive:disable-next-line:var-naming // Package name "types" avoids circular imports.
package types

import (
	"database/sql"
	"fmt"
	"strings"
)

// SQLType is the declared SQL type of a bound parameter. It decides the typed
// null used for nil values and lets converters match on the target type.
type SQLType int

const (
	Other SQLType = iota
	Boolean
	SmallInt
	Integer
	BigInt
	Double
	Numeric
	Char
	Varchar
	Text
	Date
	Timestamp
	Binary
	UUID
	JSON
)

var sqlTypeNames = map[SQLType]string{
	Other:     "OTHER",
	Boolean:   "BOOLEAN",
	SmallInt:  "SMALLINT",
	Integer:   "INTEGER",
	BigInt:    "BIGINT",
	Double:    "DOUBLE",
	Numeric:   "NUMERIC",
	Char:      "CHAR",
	Varchar:   "VARCHAR",
	Text:      "TEXT",
	Date:      "DATE",
	Timestamp: "TIMESTAMP",
	Binary:    "BINARY",
	UUID:      "UUID",
	JSON:      "JSON",
}

func (t SQLType) String() string {
	if name, ok := sqlTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("SQLType(%d)", int(t))
}

// ParseSQLType resolves a case-insensitive type name.
func ParseSQLType(name string) (SQLType, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for t, n := range sqlTypeNames {
		if n == upper {
			return t, nil
		}
	}
	return Other, fmt.Errorf("unknown SQL type %q", name)
}

// Null returns the typed null the driver should receive for this type.
func (t SQLType) Null() any {
	switch t {
	case Boolean:
		return sql.NullBool{}
	case SmallInt:
		return sql.NullInt16{}
	case Integer:
		return sql.NullInt32{}
	case BigInt:
		return sql.NullInt64{}
	case Double:
		return sql.NullFloat64{}
	case Date, Timestamp:
		return sql.NullTime{}
	case Binary:
		return []byte(nil)
	case Numeric, Char, Varchar, Text, UUID, JSON:
		return sql.NullString{}
	default:
		return nil
	}
}
