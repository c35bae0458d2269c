package database

import (
	"github.com/Masterminds/squirrel"

	"github.com/gaborage/go-bricks-sqlflow/database/types"
)

// Re-export database vendor identifiers; the source of truth lives in types.
const (
	PostgreSQL = types.PostgreSQL
	Oracle     = types.Oracle
)

// PlaceholderFormat returns the bind marker style of vendor: $1 for
// PostgreSQL, :1 for Oracle and ? otherwise.
func PlaceholderFormat(vendor types.Vendor) squirrel.PlaceholderFormat {
	switch vendor {
	case types.PostgreSQL:
		return squirrel.Dollar
	case types.Oracle:
		return squirrel.Colon
	default:
		return squirrel.Question
	}
}

// StatementBuilder returns a squirrel builder emitting vendor placeholders,
// ready for statement.FromSqlizer.
func StatementBuilder(vendor types.Vendor) squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(PlaceholderFormat(vendor))
}
