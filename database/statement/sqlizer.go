package statement

import (
	"context"
	"slices"

	"github.com/Masterminds/squirrel"

	"github.com/gaborage/go-bricks-sqlflow/database/types"
)

// Sqlizer adapts a squirrel query builder. The builder's own placeholder
// format applies; its arguments are bound untyped through the converters.
type Sqlizer struct {
	query      squirrel.Sqlizer
	converters []Converter
}

// FromSqlizer wraps a squirrel builder such as squirrel.Select(...).
func FromSqlizer(query squirrel.Sqlizer) *Sqlizer {
	return &Sqlizer{query: query}
}

// With appends converters.
func (b *Sqlizer) With(converters ...Converter) *Sqlizer {
	c := *b
	c.converters = append(slices.Clone(b.converters), converters...)
	return &c
}

// Bind implements the binder contract.
func (b *Sqlizer) Bind() (string, []any, error) {
	query, raw, err := b.query.ToSql()
	if err != nil {
		return "", nil, types.NewError(types.ErrBuild, "bind", err)
	}
	params := make([]Param, len(raw))
	for i, v := range raw {
		params[i] = Param{Value: v, Type: types.Other}
	}
	args, err := bindAll(params, b.converters)
	if err != nil {
		return "", nil, err
	}
	return query, args, nil
}

// Build implements types.StatementBuilder.
func (b *Sqlizer) Build(ctx context.Context, conn types.Conn) (types.Statement, error) {
	return prepare(ctx, conn, b)
}
