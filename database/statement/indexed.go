package statement

import (
	"context"
	"fmt"
	"slices"

	"github.com/Masterminds/squirrel"

	"github.com/gaborage/go-bricks-sqlflow/database/types"
)

// Indexed binds parameters by position to '?' markers. It is immutable; every
// method returns a new builder.
type Indexed struct {
	sql        string
	params     []Param
	converters []Converter
	format     squirrel.PlaceholderFormat
}

// NewIndexed starts a positional statement.
func NewIndexed(sql string) *Indexed {
	return &Indexed{sql: sql, format: squirrel.Question}
}

func (b *Indexed) clone() *Indexed {
	c := *b
	c.params = slices.Clone(b.params)
	c.converters = slices.Clone(b.converters)
	return &c
}

// Add appends the next positional parameter.
func (b *Indexed) Add(value any, typ types.SQLType) *Indexed {
	c := b.clone()
	c.params = append(c.params, Param{Value: value, Type: typ})
	return c
}

// With appends converters, tried after those already registered.
func (b *Indexed) With(converters ...Converter) *Indexed {
	c := b.clone()
	c.converters = append(c.converters, converters...)
	return c
}

// Placeholders selects the driver's placeholder style.
func (b *Indexed) Placeholders(format squirrel.PlaceholderFormat) *Indexed {
	c := b.clone()
	c.format = format
	return c
}

// Params returns the parameters in binding order.
func (b *Indexed) Params() []Param {
	return slices.Clone(b.params)
}

// Bind returns the final SQL and driver arguments.
func (b *Indexed) Bind() (string, []any, error) {
	if b.sql == "" {
		return "", nil, types.NewError(types.ErrBuild, "bind", fmt.Errorf("empty SQL"))
	}
	if n := countMarkers(b.sql); n != len(b.params) {
		return "", nil, types.NewError(types.ErrBuild, "bind",
			fmt.Errorf("statement has %d markers but %d parameters", n, len(b.params)))
	}
	args, err := bindAll(b.params, b.converters)
	if err != nil {
		return "", nil, err
	}
	query, err := placeholders(b.format, b.sql)
	if err != nil {
		return "", nil, err
	}
	return query, args, nil
}

// Build implements types.StatementBuilder.
func (b *Indexed) Build(ctx context.Context, conn types.Conn) (types.Statement, error) {
	return prepare(ctx, conn, b)
}
