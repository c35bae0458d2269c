package statement

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/Masterminds/squirrel"

	"github.com/gaborage/go-bricks-sqlflow/database/types"
)

// Named binds parameters to :name markers. A name may appear several times in
// the SQL; adding a name twice replaces the earlier value. It is immutable.
type Named struct {
	sql        string
	params     []Param
	converters []Converter
	format     squirrel.PlaceholderFormat
}

// NewNamed starts a named-parameter statement.
func NewNamed(sql string) *Named {
	return &Named{sql: sql, format: squirrel.Question}
}

func (b *Named) clone() *Named {
	c := *b
	c.params = slices.Clone(b.params)
	c.converters = slices.Clone(b.converters)
	return &c
}

// Add sets the parameter name, with or without its leading colon.
func (b *Named) Add(name string, value any, typ types.SQLType) *Named {
	name = strings.TrimPrefix(name, ":")
	c := b.clone()
	p := Param{Name: name, Value: value, Type: typ}
	if i := c.index(name); i >= 0 {
		c.params[i] = p
	} else {
		c.params = append(c.params, p)
	}
	return c
}

// With appends converters, tried after those already registered.
func (b *Named) With(converters ...Converter) *Named {
	c := b.clone()
	c.converters = append(c.converters, converters...)
	return c
}

// Placeholders selects the driver's placeholder style.
func (b *Named) Placeholders(format squirrel.PlaceholderFormat) *Named {
	c := b.clone()
	c.format = format
	return c
}

// Params returns the parameters in the order they were first added.
func (b *Named) Params() []Param {
	return slices.Clone(b.params)
}

func (b *Named) index(name string) int {
	return slices.IndexFunc(b.params, func(p Param) bool { return p.Name == name })
}

// Bind returns the final SQL and driver arguments, one per marker occurrence.
func (b *Named) Bind() (string, []any, error) {
	if b.sql == "" {
		return "", nil, types.NewError(types.ErrBuild, "bind", fmt.Errorf("empty SQL"))
	}
	text, names := parseNamed(b.sql)

	args := make([]any, 0, len(names))
	for pos, name := range names {
		i := b.index(name)
		if i < 0 {
			return "", nil, types.NewError(types.ErrBuild, "bind", fmt.Errorf("no value for parameter :%s", name))
		}
		v, err := bindValue(b.params[i], pos, b.converters)
		if err != nil {
			return "", nil, err
		}
		args = append(args, v)
	}

	query, err := placeholders(b.format, text)
	if err != nil {
		return "", nil, err
	}
	return query, args, nil
}

// Build implements types.StatementBuilder.
func (b *Named) Build(ctx context.Context, conn types.Conn) (types.Statement, error) {
	return prepare(ctx, conn, b)
}
