package statement

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/Masterminds/squirrel"

	"github.com/gaborage/go-bricks-sqlflow/database/types"
)

// Prepared is a prepared statement with bound arguments. Close is idempotent.
type Prepared struct {
	stmt  *sql.Stmt
	query string
	args  []any

	closeOnce sync.Once
	closeErr  error
}

// SQL returns the text the statement was prepared with.
func (p *Prepared) SQL() string { return p.query }

// Args returns the bound driver arguments.
func (p *Prepared) Args() []any { return p.args }

// Exec implements types.Statement.
func (p *Prepared) Exec(ctx context.Context) (sql.Result, error) {
	return p.stmt.ExecContext(ctx, p.args...)
}

// Query implements types.Statement.
func (p *Prepared) Query(ctx context.Context) (*sql.Rows, error) {
	return p.stmt.QueryContext(ctx, p.args...)
}

// Close implements types.Statement.
func (p *Prepared) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.stmt.Close()
	})
	return p.closeErr
}

// binder produces final SQL and driver arguments.
type binder interface {
	Bind() (string, []any, error)
}

func prepare(ctx context.Context, conn types.Conn, b binder) (types.Statement, error) {
	query, args, err := b.Bind()
	if err != nil {
		return nil, err
	}
	stmt, err := conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, types.NewError(types.ErrBuild, "prepare", err)
	}
	return &Prepared{stmt: stmt, query: query, args: args}, nil
}

func bindAll(params []Param, converters []Converter) ([]any, error) {
	args := make([]any, len(params))
	for i, p := range params {
		v, err := bindValue(p, i, converters)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

// placeholders renumbers the '?' markers of query in format's style. Markers
// inside literals and comments are left alone, which squirrel's own
// replacement does not do.
func placeholders(format squirrel.PlaceholderFormat, query string) (string, error) {
	if format == nil {
		return query, nil
	}
	sample, err := format.ReplacePlaceholders("?")
	if err != nil {
		return "", types.NewError(types.ErrBuild, "placeholders", err)
	}
	if sample == "?" {
		return query, nil
	}
	prefix, ok := strings.CutSuffix(sample, "1")
	if !ok {
		return "", types.NewError(types.ErrBuild, "placeholders",
			fmt.Errorf("unsupported placeholder format %q", sample))
	}
	return numberMarkers(query, prefix), nil
}
