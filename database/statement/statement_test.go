package statement

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/go-bricks-sqlflow/database/connection"
	"github.com/gaborage/go-bricks-sqlflow/database/types"
)

type point struct{ X, Y int }

func TestIndexedBindsEveryParameterAtItsOwnPosition(t *testing.T) {
	query, args, err := NewIndexed("INSERT INTO person (id, name, age) VALUES (?, ?, ?)").
		Add(7, types.Integer).
		Add("ann", types.Varchar).
		Add(nil, types.Integer).
		Placeholders(squirrel.Dollar).
		Bind()

	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO person (id, name, age) VALUES ($1, $2, $3)", query)
	assert.Equal(t, []any{7, "ann", sql.NullInt32{}}, args)
}

func TestIndexedIsImmutable(t *testing.T) {
	base := NewIndexed("SELECT ?, ?").Add(1, types.Integer)
	a := base.Add(2, types.Integer)
	b := base.Add(3, types.Integer)

	assert.Len(t, base.Params(), 1)
	_, argsA, err := a.Bind()
	require.NoError(t, err)
	_, argsB, err := b.Bind()
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2}, argsA)
	assert.Equal(t, []any{1, 3}, argsB)
}

func TestIndexedMarkerMismatch(t *testing.T) {
	_, _, err := NewIndexed("SELECT * FROM t WHERE a = ? AND b = '?'").Bind()
	assert.ErrorIs(t, err, types.ErrBuild)
	assert.ErrorContains(t, err, "1 markers but 0 parameters")

	_, _, err = NewIndexed("").Bind()
	assert.ErrorIs(t, err, types.ErrBuild)
}

func TestRawValueWithoutMatchingConverter(t *testing.T) {
	p := point{X: 1, Y: 2}
	_, args, err := NewIndexed("SELECT ?").With(UUIDConverter, TimeConverter).Add(p, types.Other).Bind()
	require.NoError(t, err)
	assert.Equal(t, []any{p}, args)
}

func TestConvertersFirstMatchWins(t *testing.T) {
	always := func(tag string) Converter {
		return NewConverter(
			func(any, types.SQLType) bool { return true },
			func(any, types.SQLType) (any, error) { return tag, nil },
		)
	}
	_, args, err := NewIndexed("SELECT ?").With(always("first"), always("second")).Add(1, types.Integer).Bind()
	require.NoError(t, err)
	assert.Equal(t, []any{"first"}, args)
}

func TestConverterFailureIsBuildError(t *testing.T) {
	failing := NewConverter(
		func(any, types.SQLType) bool { return true },
		func(any, types.SQLType) (any, error) { return nil, errors.New("unsupported") },
	)
	_, _, err := NewNamed("SELECT :v").With(failing).Add("v", 1, types.Integer).Bind()
	assert.ErrorIs(t, err, types.ErrBuild)
	assert.ErrorContains(t, err, "bind :v")
}

func TestNilBindsTypedNull(t *testing.T) {
	var missing *string
	_, args, err := NewIndexed("SELECT ?, ?, ?").
		With(DefaultConverters()...).
		Add(nil, types.Timestamp).
		Add(missing, types.Varchar).
		Add(nil, types.Boolean).
		Bind()
	require.NoError(t, err)
	assert.Equal(t, []any{sql.NullTime{}, sql.NullString{}, sql.NullBool{}}, args)
}

func TestNilSliceBindsTypedNull(t *testing.T) {
	_, args, err := NewIndexed("SELECT ?, ?").
		With(DefaultConverters()...).
		Add([]byte(nil), types.Varchar).
		Add([]string(nil), types.Other).
		Bind()
	require.NoError(t, err)
	assert.Equal(t, []any{sql.NullString{}, nil}, args)

	_, args, err = NewIndexed("SELECT ?").Add([]byte{}, types.Varchar).Bind()
	require.NoError(t, err)
	assert.Equal(t, []any{[]byte{}}, args, "empty slices are values")
}

func TestNamedParsing(t *testing.T) {
	query, args, err := NewNamed(`SELECT * FROM t
WHERE a = :id OR b = :id
AND c = ':skip' AND d::text = :name -- :comment
/* :block */ AND e = "col:x"`).
		Add(":id", 5, types.BigInt).
		Add("name", "bob", types.Text).
		Placeholders(squirrel.Dollar).
		Bind()

	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM t
WHERE a = $1 OR b = $2
AND c = ':skip' AND d::text = $3 -- :comment
/* :block */ AND e = "col:x"`, query)
	assert.Equal(t, []any{5, 5, "bob"}, args)
}

func TestNamedDuplicateReplaces(t *testing.T) {
	b := NewNamed("UPDATE t SET v = :v").Add("v", 1, types.Integer).Add("v", 2, types.Integer)
	require.Len(t, b.Params(), 1)

	_, args, err := b.Bind()
	require.NoError(t, err)
	assert.Equal(t, []any{2}, args)
}

func TestNamedMissingParameter(t *testing.T) {
	_, _, err := NewNamed("SELECT :a, :b").Add("a", 1, types.Integer).Bind()
	assert.ErrorIs(t, err, types.ErrBuild)
	assert.ErrorContains(t, err, "no value for parameter :b")
}

func TestNamedOraclePlaceholders(t *testing.T) {
	query, _, err := NewNamed("SELECT * FROM t WHERE a = :a AND b = :b").
		Add("a", 1, types.Integer).
		Add("b", 2, types.Integer).
		Placeholders(squirrel.Colon).
		Bind()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE a = :1 AND b = :2", query)
}

func TestPlaceholdersSkipLiterals(t *testing.T) {
	const text = `SELECT * FROM t WHERE name = ? AND note <> 'why?' /* ? */ AND tag = "a?b" AND id = ?`

	query, args, err := NewIndexed(text).
		Add("ann", types.Varchar).
		Add(7, types.Integer).
		Placeholders(squirrel.Dollar).
		Bind()
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM t WHERE name = $1 AND note <> 'why?' /* ? */ AND tag = "a?b" AND id = $2`, query)
	assert.Equal(t, []any{"ann", 7}, args)

	query, _, err = NewNamed("SELECT * FROM t WHERE name = :name AND note <> 'why?' AND id = :id").
		Add("name", "ann", types.Varchar).
		Add("id", 7, types.Integer).
		Placeholders(squirrel.Colon).
		Bind()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE name = :1 AND note <> 'why?' AND id = :2", query)

	query, _, err = NewIndexed("SELECT '?' || ?").Add("x", types.Varchar).Bind()
	require.NoError(t, err)
	assert.Equal(t, "SELECT '?' || ?", query, "question marks are kept as is")
}

func TestFromSqlizer(t *testing.T) {
	id := uuid.New()
	q := squirrel.Select("id", "name").From("person").Where(squirrel.Eq{"id": id}).PlaceholderFormat(squirrel.Dollar)

	query, args, err := FromSqlizer(q).With(UUIDConverter).Bind()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, name FROM person WHERE id = $1", query)
	assert.Equal(t, []any{id.String()}, args)

	_, _, err = FromSqlizer(squirrel.Select()).Bind()
	assert.ErrorIs(t, err, types.ErrBuild)
}

func TestBuiltInConverters(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	ts := time.Date(2024, 3, 1, 1, 30, 0, 0, loc)
	id := uuid.New()

	_, args, err := NewIndexed("SELECT ?, ?, ?, ?, ?").
		With(DefaultConverters()...).
		Add(ts, types.Timestamp).
		Add(ts, types.Date).
		Add(&id, types.UUID).
		Add(map[string]int{"a": 1}, types.JSON).
		Add(`{"b":2}`, types.JSON).
		Bind()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 23, 30, 0, 0, time.UTC), args[0])
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), args[1])
	assert.Equal(t, id.String(), args[2])
	assert.Equal(t, `{"a":1}`, args[3])
	assert.Equal(t, `{"b":2}`, args[4])
}

func newConn(t *testing.T) (types.Conn, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	raw, err := db.Conn(context.Background())
	require.NoError(t, err)
	return connection.Wrap(context.Background(), raw, raw.Close), mock
}

func TestBuildPreparesAndBinds(t *testing.T) {
	conn, mock := newConn(t)
	ctx := context.Background()

	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO person (id, name) VALUES (?, ?)"))
	prep.ExpectExec().WithArgs(1, "ann").WillReturnResult(sqlmock.NewResult(1, 1))
	prep.WillBeClosed()

	stmt, err := NewIndexed("INSERT INTO person (id, name) VALUES (?, ?)").
		Add(1, types.Integer).
		Add("ann", types.Varchar).
		Build(ctx, conn)
	require.NoError(t, err)

	res, err := stmt.Exec(ctx)
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, stmt.Close())
	require.NoError(t, stmt.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildPrepareFailure(t *testing.T) {
	conn, mock := newConn(t)
	mock.ExpectPrepare("SELECT").WillReturnError(errors.New("syntax error"))

	_, err := NewNamed("SELECT :x").Add("x", 1, types.Integer).Build(context.Background(), conn)
	assert.ErrorIs(t, err, types.ErrBuild)
	assert.ErrorContains(t, err, "syntax error")
}
