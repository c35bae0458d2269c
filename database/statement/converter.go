package statement

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/gaborage/go-bricks-sqlflow/database/types"
)

// Converter rewrites parameter values before they reach the driver.
type Converter interface {
	Matches(value any, typ types.SQLType) bool
	Convert(value any, typ types.SQLType) (any, error)
}

type funcConverter struct {
	match   func(any, types.SQLType) bool
	convert func(any, types.SQLType) (any, error)
}

func (c funcConverter) Matches(v any, t types.SQLType) bool { return c.match(v, t) }

func (c funcConverter) Convert(v any, t types.SQLType) (any, error) { return c.convert(v, t) }

// NewConverter builds a Converter from a predicate and a conversion.
func NewConverter(match func(any, types.SQLType) bool, convert func(any, types.SQLType) (any, error)) Converter {
	return funcConverter{match: match, convert: convert}
}

// UUIDConverter binds uuid.UUID values as their canonical string.
var UUIDConverter = NewConverter(
	func(v any, _ types.SQLType) bool {
		switch v.(type) {
		case uuid.UUID, *uuid.UUID:
			return true
		}
		return false
	},
	func(v any, _ types.SQLType) (any, error) {
		if p, ok := v.(*uuid.UUID); ok {
			return p.String(), nil
		}
		return v.(uuid.UUID).String(), nil
	},
)

// TimeConverter normalises time.Time values to UTC. DATE parameters are
// truncated to midnight.
var TimeConverter = NewConverter(
	func(v any, _ types.SQLType) bool {
		_, ok := v.(time.Time)
		return ok
	},
	func(v any, t types.SQLType) (any, error) {
		ts := v.(time.Time).UTC()
		if t == types.Date {
			return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC), nil
		}
		return ts, nil
	},
)

// JSONConverter encodes values declared as JSON. Strings and byte slices are
// assumed to be encoded already.
var JSONConverter = NewConverter(
	func(v any, t types.SQLType) bool {
		if t != types.JSON {
			return false
		}
		switch v.(type) {
		case string, []byte, json.RawMessage:
			return false
		}
		return true
	},
	func(v any, _ types.SQLType) (any, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	},
)

// DefaultConverters returns the built-in converters in their standard order.
func DefaultConverters() []Converter {
	return []Converter{UUIDConverter, TimeConverter, JSONConverter}
}
