package statement

import (
	"fmt"
	"reflect"

	"github.com/gaborage/go-bricks-sqlflow/database/types"
)

// Param is one bound parameter.
type Param struct {
	Name  string
	Value any
	Type  types.SQLType
}

func (p Param) label(pos int) string {
	if p.Name != "" {
		return ":" + p.Name
	}
	return fmt.Sprintf("#%d", pos+1)
}

// bindValue resolves the driver value for p.
func bindValue(p Param, pos int, converters []Converter) (any, error) {
	if isNil(p.Value) {
		return p.Type.Null(), nil
	}
	for _, c := range converters {
		if !c.Matches(p.Value, p.Type) {
			continue
		}
		v, err := c.Convert(p.Value, p.Type)
		if err != nil {
			return nil, types.NewError(types.ErrBuild, "bind "+p.label(pos), err)
		}
		return v, nil
	}
	return p.Value, nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
