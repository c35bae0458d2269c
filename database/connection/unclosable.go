package connection

import "github.com/gaborage/go-bricks-sqlflow/database/types"

// Unclosable hides Close from code that only borrows conn. Wrapping an already
// unclosable connection returns it unchanged.
func Unclosable(conn types.Conn) types.Conn {
	if u, ok := conn.(unclosable); ok {
		return u
	}
	return unclosable{Conn: conn}
}

// IsUnclosable reports whether conn ignores Close.
func IsUnclosable(conn types.Conn) bool {
	_, ok := conn.(unclosable)
	return ok
}

type unclosable struct {
	types.Conn
}

func (unclosable) Close() error { return nil }
