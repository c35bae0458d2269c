package testing

import (
	"context"
	"sync"

	"github.com/gaborage/go-bricks-sqlflow/database/types"
	"github.com/gaborage/go-bricks-sqlflow/stream"
)

// TestProvider lends TestConns in order. Once the list is exhausted the last
// connection is lent again.
type TestProvider struct {
	mu           sync.Mutex
	conns        []*TestConn
	next         int
	acquireErr   error
	acquisitions int
	closes       int
}

// NewTestProvider creates a provider over conns. With no conns a fresh
// TestConn is created for every acquisition.
func NewTestProvider(conns ...*TestConn) *TestProvider {
	return &TestProvider{conns: conns}
}

// FailAcquire makes every acquisition fail with err.
func (p *TestProvider) FailAcquire(err error) *TestProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acquireErr = err
	return p
}

// Acquire implements types.ConnectionProvider.
func (p *TestProvider) Acquire(context.Context) stream.Stream[types.Conn] {
	return stream.FromFunc(func(context.Context) (types.Conn, error) {
		p.mu.Lock()
		defer p.mu.Unlock()

		p.acquisitions++
		if p.acquireErr != nil {
			return nil, types.NewError(types.ErrAcquisition, "acquire", p.acquireErr)
		}
		if len(p.conns) == 0 {
			return NewTestConn(), nil
		}
		conn := p.conns[min(p.next, len(p.conns)-1)]
		p.next++
		return conn, nil
	})
}

// Close implements types.ConnectionProvider.
func (p *TestProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	return nil
}

// Acquisitions returns the number of acquisition attempts.
func (p *TestProvider) Acquisitions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquisitions
}

// Closes returns the number of Close calls.
func (p *TestProvider) Closes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}

var _ types.ConnectionProvider = (*TestProvider)(nil)
