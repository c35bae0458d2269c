// Package database ties providers, observers and policies together: a Pool
// lends connections from a provider and starts executions over them.
package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/gaborage/go-bricks-sqlflow/config"
	"github.com/gaborage/go-bricks-sqlflow/database/internal/tracking"
	"github.com/gaborage/go-bricks-sqlflow/database/query"
	"github.com/gaborage/go-bricks-sqlflow/database/transaction"
	"github.com/gaborage/go-bricks-sqlflow/database/types"
	"github.com/gaborage/go-bricks-sqlflow/logger"
)

// PoolOptions configures a Pool.
type PoolOptions struct {
	Logger   logger.Logger
	Observer types.Observer
	// Policy is the policy of executors started by Execute.
	Policy transaction.Policy
	// Vendor selects placeholder style for Statements.
	Vendor types.Vendor
	// StatementTimeout bounds every statement run with QueryOptions.
	StatementTimeout time.Duration
}

// Pool lends connections from a provider and starts executions over them.
type Pool struct {
	provider types.ConnectionProvider
	opts     PoolOptions
	log      logger.Logger

	unregister func()
	closeOnce  sync.Once
	closeErr   error
}

// NewPool wraps provider. The pool owns provider and closes it on Close.
func NewPool(provider types.ConnectionProvider, opts PoolOptions) *Pool {
	opts.Logger = logger.OrNop(opts.Logger)
	return &Pool{
		provider:   provider,
		opts:       opts,
		log:        opts.Logger,
		unregister: func() {},
	}
}

// OpenPool opens the provider configured in cfg.Database and applies the
// execution defaults from cfg.Execution. Executions are observed by the
// default tracking observer and the pool reports its statistics as metrics.
func OpenPool(ctx context.Context, cfg *config.Config, log logger.Logger) (*Pool, error) {
	if cfg == nil {
		return nil, config.NewNotConfiguredError("database")
	}
	log = logger.OrNop(log)

	policy, err := transaction.ParsePolicy(cfg.Execution.Policy)
	if err != nil {
		return nil, config.NewInvalidFieldError("execution.policy", err.Error(), []string{"autocommit", "single", "perevent"})
	}

	provider, err := NewProvider(ctx, &cfg.Database, log)
	if err != nil {
		return nil, err
	}

	pool := NewPool(provider, PoolOptions{
		Logger:           log,
		Observer:         tracking.NewObserver(log, tracking.WithSettings(tracking.NewSettings(cfg))),
		Policy:           policy,
		Vendor:           cfg.Database.Type,
		StatementTimeout: cfg.Execution.StatementTimeout,
	})
	pool.unregister = tracking.RegisterPoolMetrics(nil, provider.DB().Stats, cfg.Database.Type)

	log.Info().
		Str("vendor", cfg.Database.Type).
		Str("policy", policy.String()).
		Msg("Database pool opened")

	return pool, nil
}

// Provider returns the underlying connection provider.
func (p *Pool) Provider() types.ConnectionProvider {
	return p.provider
}

// Policy returns the policy of executors started by Execute.
func (p *Pool) Policy() transaction.Policy {
	return p.opts.Policy
}

// Vendor returns the configured database vendor, if any.
func (p *Pool) Vendor() types.Vendor {
	return p.opts.Vendor
}

// Statements returns a squirrel builder using the vendor's placeholders.
func (p *Pool) Statements() squirrel.StatementBuilderType {
	return StatementBuilder(p.opts.Vendor)
}

// QueryOptions returns the query options derived from the pool settings.
func (p *Pool) QueryOptions() []query.Option {
	opts := []query.Option{query.WithLogger(p.log)}
	if p.opts.StatementTimeout > 0 {
		opts = append(opts, query.WithTimeout(p.opts.StatementTimeout))
	}
	return opts
}

// Execute returns an executor running work on connections from p under the
// pool's policy. Nothing happens until the executor is subscribed.
func Execute[T any](p *Pool, work transaction.UnitOfWork[T]) *transaction.Executor[T] {
	return transaction.NewExecutor(p.provider, work, transaction.Options{
		Policy:   p.opts.Policy,
		Logger:   p.log,
		Observer: p.opts.Observer,
	})
}

// Close releases the provider once; later calls return the first result.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		p.unregister()
		if err := p.provider.Close(); err != nil {
			p.closeErr = fmt.Errorf("failed to close database pool: %w", err)
		}
	})
	return p.closeErr
}
