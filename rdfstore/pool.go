package rdfstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// PoolStats is a snapshot of a pgxpool's resource usage, exported so
// callers (or the metrics registry below) can observe pool pressure.
type PoolStats struct {
	AcquiredConns int32
	IdleConns     int32
	MaxConns      int32
	TotalConns    int32
}

// Engine owns the database resources shared by every space: a tuple-row
// pool for hot write/scan paths and a dict-row pool for read paths that
// consume columns by name, plus the prefix every space's tables share.
//
// There is exactly one Engine per process per database; spaces are logical
// partitions within it, not separate Engines.
type Engine struct {
	GlobalPrefix string
	Logger       *logrus.Logger

	tuplePool *pgxpool.Pool
	dictPool  *pgxpool.Pool

	poolGauge  *prometheus.GaugeVec
	txRegistry *transactionRegistry
}

// EngineOptions configures a new Engine.
type EngineOptions struct {
	GlobalPrefix string
	Logger       *logrus.Logger
	// WarmupConns, if > 0, causes NewEngine to eagerly open and ping this
	// many connections on each pool so the first real query does not pay
	// connect latency.
	WarmupConns int
}

// NewEngine opens both pools against the same DSN and optionally warms
// them up. The tuple pool and dict pool are separate pgxpool.Pool instances
// so their lifecycle (and connection limits) can be tuned independently,
// matching the reference implementation's split between a tuple-row pool
// and a dict-row pool.
func NewEngine(ctx context.Context, dsn string, opts EngineOptions) (*Engine, error) {
	if opts.GlobalPrefix == "" {
		return nil, &ValidationError{Field: "global_prefix", Reason: "must not be empty"}
	}
	tuplePool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("rdfstore: open tuple pool: %w", err)
	}
	dictPool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		tuplePool.Close()
		return nil, fmt.Errorf("rdfstore: open dict pool: %w", err)
	}

	e := &Engine{
		GlobalPrefix: opts.GlobalPrefix,
		Logger:       opts.Logger,
		tuplePool:    tuplePool,
		dictPool:     dictPool,
		poolGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "rdfstore",
			Name:      "pool_connections",
			Help:      "Connection pool gauges for the rdfstore engine.",
		}, []string{"pool", "state"}),
		txRegistry: newTransactionRegistry(),
	}

	if opts.WarmupConns > 0 {
		if err := e.Warmup(ctx, opts.WarmupConns); err != nil {
			e.Close()
			return nil, err
		}
	}
	return e, nil
}

// Warmup opens n connections on each pool and runs a trivial query on each,
// so steady-state traffic does not pay first-connection latency.
func (e *Engine) Warmup(ctx context.Context, n int) error {
	start := time.Now()
	for name, pool := range map[string]*pgxpool.Pool{"tuple": e.tuplePool, "dict": e.dictPool} {
		conns := make([]*pgxpool.Conn, 0, n)
		for i := 0; i < n; i++ {
			c, err := pool.Acquire(ctx)
			if err != nil {
				releaseAll(conns)
				return fmt.Errorf("rdfstore: warmup acquire: %w", err)
			}
			if _, err := c.Exec(ctx, "SELECT 1"); err != nil {
				releaseAll(conns)
				c.Release()
				return fmt.Errorf("rdfstore: warmup ping: %w", err)
			}
			conns = append(conns, c)
		}
		releaseAll(conns)
		if e.Logger != nil {
			withRequestContext(ctx, opLogger(e.Logger, "warmup_pool", name, int64(n), time.Since(start))).Debug("warmed up connection pool")
		}
	}
	return nil
}

func releaseAll(conns []*pgxpool.Conn) {
	for _, c := range conns {
		c.Release()
	}
}

// AcquireTuple acquires a scoped connection from the tuple-row pool. The
// returned release function must be called exactly once, typically via
// defer, on every exit path.
func (e *Engine) AcquireTuple(ctx context.Context) (*pgxpool.Conn, func(), error) {
	conn, err := e.tuplePool.Acquire(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("rdfstore: acquire tuple connection: %w", err)
	}
	return conn, conn.Release, nil
}

// AcquireDict acquires a scoped connection from the dict-row pool, intended
// for reads that will be collected into map[string]any rows (see
// CollectDictRows).
func (e *Engine) AcquireDict(ctx context.Context) (*pgxpool.Conn, func(), error) {
	conn, err := e.dictPool.Acquire(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("rdfstore: acquire dict connection: %w", err)
	}
	return conn, conn.Release, nil
}

// CollectDictRows materializes pgx.Rows as a slice of string-keyed maps,
// mirroring the reference implementation's dict_row connection factory.
func CollectDictRows(rows pgx.Rows) ([]map[string]interface{}, error) {
	defer rows.Close()
	fields := rows.FieldDescriptions()
	var out []map[string]interface{}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(fields))
		for i, f := range fields {
			row[string(f.Name)] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// TuplePool exposes the underlying tuple-row pool for advanced callers
// (transactions, batch operations, LISTEN/NOTIFY connections).
func (e *Engine) TuplePool() *pgxpool.Pool { return e.tuplePool }

// DictPool exposes the underlying dict-row pool.
func (e *Engine) DictPool() *pgxpool.Pool { return e.dictPool }

// Stats reports current resource usage for both pools.
func (e *Engine) Stats() map[string]PoolStats {
	ts := e.tuplePool.Stat()
	ds := e.dictPool.Stat()
	stats := map[string]PoolStats{
		"tuple": {AcquiredConns: ts.AcquiredConns(), IdleConns: ts.IdleConns(), MaxConns: ts.MaxConns(), TotalConns: ts.TotalConns()},
		"dict":  {AcquiredConns: ds.AcquiredConns(), IdleConns: ds.IdleConns(), MaxConns: ds.MaxConns(), TotalConns: ds.TotalConns()},
	}
	if e.poolGauge != nil {
		for name, s := range stats {
			e.poolGauge.WithLabelValues(name, "acquired").Set(float64(s.AcquiredConns))
			e.poolGauge.WithLabelValues(name, "idle").Set(float64(s.IdleConns))
		}
	}
	return stats
}

// Collector returns the Prometheus collector for this engine's pool
// gauges, for registration with an application's metrics registry.
func (e *Engine) Collector() prometheus.Collector { return e.poolGauge }

// RollbackActiveTransactions rolls back every transaction this engine has
// outstanding. Call during graceful shutdown before Close.
func (e *Engine) RollbackActiveTransactions(ctx context.Context) {
	e.txRegistry.RollbackAll(ctx)
}

// Close releases both pools. Safe to call once; further use of the Engine
// after Close is undefined.
func (e *Engine) Close() {
	if e.tuplePool != nil {
		e.tuplePool.Close()
	}
	if e.dictPool != nil {
		e.dictPool.Close()
	}
}
