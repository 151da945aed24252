// Package database holds the Postgres connection pool backing append-only
// audit persistence, adapted from the teacher's internal/database.Connection:
// the audit store is the one piece of the pipeline that talks to a real
// database, and it does so only after a response has already been formed.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/genomax/protocol-engine/internal/domain"
)

// Pool wraps a pgxpool.Pool with the lifecycle logging the rest of the
// process uses.
type Pool struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
}

// auditColumns is the set of columns migration 000001 creates. ValidateSchema
// checks against this list rather than trusting that Ping succeeding means
// the audit store is actually usable.
var auditColumns = []string{"run_id", "stage", "input_hash", "output_hash", "counts", "created_at"}

// Connect builds a connection pool from a DatabaseConfig, retrying the
// initial ping with exponential backoff since the audit database commonly
// finishes booting after this process during a cold container start. An
// unreachable audit database at boot is a warning, not a fatal error (see
// cmd/server/main.go); a caller that needs it fatal should inspect the
// returned error itself.
func Connect(ctx context.Context, cfg domain.DatabaseConfig, log *logrus.Logger) (*Pool, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Database, cfg.Username, cfg.Password, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("database: parsing connection config: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxOpenConns
	poolConfig.MinConns = cfg.MaxIdleConns
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime

	pgxp, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("database: creating connection pool: %w", err)
	}

	expBackoff := backoff.NewExponentialBackOff()
	if cfg.ConnectBackoff > 0 {
		expBackoff.InitialInterval = cfg.ConnectBackoff
	}
	retryPolicy := backoff.WithContext(
		backoff.WithMaxRetries(expBackoff, uint64(maxInt(cfg.ConnectMaxRetries, 0))),
		ctx,
	)
	attempt := 0
	pingErr := backoff.RetryNotify(func() error {
		attempt++
		return pgxp.Ping(ctx)
	}, retryPolicy, func(err error, wait time.Duration) {
		log.WithError(err).WithFields(logrus.Fields{"attempt": attempt, "retry_in": wait}).
			Warn("audit database ping failed, retrying")
	})
	if pingErr != nil {
		pgxp.Close()
		return nil, fmt.Errorf("database: pinging audit store after %d attempts: %w", attempt, pingErr)
	}

	log.WithFields(logrus.Fields{
		"host": cfg.Host, "port": cfg.Port, "database": cfg.Database,
		"max_conns": cfg.MaxOpenConns, "min_conns": cfg.MaxIdleConns, "attempts": attempt,
	}).Info("audit database connection pool established")

	return &Pool{pool: pgxp, log: log}, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ValidateSchema confirms the audit_records table carries every column the
// repository writes and reads, distinguishing "not yet migrated" from a
// transient connectivity failure. cmd/server/main.go treats a failure here
// the same as an unreachable database: audit persistence is disabled, never
// fatal to serving protocol requests.
func (p *Pool) ValidateSchema(ctx context.Context) error {
	rows, err := p.pool.Query(ctx,
		`SELECT column_name FROM information_schema.columns WHERE table_name = 'audit_records'`)
	if err != nil {
		return fmt.Errorf("database: querying audit_records schema: %w", err)
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return fmt.Errorf("database: reading audit_records schema: %w", err)
		}
		present[col] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("database: reading audit_records schema: %w", err)
	}

	var missing []string
	for _, col := range auditColumns {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("database: audit_records missing columns %v, run migrations", missing)
	}
	return nil
}

// Raw exposes the underlying pgxpool.Pool for repository construction.
func (p *Pool) Raw() *pgxpool.Pool {
	return p.pool
}

// Close releases the pool's connections.
func (p *Pool) Close() {
	if p.pool != nil {
		p.pool.Close()
		p.log.Info("audit database connection pool closed")
	}
}

// Health reports whether the pool can currently reach the database.
func (p *Pool) Health(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Stats returns connection pool statistics for diagnostics.
func (p *Pool) Stats() *pgxpool.Stat {
	return p.pool.Stat()
}
