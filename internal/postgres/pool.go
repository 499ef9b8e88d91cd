// Package postgres builds the instrumented pgx pool used by the slot store
// and the per-request query accounting around it.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/go-core/log"
)

// PoolConfig configures NewPool.
type PoolConfig struct {
	URL      string
	MaxConns int32
	// SlowQuery is the logging threshold. Zero logs every query.
	SlowQuery time.Duration
}

// NewPool parses c.URL, installs the otel + logging tracer, connects and
// pings. The caller owns the returned pool.
func NewPool(ctx context.Context, c PoolConfig) (*pgxpool.Pool, error) {
	if c.URL == "" {
		return nil, errors.New("postgres: database URL is required")
	}
	pc, err := pgxpool.ParseConfig(c.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if c.MaxConns > 0 {
		pc.MaxConns = c.MaxConns
	}
	pc.ConnConfig.Tracer = wrapQueryTracer(otelpgx.NewTracer(), c.SlowQuery)

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.NewWithConfig: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// RequestStats attaches a ReqDBStats and the HTTP method to each request
// context and logs the totals when the request touched the database.
func RequestStats(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := NewReqDBStatsContext(r.Context())
		ctx = WithHTTPMethod(ctx, r.Method)
		next.ServeHTTP(w, r.WithContext(ctx))

		s, _ := ReqDBStatsFromContext(ctx)
		count, errs, total := s.snapshot()
		if count == 0 {
			return
		}
		log.FromContext(ctx).Info(ctx, "request db stats",
			"db.queries", count,
			"db.duration", total.Seconds(),
			"db.errors", errs,
		)
	})
}
