package postgres

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
)

const ownPkg = "github.com/linnemanlabs/dispatch/internal/postgres."

var queryObserver atomic.Pointer[queryObserverHolder]

type (
	dbStatsKey    struct{}
	httpMethodKey struct{}
	queryKey      struct{}
)

type queryObserverHolder struct{ QueryObserver }

// queryInfo is stashed by TraceQueryStart for TraceQueryEnd.
type queryInfo struct {
	sql     string
	nargs   int
	slotKey string
	start   time.Time
	caller  string
	handler string
}

// ReqDBStats accumulates per-request database query statistics.
type ReqDBStats struct {
	mu            sync.Mutex
	QueryCount    int
	TotalDuration time.Duration
	ErrorCount    int
}

// loggingTracer wraps another pgx.QueryTracer (otelpgx) and logs queries at
// or above minDuration. Failed queries are always logged. Argument values
// are never logged since they carry serialized assignment state; only the
// slot key, when the first argument is one, is included.
type loggingTracer struct {
	inner       pgx.QueryTracer
	minDuration time.Duration
}

// QueryObserver receives per-query metrics (wired by main for Prometheus).
type QueryObserver interface {
	ObserveQuery(ctx context.Context, method, route, outcome string, dur time.Duration)
}

// QueryObserverFunc adapts a plain function to QueryObserver.
type QueryObserverFunc func(ctx context.Context, method, route, outcome string, dur time.Duration)

// ObserveQuery implements QueryObserver.
func (f QueryObserverFunc) ObserveQuery(ctx context.Context, method, route, outcome string, dur time.Duration) {
	f(ctx, method, route, outcome, dur)
}

// AddQuery records a single query execution.
func (s *ReqDBStats) AddQuery(dur time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.QueryCount++
	s.TotalDuration += dur
	if err != nil {
		s.ErrorCount++
	}
}

func (s *ReqDBStats) snapshot() (count, errs int, total time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.QueryCount, s.ErrorCount, s.TotalDuration
}

// SetQueryObserver sets the global query observer (typically a Prometheus histogram).
func SetQueryObserver(o QueryObserver) {
	if o == nil {
		queryObserver.Store(nil)
		return
	}
	queryObserver.Store(&queryObserverHolder{QueryObserver: o})
}

// WithHTTPMethod stores the HTTP method in the context for query metrics labelling.
func WithHTTPMethod(ctx context.Context, method string) context.Context {
	if method == "" {
		return ctx
	}
	return context.WithValue(ctx, httpMethodKey{}, method)
}

// NewReqDBStatsContext returns a new context with an empty ReqDBStats attached.
func NewReqDBStatsContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, dbStatsKey{}, &ReqDBStats{})
}

// ReqDBStatsFromContext extracts the ReqDBStats from the context, if present.
func ReqDBStatsFromContext(ctx context.Context) (*ReqDBStats, bool) {
	s, ok := ctx.Value(dbStatsKey{}).(*ReqDBStats)
	return s, ok
}

func getQueryObserver() QueryObserver {
	h := queryObserver.Load()
	if h == nil {
		return nil
	}
	return h.QueryObserver
}

func httpMethodFromContext(ctx context.Context) string {
	v, _ := ctx.Value(httpMethodKey{}).(string)
	return v
}

// queryLabels returns the method and route labels, defaulting for queries
// issued outside a request (refresh poller, restore at startup).
func queryLabels(ctx context.Context) (method, route string) {
	method, route = httpMethodFromContext(ctx), ""
	if rc := chi.RouteContext(ctx); rc != nil {
		route = rc.RoutePattern()
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "background"
	}
	return method, route
}

// slotKeyArg returns the first argument when it is an assignment slot key.
func slotKeyArg(args []any) string {
	if len(args) == 0 {
		return ""
	}
	if k, ok := args[0].(string); ok && strings.HasPrefix(k, "assignment:") {
		return k
	}
	return ""
}

// wrapQueryTracer wraps an inner tracer with structured logging.
func wrapQueryTracer(inner pgx.QueryTracer, minDuration time.Duration) pgx.QueryTracer {
	return loggingTracer{inner: inner, minDuration: minDuration}
}

func (t loggingTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	qi := &queryInfo{
		sql:     data.SQL,
		nargs:   len(data.Args),
		slotKey: slotKeyArg(data.Args),
		start:   time.Now(),
	}
	qi.caller, qi.handler = findDBCallerAndHandler()

	// inner tracer (otelpgx) opens the span first
	if t.inner != nil {
		ctx = t.inner.TraceQueryStart(ctx, conn, data)
	}
	ctx = context.WithValue(ctx, queryKey{}, qi)

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		attrs := make([]attribute.KeyValue, 0, 3)
		if qi.caller != "" {
			attrs = append(attrs, attribute.String("db.caller", qi.caller))
		}
		if qi.handler != "" {
			attrs = append(attrs, attribute.String("db.handler", qi.handler))
		}
		if qi.slotKey != "" {
			attrs = append(attrs, attribute.String("dispatch.slot.key", qi.slotKey))
		}
		span.SetAttributes(attrs...)
	}

	return ctx
}

func (t loggingTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	if t.inner != nil {
		t.inner.TraceQueryEnd(ctx, conn, data)
	}

	qi, _ := ctx.Value(queryKey{}).(*queryInfo)
	if qi == nil {
		qi = &queryInfo{}
	}

	var dur time.Duration
	if !qi.start.IsZero() {
		dur = time.Since(qi.start)
	}

	if s, ok := ReqDBStatsFromContext(ctx); ok {
		s.AddQuery(dur, data.Err)
	}

	if obs := getQueryObserver(); obs != nil && dur > 0 {
		method, route := queryLabels(ctx)
		outcome := "ok"
		if data.Err != nil {
			outcome = "error"
		}
		obs.ObserveQuery(ctx, method, route, outcome, dur)
	}

	if data.Err == nil && t.minDuration > 0 && dur < t.minDuration {
		return
	}

	fields := queryFields(qi, data, dur)
	L := log.FromContext(ctx)
	if data.Err != nil {
		L.Error(ctx, data.Err, "db query failed", fields...)
		return
	}
	L.Info(ctx, "db query", fields...)
}

func queryFields(qi *queryInfo, data pgx.TraceQueryEndData, dur time.Duration) []any {
	fields := []any{
		"db.statement", qi.sql,
		"db.args.count", qi.nargs,
		"db.duration", dur.Seconds(),
	}
	if qi.slotKey != "" {
		fields = append(fields, "dispatch.slot.key", qi.slotKey)
	}

	if tag := strings.TrimSpace(data.CommandTag.String()); tag != "" {
		if op, _, _ := strings.Cut(tag, " "); op != "" {
			fields = append(fields, "db.operation.name", strings.ToUpper(op))
		}
		fields = append(fields, "pg.command_tag", tag, "db.rows", data.CommandTag.RowsAffected())
	}
	if qi.caller != "" {
		fields = append(fields, "db.caller", qi.caller)
	}
	if qi.handler != "" {
		fields = append(fields, "db.handler", qi.handler)
	}

	var pgErr *pgconn.PgError
	if errors.As(data.Err, &pgErr) {
		fields = append(fields,
			"db.error_code", pgErr.Code,
			"db.error_constraint", pgErr.ConstraintName,
		)
	}
	return fields
}

// findDBCallerAndHandler walks the stack for the frame issuing the query
// (caller) and the next application frame above it (handler).
func findDBCallerAndHandler() (caller, handler string) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	for {
		fr, more := frames.Next()
		fn := fr.Function

		switch {
		case fn == "":
		case strings.HasPrefix(fn, "runtime."),
			strings.Contains(fn, "github.com/jackc/pgx/v5"),
			strings.Contains(fn, "github.com/exaring/otelpgx"),
			strings.Contains(fn, "loggingTracer.TraceQuery"):
		case caller == "":
			caller = shortenFuncName(fn)
		case !strings.Contains(fn, ownPkg):
			return caller, shortenFuncName(fn)
		}

		if !more {
			return caller, handler
		}
	}
}

func shortenFuncName(fn string) string {
	if i := strings.LastIndex(fn, "/"); i >= 0 && i+1 < len(fn) {
		fn = fn[i+1:]
	}
	if dot := strings.Index(fn, "."); dot >= 0 && dot+1 < len(fn) {
		fn = fn[dot+1:]
	}
	return fn
}
