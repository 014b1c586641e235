package db

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// slowQueryThreshold marks statements worth a warning in the request log.
const slowQueryThreshold = 250 * time.Millisecond

// queryLog forwards GORM statement traces into the request-scoped logger.
// Only failures and slow statements are written; record-not-found is a normal
// lookup outcome and stays silent.
type queryLog struct {
	logg *logger.Logger
	slow time.Duration
}

func newQueryLog(logg *logger.Logger) gormlogger.Interface {
	if logg == nil {
		return gormlogger.Discard
	}
	return &queryLog{logg: logg, slow: slowQueryThreshold}
}

func (q *queryLog) LogMode(gormlogger.LogLevel) gormlogger.Interface { return q }

func (q *queryLog) Info(ctx context.Context, msg string, _ ...any) { q.logg.Debug(ctx, msg) }

func (q *queryLog) Warn(ctx context.Context, msg string, _ ...any) { q.logg.Warn(ctx, msg) }

func (q *queryLog) Error(ctx context.Context, msg string, _ ...any) {
	q.logg.Error(ctx, msg, nil)
}

func (q *queryLog) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && !errors.Is(err, context.Canceled)
	if !failed && elapsed < q.slow {
		return
	}
	sql, rows := fc()
	fields := map[string]any{
		"sql":         sql,
		"rows":        rows,
		"duration_ms": elapsed.Milliseconds(),
	}
	if failed {
		fields["error"] = err.Error()
		q.logg.Warn(q.logg.WithFields(ctx, fields), "db.query_failed")
		return
	}
	ctx = q.logg.WithFields(ctx, fields)
	q.logg.Warn(ctx, "db.slow_query")
}
