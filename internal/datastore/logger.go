// Package datastore logging infrastructure for database operations
package datastore

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/palayguard/palayguard-go/internal/logging"
)

var (
	logger          *slog.Logger
	closeLogger     func() error
	serviceLevelVar = new(slog.LevelVar)
)

func init() {
	var err error
	logger, closeLogger, err = logging.NewFileLogger("logs/datastore.log", "datastore", serviceLevelVar)
	if err != nil || logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil)).With("service", "datastore")
		closeLogger = func() error { return nil }
	}
	serviceLevelVar.Set(slog.LevelInfo)
}

// gormSlogAdapter bridges the package slog logger to GORM's logger
// interface. SQL statements are logged at debug level, slow queries and
// query errors at warn.
type gormSlogAdapter struct {
	logger        *slog.Logger
	slowThreshold time.Duration
}

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger() gormlogger.Interface {
	return &gormSlogAdapter{
		logger:        logger,
		slowThreshold: 200 * time.Millisecond,
	}
}

// LogMode returns the adapter itself. The effective level is managed by
// the package level var, not by GORM's setting.
func (a *gormSlogAdapter) LogMode(_ gormlogger.LogLevel) gormlogger.Interface {
	return a
}

// Info logs informational messages at debug level since GORM's info
// output is verbose.
func (a *gormSlogAdapter) Info(_ context.Context, msg string, data ...any) {
	a.logger.Debug(fmt.Sprintf(msg, data...))
}

func (a *gormSlogAdapter) Warn(_ context.Context, msg string, data ...any) {
	a.logger.Warn(fmt.Sprintf(msg, data...))
}

func (a *gormSlogAdapter) Error(_ context.Context, msg string, data ...any) {
	a.logger.Error(fmt.Sprintf(msg, data...))
}

// Trace logs SQL queries and their execution details.
func (a *gormSlogAdapter) Trace(_ context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()

	switch {
	case err != nil && !stderrors.Is(err, gorm.ErrRecordNotFound):
		a.logger.Warn("query error",
			"sql", sql,
			"rows_affected", rows,
			"duration_ms", elapsed.Milliseconds(),
			"error", err)
	case a.slowThreshold > 0 && elapsed > a.slowThreshold:
		a.logger.Warn("slow query",
			"sql", sql,
			"rows_affected", rows,
			"duration_ms", elapsed.Milliseconds(),
			"threshold_ms", a.slowThreshold.Milliseconds())
	default:
		a.logger.Debug("sql query",
			"sql", sql,
			"rows_affected", rows,
			"duration_ms", elapsed.Milliseconds())
	}
}
