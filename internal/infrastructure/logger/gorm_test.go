package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func newObservedGormLogger(level gormlogger.LogLevel, opts ...GormLoggerOption) (*GormLogger, *observer.ObservedLogs) {
	core, recorded := observer.New(zapcore.DebugLevel)
	return NewGormLogger(zap.New(core), level, opts...), recorded
}

func fieldMap(entry observer.LoggedEntry) map[string]any {
	return entry.ContextMap()
}

func TestNewGormLogger_Options(t *testing.T) {
	gl, _ := newObservedGormLogger(gormlogger.Info,
		WithSlowThreshold(500*time.Millisecond),
		WithIgnoreRecordNotFoundError(false),
	)

	assert.Equal(t, gormlogger.Info, gl.logLevel)
	assert.Equal(t, 500*time.Millisecond, gl.slowThreshold)
	assert.False(t, gl.ignoreRecordNotFoundError)
}

func TestGormLogger_LogModeReturnsCopy(t *testing.T) {
	gl, _ := newObservedGormLogger(gormlogger.Info)

	warn := gl.LogMode(gormlogger.Warn).(*GormLogger)

	assert.Equal(t, gormlogger.Info, gl.logLevel)
	assert.Equal(t, gormlogger.Warn, warn.logLevel)
}

func TestGormLogger_Trace(t *testing.T) {
	const lockSQL = `SELECT * FROM "subscriptions" WHERE id = '0190' FOR UPDATE`

	tests := []struct {
		name      string
		level     gormlogger.LogLevel
		opts      []GormLoggerOption
		begin     time.Time
		sql       string
		err       error
		wantMsg   string
		wantLevel zapcore.Level
	}{
		{
			name:      "error",
			level:     gormlogger.Error,
			begin:     time.Now(),
			sql:       `INSERT INTO "payments" ...`,
			err:       errors.New("duplicate key"),
			wantMsg:   "SQL error",
			wantLevel: zapcore.ErrorLevel,
		},
		{
			name:    "record not found ignored",
			level:   gormlogger.Error,
			begin:   time.Now(),
			sql:     `SELECT * FROM "plans" WHERE id = ?`,
			err:     gormlogger.ErrRecordNotFound,
			wantMsg: "",
		},
		{
			name:      "canceled is debug",
			level:     gormlogger.Error,
			begin:     time.Now(),
			sql:       lockSQL,
			err:       context.Canceled,
			wantMsg:   "SQL canceled",
			wantLevel: zapcore.DebugLevel,
		},
		{
			name:      "slow query",
			level:     gormlogger.Warn,
			opts:      []GormLoggerOption{WithSlowThreshold(time.Nanosecond)},
			begin:     time.Now().Add(-time.Second),
			sql:       `SELECT * FROM "outbox_events"`,
			wantMsg:   "Slow SQL",
			wantLevel: zapcore.WarnLevel,
		},
		{
			name:      "normal query at info",
			level:     gormlogger.Info,
			begin:     time.Now(),
			sql:       `SELECT * FROM "invoices"`,
			wantMsg:   "SQL query",
			wantLevel: zapcore.DebugLevel,
		},
		{
			name:    "normal query at warn is dropped",
			level:   gormlogger.Warn,
			opts:    []GormLoggerOption{WithSlowThreshold(0)},
			begin:   time.Now().Add(-time.Second),
			sql:     `SELECT * FROM "invoices"`,
			wantMsg: "",
		},
		{
			name:    "silent",
			level:   gormlogger.Silent,
			begin:   time.Now(),
			sql:     `SELECT 1`,
			err:     errors.New("boom"),
			wantMsg: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gl, recorded := newObservedGormLogger(tt.level, tt.opts...)

			gl.Trace(context.Background(), tt.begin, func() (string, int64) { return tt.sql, 1 }, tt.err)

			if tt.wantMsg == "" {
				assert.Empty(t, recorded.All())
				return
			}
			logs := recorded.All()
			require.Len(t, logs, 1)
			assert.Equal(t, tt.wantMsg, logs[0].Message)
			assert.Equal(t, tt.wantLevel, logs[0].Level)
			assert.Equal(t, tt.sql, fieldMap(logs[0])["sql"])
		})
	}
}

func TestGormLogger_TraceMarksRowLocks(t *testing.T) {
	gl, recorded := newObservedGormLogger(gormlogger.Info)

	gl.Trace(context.Background(), time.Now(), func() (string, int64) {
		return `SELECT * FROM "outbox_events" WHERE id = 1 FOR UPDATE SKIP LOCKED`, 1
	}, nil)

	logs := recorded.All()
	require.Len(t, logs, 1)
	assert.Equal(t, true, fieldMap(logs[0])["row_lock"])
}

func TestGormLogger_TraceIncludesRequestID(t *testing.T) {
	gl, recorded := newObservedGormLogger(gormlogger.Info)
	ctx, _ := WithRequestID(context.Background(), zap.NewNop(), "req-42")

	gl.Trace(ctx, time.Now(), func() (string, int64) { return "SELECT 1", 1 }, nil)

	logs := recorded.All()
	require.Len(t, logs, 1)
	assert.Equal(t, "req-42", fieldMap(logs[0])["request_id"])
}

func TestMapGormLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected gormlogger.LogLevel
	}{
		{"silent", gormlogger.Silent},
		{"error", gormlogger.Error},
		{"warn", gormlogger.Warn},
		{"INFO", gormlogger.Info},
		{"debug", gormlogger.Info},
		{"", gormlogger.Warn},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, MapGormLogLevel(tt.level))
		})
	}
}
