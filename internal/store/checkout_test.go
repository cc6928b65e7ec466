package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fridgechef/api/internal/model"
)

func TestCheckout_LogsLastQueryWhenHeldTooLong(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	db := New(nil, zap.New(core), 20*time.Millisecond)

	co := db.checkout()
	defer co.Release()
	co.Record("SELECT 1")
	co.Record("UPDATE scan_jobs SET status = 'processing'")

	require.Eventually(t, func() bool { return logs.Len() == 1 }, time.Second, 5*time.Millisecond)
	entry := logs.All()[0]
	assert.Equal(t, "UPDATE scan_jobs SET status = 'processing'", entry.ContextMap()["last_query"])
}

func TestCheckout_ReleaseStopsTimer(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	db := New(nil, zap.New(core), 20*time.Millisecond)

	co := db.checkout()
	co.Release()
	co.Release()

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, logs.Len())
}

type captureLogger struct {
	gormlogger.Interface
	traced []string
}

func (c *captureLogger) Trace(_ context.Context, _ time.Time, fc func() (string, int64), _ error) {
	sql, _ := fc()
	c.traced = append(c.traced, sql)
}

func TestQueryRecorder(t *testing.T) {
	inner := &captureLogger{Interface: gormlogger.Discard}
	co := &checkout{}
	rec := &queryRecorder{Interface: inner, checkout: co}

	rec.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 42", 1 }, nil)

	assert.Equal(t, "SELECT 42", co.LastQuery())
	assert.Equal(t, []string{"SELECT 42"}, inner.traced)

	_, ok := rec.LogMode(gormlogger.Info).(*queryRecorder)
	assert.True(t, ok, "LogMode must keep recording")
}

func TestGormLogger_Trace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewGormLogger(zap.New(core), 50*time.Millisecond)
	sql := func() (string, int64) { return "SELECT * FROM recipes", 3 }
	ctx := context.Background()

	l.Trace(ctx, time.Now(), sql, gorm.ErrRecordNotFound)
	assert.Zero(t, logs.Len(), "missing rows are not errors")

	l.Trace(ctx, time.Now(), sql, errors.New("connection reset"))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[0].Level)

	l.Trace(ctx, time.Now().Add(-time.Second), sql, nil)
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "slow query", logs.All()[1].Message)

	l.Trace(ctx, time.Now(), sql, nil)
	assert.Equal(t, 2, logs.Len(), "fast queries are quiet at warn level")

	l.LogMode(gormlogger.Info).Trace(ctx, time.Now(), sql, nil)
	assert.Equal(t, 3, logs.Len())

	l.LogMode(gormlogger.Silent).Trace(ctx, time.Now(), sql, errors.New("ignored"))
	assert.Equal(t, 3, logs.Len())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("23505")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestJobTable(t *testing.T) {
	for kind, want := range map[model.JobKind]string{
		model.JobKindScan:   "scan_jobs",
		model.JobKindMatch:  "match_jobs",
		model.JobKindLookup: "product_lookup_jobs",
	} {
		got, err := jobTable(kind)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := jobTable("billing")
	assert.Error(t, err)
}
