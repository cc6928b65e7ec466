package store

import (
	"context"
	"sync"
	"time"

	gormlogger "gorm.io/gorm/logger"
)

// checkout tracks one transaction's connection: the last statement it ran
// and the timer that reports it if the connection is held too long.
type checkout struct {
	mu        sync.Mutex
	lastQuery string
	timer     *time.Timer
}

func (c *checkout) Record(sql string) {
	c.mu.Lock()
	c.lastQuery = sql
	c.mu.Unlock()
}

func (c *checkout) LastQuery() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastQuery
}

// Release stops the slow checkout timer. Safe to call more than once.
func (c *checkout) Release() {
	if c.timer != nil {
		c.timer.Stop()
	}
}

// queryRecorder is a gorm logger that remembers each statement on the
// checkout before handing it to the wrapped logger.
type queryRecorder struct {
	gormlogger.Interface
	checkout *checkout
}

func (r *queryRecorder) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	return &queryRecorder{Interface: r.Interface.LogMode(level), checkout: r.checkout}
}

func (r *queryRecorder) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	sql, rows := fc()
	r.checkout.Record(sql)
	r.Interface.Trace(ctx, begin, func() (string, int64) { return sql, rows }, err)
}
