// Package store is the Postgres persistence layer. Every job table shares
// the lifecycle columns of model.JobState; status changes go through
// JobStore, which only writes when the stored status is the expected one.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/fridgechef/api/internal/config"
)

// ErrNotFound is returned by repositories when the row does not exist or
// belongs to another user.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when a write would break a unique index.
var ErrDuplicate = errors.New("record already exists")

type DB struct {
	gorm         *gorm.DB
	log          *zap.Logger
	slowCheckout time.Duration
}

// Open connects to Postgres and sizes the pool from cfg.
func Open(cfg config.DatabaseConfig, log *zap.Logger) (*DB, error) {
	gdb, err := gorm.Open(postgres.Open(cfg.URL), &gorm.Config{
		Logger:                 NewGormLogger(log, 200*time.Millisecond),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxIdleTime(30 * time.Second)

	return New(gdb, log, cfg.SlowCheckout), nil
}

// New wraps an existing gorm handle.
func New(gdb *gorm.DB, log *zap.Logger, slowCheckout time.Duration) *DB {
	if slowCheckout <= 0 {
		slowCheckout = 5 * time.Second
	}
	return &DB{gorm: gdb, log: log, slowCheckout: slowCheckout}
}

func (db *DB) Gorm() *gorm.DB { return db.gorm }

func (db *DB) Ping(ctx context.Context) error {
	sqlDB, err := db.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (db *DB) Close() error {
	sqlDB, err := db.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Repos bundles the repositories operating on one gorm handle, either the
// pool or an open transaction.
type Repos struct {
	Jobs      *JobStore
	Scans     *ScanJobRepository
	Matches   *MatchJobRepository
	Lookups   *LookupJobRepository
	Cookbooks *CookbookRepository
	Inventory *InventoryRepository
}

func newRepos(gdb *gorm.DB) *Repos {
	return &Repos{
		Jobs:      &JobStore{db: gdb},
		Scans:     &ScanJobRepository{db: gdb},
		Matches:   &MatchJobRepository{db: gdb},
		Lookups:   &LookupJobRepository{db: gdb},
		Cookbooks: &CookbookRepository{db: gdb},
		Inventory: &InventoryRepository{db: gdb},
	}
}

// Repos returns repositories running outside any transaction.
func (db *DB) Repos() *Repos { return newRepos(db.gorm) }

// Transact runs fn inside one transaction. The transaction is committed when
// fn returns nil and rolled back otherwise. A transaction kept open longer
// than the slow checkout threshold is logged with the last statement it ran.
func (db *DB) Transact(ctx context.Context, fn func(*Repos) error) error {
	co := db.checkout()
	defer co.Release()

	session := db.gorm.WithContext(ctx).Session(&gorm.Session{
		Logger: &queryRecorder{Interface: db.gorm.Logger, checkout: co},
	})

	return session.Transaction(func(tx *gorm.DB) error {
		return fn(newRepos(tx))
	})
}

func (db *DB) checkout() *checkout {
	co := &checkout{}
	started := time.Now()
	co.timer = time.AfterFunc(db.slowCheckout, func() {
		db.log.Error("transaction held a connection for too long",
			zap.Duration("held", time.Since(started)),
			zap.String("last_query", co.LastQuery()),
		)
	})
	return co
}
