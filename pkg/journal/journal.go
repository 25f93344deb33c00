// Package journal records relay events in a SQL database.
//
// A Journal is a relay.Observer. Events are queued and written by a single
// background goroutine so a slow database never stalls a transition; when
// the queue is full new events are dropped and counted.
package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/marmos91/dittorelay/internal/logger"
	"github.com/marmos91/dittorelay/pkg/relay"
)

// DefaultListLimit is used by List when limit <= 0.
const DefaultListLimit = 100

// Journal is the GORM-backed event journal. SQLite and PostgreSQL share
// the same code.
type Journal struct {
	db     *gorm.DB
	config *Config

	mu      sync.RWMutex
	closed  bool
	events  chan Record
	done    chan struct{}
	dropped atomic.Uint64
}

// New opens the database, migrates the schema and starts the writer.
func New(config *Config) (*Journal, error) {
	if config == nil {
		config = &Config{}
	}
	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid journal configuration: %w", err)
	}

	var dialector gorm.Dialector
	memory := false
	switch config.Type {
	case DatabaseTypeSQLite:
		if config.SQLite.Path == ":memory:" {
			memory = true
			dialector = sqlite.Open(":memory:")
			break
		}
		if err := os.MkdirAll(filepath.Dir(config.SQLite.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
		// WAL for concurrent readers, and wait up to 5s on a locked database.
		dsn := config.SQLite.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		dialector = sqlite.Open(dsn)

	case DatabaseTypePostgres:
		dialector = postgres.Open(config.Postgres.DSN())
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to journal database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying database: %w", err)
	}
	switch {
	case memory:
		// Every connection to ":memory:" is a separate database.
		sqlDB.SetMaxOpenConns(1)
	case config.Type == DatabaseTypePostgres:
		sqlDB.SetMaxOpenConns(config.Postgres.MaxOpenConns)
		sqlDB.SetMaxIdleConns(config.Postgres.MaxIdleConns)
	}

	if err := db.AutoMigrate(&Record{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to run journal migration: %w", err)
	}

	j := &Journal{
		db:     db,
		config: config,
		events: make(chan Record, config.Buffer),
		done:   make(chan struct{}),
	}
	go j.run()

	logger.Info("Journal opened", "type", string(config.Type))
	return j, nil
}

// Observe queues ev for writing. It never blocks.
func (j *Journal) Observe(ev relay.Event) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.closed {
		return
	}
	select {
	case j.events <- FromEvent(ev):
	default:
		if n := j.dropped.Add(1); n == 1 || n%100 == 0 {
			logger.Warn("Journal queue full, dropping events", logger.KeyRelay, ev.Relay, "dropped", n)
		}
	}
}

// Dropped returns the number of events dropped because the queue was full.
func (j *Journal) Dropped() uint64 {
	return j.dropped.Load()
}

func (j *Journal) run() {
	defer close(j.done)
	for rec := range j.events {
		if err := j.db.Create(&rec).Error; err != nil {
			logger.Warn("Journal write failed", logger.KeyRelay, rec.Relay, logger.KeyError, err)
		}
	}
}

// List returns the most recent records of a relay, newest first. An empty
// relay name lists every relay.
func (j *Journal) List(ctx context.Context, relayName string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	q := j.db.WithContext(ctx).Order("at DESC").Limit(limit)
	if relayName != "" {
		q = q.Where("relay = ?", relayName)
	}

	var recs []Record
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list journal records: %w", err)
	}
	return recs, nil
}

// Healthcheck pings the database.
func (j *Journal) Healthcheck(ctx context.Context) error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying database: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close writes every queued event and closes the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.events)
	j.mu.Unlock()

	<-j.done

	sqlDB, err := j.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying database: %w", err)
	}
	return sqlDB.Close()
}

var _ relay.Observer = (*Journal)(nil)
