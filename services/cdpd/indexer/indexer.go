// Package indexer keeps a queryable history of engine events in SQL.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"cdpvault/services/cdpd/stream"
)

// EventRecord is the persisted form of a stream record.
type EventRecord struct {
	ID         string    `gorm:"primaryKey;size:36"`
	Seq        uint64    `gorm:"uniqueIndex"`
	Type       string    `gorm:"index;size:64"`
	Ilk        string    `gorm:"index;size:64"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"index"`
}

// Filter narrows a history query. Zero fields match everything.
type Filter struct {
	Type     string
	Ilk      string
	AfterSeq uint64
	Limit    int
}

const (
	defaultLimit = 100
	MaxLimit     = 1000 // largest page Query returns
)

// Indexer implements stream.Sink. Appended records are written by Run in
// the background.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
	queue  chan stream.Record
}

// Open connects to driver ("sqlite" or "postgres") and migrates the schema.
func Open(driver, dsn string, log *slog.Logger) (*Indexer, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite", "":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("indexer: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open %s: %w", driver, err)
	}
	return New(db, log)
}

// New wraps an open database.
func New(db *gorm.DB, log *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, errors.New("indexer: database required")
	}
	if log == nil {
		log = slog.Default()
	}
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return &Indexer{db: db, logger: log, queue: make(chan stream.Record, 1024)}, nil
}

// Append queues rec for writing. When the queue is full the record is
// written synchronously.
func (ix *Indexer) Append(rec stream.Record) {
	select {
	case ix.queue <- rec:
	default:
		if err := ix.Store(context.Background(), rec); err != nil {
			ix.logger.Error("index event", "seq", rec.Seq, "error", err)
		}
	}
}

// Run drains the queue until ctx is done, then flushes what is left.
func (ix *Indexer) Run(ctx context.Context) {
	for {
		select {
		case rec := <-ix.queue:
			if err := ix.Store(ctx, rec); err != nil {
				ix.logger.Error("index event", "seq", rec.Seq, "error", err)
			}
		case <-ctx.Done():
			ix.drain()
			return
		}
	}
}

func (ix *Indexer) drain() {
	for {
		select {
		case rec := <-ix.queue:
			if err := ix.Store(context.Background(), rec); err != nil {
				ix.logger.Error("index event", "seq", rec.Seq, "error", err)
			}
		default:
			return
		}
	}
}

// Store writes rec immediately.
func (ix *Indexer) Store(ctx context.Context, rec stream.Record) error {
	attrs, err := json.Marshal(rec.Attributes)
	if err != nil {
		return err
	}
	row := EventRecord{
		ID:         rec.ID,
		Seq:        rec.Seq,
		Type:       rec.Type,
		Ilk:        rec.Ilk(),
		Attributes: string(attrs),
		CreatedAt:  rec.Time,
	}
	return ix.db.WithContext(ctx).Create(&row).Error
}

// Query returns matching records in sequence order.
func (ix *Indexer) Query(ctx context.Context, f Filter) ([]stream.Record, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	q := ix.db.WithContext(ctx).Model(&EventRecord{}).Where("seq > ?", f.AfterSeq)
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Ilk != "" {
		q = q.Where("ilk = ?", f.Ilk)
	}
	var rows []EventRecord
	if err := q.Order("seq asc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]stream.Record, 0, len(rows))
	for _, row := range rows {
		rec := stream.Record{ID: row.ID, Seq: row.Seq, Type: row.Type, Time: row.CreatedAt.UTC()}
		if row.Attributes != "" && row.Attributes != "null" {
			if err := json.Unmarshal([]byte(row.Attributes), &rec.Attributes); err != nil {
				return nil, fmt.Errorf("indexer: decode %s: %w", row.ID, err)
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// LastSeq returns the highest stored sequence number.
func (ix *Indexer) LastSeq(ctx context.Context) (uint64, error) {
	var seq *uint64
	if err := ix.db.WithContext(ctx).Model(&EventRecord{}).Select("MAX(seq)").Scan(&seq).Error; err != nil {
		return 0, err
	}
	if seq == nil {
		return 0, nil
	}
	return *seq, nil
}

// Close releases the underlying connection pool.
func (ix *Indexer) Close() error {
	sqlDB, err := ix.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
