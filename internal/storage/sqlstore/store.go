// Package sqlstore keeps storage entries in a SQL table through gorm, on
// SQLite for a single machine or Postgres when several machines share state.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/travel-requests/internal/storage"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Entry is one row of kv_entries.
type Entry struct {
	Key       string     `gorm:"column:entry_key;primaryKey"`
	Value     string     `gorm:"column:entry_value;not null"`
	ExpiresAt *time.Time `gorm:"column:expires_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at;not null"`
}

func (Entry) TableName() string {
	return "kv_entries"
}

type Options struct {
	Driver      string
	Source      string
	AutoMigrate bool
}

type Store struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open connects with gorm and, when asked, applies the embedded migrations.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch opts.Driver {
	case DriverSQLite:
		dialector = sqlite.Open(opts.Source)
	case DriverPostgres:
		dialector = postgres.Open(opts.Source)
	default:
		return nil, fmt.Errorf("unsupported sql storage driver %q", opts.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", opts.Driver, err)
	}

	if opts.AutoMigrate {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql handle: %w", err)
		}
		if err := Migrate(ctx, sqlDB, opts.Driver, false); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
	}

	logger.Debug("sql storage opened", "driver", opts.Driver)

	return New(db, logger), nil
}

func New(db *gorm.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger, now: time.Now}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var entry Entry
	err := s.db.WithContext(ctx).Where("entry_key = ?", key).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	if entry.ExpiresAt != nil && !s.now().Before(*entry.ExpiresAt) {
		if err := s.Delete(ctx, key); err != nil {
			s.logger.Debug("failed to purge expired entry", "key", key, "error", err)
		}
		return nil, storage.ErrNotFound
	}

	return []byte(entry.Value), nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := s.now().UTC()
	entry := Entry{
		Key:       key,
		Value:     string(value),
		UpdatedAt: now,
	}
	if ttl > 0 {
		expiresAt := now.Add(ttl)
		entry.ExpiresAt = &expiresAt
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"entry_value", "expires_at", "updated_at"}),
	}).Create(&entry).Error
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("entry_key = ?", key).Delete(&Entry{}).Error
}

// PurgeExpired removes every expired entry and returns how many were dropped.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", s.now().UTC()).
		Delete(&Entry{})
	return result.RowsAffected, result.Error
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ storage.Store = (*Store)(nil)
