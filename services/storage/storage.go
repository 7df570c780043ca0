// Package storage persists posts in the hot_site and current_site tables
package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"sjsage522/hotissueworker/config"
	"sjsage522/hotissueworker/internal/model"
	"sjsage522/hotissueworker/internal/reconciler"
	"sjsage522/hotissueworker/logger"
	apperrors "sjsage522/hotissueworker/pkg/errors"
)

var tables = map[model.Domain]string{
	model.DomainHot:      "hot_site",
	model.DomainPolitics: "current_site",
}

// Store is a gorm backed post store
type Store struct {
	db     *gorm.DB
	prefix string
	log    *logger.Logger
}

var _ reconciler.Store = (*Store)(nil)

// Open connects to the database configured in cfg
func Open(cfg *config.Config) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN())
	default:
		dialector = mysql.Open(cfg.DSN())
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: newGormLogger()})
	if err != nil {
		return nil, apperrors.NewPersistence(cfg.DBDriver, "open database", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, apperrors.NewPersistence(cfg.DBDriver, "get sql handle", err)
	}
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DBConnTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, apperrors.NewPersistence(cfg.DBDriver, "ping database", err)
	}

	return New(db, cfg.DBTablePrefix), nil
}

// New wraps an open gorm handle
func New(db *gorm.DB, prefix string) *Store {
	return &Store{db: db, prefix: prefix, log: logger.ForStore()}
}

// TableName returns the table holding posts of domain
func (s *Store) TableName(domain model.Domain) string {
	name, ok := tables[domain]
	if !ok {
		name = tables[model.DomainHot]
	}
	return s.prefix + name
}

// Migrate creates both tables and their key indexes when missing
func (s *Store) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	for _, domain := range []model.Domain{model.DomainHot, model.DomainPolitics} {
		table := s.TableName(domain)
		if err := db.Table(table).AutoMigrate(&model.StoredPost{}); err != nil {
			return apperrors.NewPersistence(table, "migrate", err)
		}

		indexes := map[string]string{
			"idx_" + table + "_post_id":      "post_id, community",
			"idx_" + table + "_title_writer": "title, writer",
		}
		for name, columns := range indexes {
			if db.Migrator().HasIndex(table, name) {
				continue
			}
			if err := db.Exec(fmt.Sprintf("CREATE INDEX %s ON %s (%s)", name, table, columns)).Error; err != nil {
				return apperrors.NewPersistence(table, "create index "+name, err)
			}
		}
		s.log.Debug().Str("table", table).Msg("Table ready")
	}
	return nil
}

// WithinTx runs fn in one transaction on the table of domain. The
// transaction is rolled back when fn returns an error.
func (s *Store) WithinTx(ctx context.Context, domain model.Domain, fn func(tx reconciler.Tx) error) error {
	table := s.TableName(domain)
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&Tx{db: db, table: table})
	})
}

// Count returns the number of rows of domain
func (s *Store) Count(ctx context.Context, domain model.Domain) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Table(s.TableName(domain)).Count(&n).Error
	return n, err
}

// Find returns the row for key, or nil when there is none
func (s *Store) Find(ctx context.Context, domain model.Domain, key model.Key) (*model.StoredPost, error) {
	tx := &Tx{db: s.db.WithContext(ctx), table: s.TableName(domain)}
	return tx.Lookup(key)
}

// Close closes the underlying connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Tx is a transaction scoped to one table
type Tx struct {
	db    *gorm.DB
	table string
}

var _ reconciler.Tx = (*Tx)(nil)

// Lookup returns the oldest row matching key
func (t *Tx) Lookup(key model.Key) (*model.StoredPost, error) {
	q := t.db.Table(t.table)
	if key.Mode == model.KeyPostID {
		q = q.Where("post_id = ? AND community = ?", key.First, key.Second)
	} else {
		q = q.Where("title = ? AND writer = ?", key.First, key.Second)
	}

	var rows []model.StoredPost
	if err := q.Order("seq").Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Insert stores row and fills its Seq
func (t *Tx) Insert(row *model.StoredPost) error {
	return t.db.Table(t.table).Create(row).Error
}

// Update sets columns on the row with seq
func (t *Tx) Update(seq int64, columns map[string]any) error {
	return t.db.Table(t.table).Where("seq = ?", seq).Updates(columns).Error
}

// gormWriter sends gorm's slow query and error lines to zerolog
type gormWriter struct {
	log *logger.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.Warn().Msgf(format, args...)
}

func newGormLogger() gormlogger.Interface {
	return gormlogger.New(gormWriter{log: logger.ForStore()}, gormlogger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
