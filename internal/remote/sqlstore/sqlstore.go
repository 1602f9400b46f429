// Package sqlstore keeps the inventory table in a SQL database through gorm.
// Postgres is the production driver; sqlite serves local runs and tests.
package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sort"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fairyhunter13/pantry-pilot/internal/config"
	"github.com/fairyhunter13/pantry-pilot/internal/model"
)

const insertBatchSize = 200

// Row is the persisted form of one inventory item.
type Row struct {
	ID             uint   `gorm:"primaryKey"`
	Position       int    `gorm:"not null;index"`
	Location       string `gorm:"not null"`
	Category       string `gorm:"not null"`
	ItemName       string `gorm:"not null"`
	ItemQuantity   int    `gorm:"not null;default:0"`
	LastAddDate    string
	LastRemoveDate string
	Note           string
	Extra          string
}

func (Row) TableName() string { return "inventory_items" }

// Store implements the remote table contract on a single SQL table. Writes
// replace every row inside one transaction.
type Store struct {
	conn *gorm.DB
}

// Open connects using cfg and migrates the table when enabled.
func Open(ctx context.Context, cfg config.DBConfig) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres", "":
		dialector = postgres.New(postgres.Config{DSN: cfg.DSN, PreferSimpleProtocol: true})
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.Driver)
	}

	gormLogger := gormlogger.New(
		log.New(io.Discard, "", log.LstdFlags),
		gormlogger.Config{LogLevel: gormlogger.Silent},
	)
	conn, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger, SkipDefaultTransaction: true})
	if err != nil {
		return nil, fmt.Errorf("opening db connection: %w", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql db handle: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	st := New(conn)
	if cfg.AutoMigrate {
		if err := st.Migrate(ctx); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
	}
	return st, nil
}

// New wraps an existing connection.
func New(conn *gorm.DB) *Store {
	return &Store{conn: conn}
}

// Migrate creates or updates the inventory table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.conn.WithContext(ctx).AutoMigrate(&Row{}); err != nil {
		return fmt.Errorf("migrating inventory table: %w", err)
	}
	return nil
}

func (s *Store) Read(ctx context.Context) (model.Table, error) {
	var rows []Row
	if err := s.conn.WithContext(ctx).Order("position ASC, id ASC").Find(&rows).Error; err != nil {
		return model.Table{}, fmt.Errorf("reading inventory rows: %w", err)
	}
	t := model.NewTable()
	extraCols := map[string]struct{}{}
	for _, r := range rows {
		it := model.InventoryItem{
			Location:       r.Location,
			Category:       r.Category,
			ItemName:       r.ItemName,
			ItemQuantity:   max(r.ItemQuantity, 0),
			LastAddDate:    r.LastAddDate,
			LastRemoveDate: r.LastRemoveDate,
			Note:           r.Note,
		}
		if r.Extra != "" {
			if err := json.Unmarshal([]byte(r.Extra), &it.Extra); err != nil {
				return model.Table{}, fmt.Errorf("decoding extra columns of row %d: %w", r.ID, err)
			}
			for k := range it.Extra {
				extraCols[k] = struct{}{}
			}
		}
		t.Rows = append(t.Rows, it)
	}
	extras := make([]string, 0, len(extraCols))
	for k := range extraCols {
		extras = append(extras, k)
	}
	sort.Strings(extras)
	t.Columns = append(t.Columns, extras...)
	return t, nil
}

func (s *Store) Write(ctx context.Context, t model.Table) error {
	rows := make([]Row, 0, len(t.Rows))
	for i, it := range t.Rows {
		r := Row{
			Position:       i,
			Location:       it.Location,
			Category:       it.Category,
			ItemName:       it.ItemName,
			ItemQuantity:   it.ItemQuantity,
			LastAddDate:    it.LastAddDate,
			LastRemoveDate: it.LastRemoveDate,
			Note:           it.Note,
		}
		if len(it.Extra) > 0 {
			b, err := json.Marshal(it.Extra)
			if err != nil {
				return fmt.Errorf("encoding extra columns: %w", err)
			}
			r.Extra = string(b)
		}
		rows = append(rows, r)
	}
	return s.withTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Row{}).Error; err != nil {
			return fmt.Errorf("clearing inventory rows: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(rows, insertBatchSize).Error; err != nil {
			return fmt.Errorf("inserting inventory rows: %w", err)
		}
		return nil
	})
}

// withTx executes fn inside a transaction, rolling back on error or panic.
func (s *Store) withTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	tx := s.conn.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

// Close releases the pooled connections.
func (s *Store) Close() error {
	sqlDB, err := s.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
