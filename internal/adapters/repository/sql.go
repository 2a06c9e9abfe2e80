package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const insertBatchSize = 500

type sheetModel struct {
	Name      string `gorm:"primaryKey"`
	Header    string `gorm:"not null;default:'[]'"`
	UpdatedAt time.Time
}

func (sheetModel) TableName() string { return "sheets" }

type rowModel struct {
	ID       uint   `gorm:"primaryKey"`
	Sheet    string `gorm:"not null;index:idx_sheet_rows_position,priority:1"`
	Position int    `gorm:"not null;index:idx_sheet_rows_position,priority:2"`
	Cells    string `gorm:"not null"`
}

func (rowModel) TableName() string { return "sheet_rows" }

type sheetSeed struct {
	name   string
	header []string
}

// SQLStore keeps sheets in a SQL database through gorm. Each sheet is a
// registry row plus one row per data row holding its cells as JSON.
type SQLStore struct {
	db   *gorm.DB
	seed []sheetSeed
}

var _ Store = (*SQLStore)(nil)

// OpenSQLite opens (or creates) a SQLite database at path.
func OpenSQLite(ctx context.Context, path string, opts ...SQLOption) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return NewSQLStore(ctx, db, opts...)
}

// NewSQLStore migrates the schema on db and registers seeded sheets.
func NewSQLStore(ctx context.Context, db *gorm.DB, opts ...SQLOption) (*SQLStore, error) {
	s := &SQLStore{db: db}
	for _, opt := range opts {
		opt(s)
	}
	if err := db.WithContext(ctx).AutoMigrate(&sheetModel{}, &rowModel{}); err != nil {
		return nil, fmt.Errorf("migrate sheet tables: %w", err)
	}
	for _, sd := range s.seed {
		if err := ensureSheet(db.WithContext(ctx), sd.name, sd.header); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// ReadRows returns the sheet's data rows in position order.
func (s *SQLStore) ReadRows(ctx context.Context, sheet string) ([][]string, error) {
	db := s.db.WithContext(ctx)
	if _, err := findSheet(db, sheet); err != nil {
		return nil, err
	}
	var models []rowModel
	if err := db.Where("sheet = ?", sheet).Order("position").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	rows := make([][]string, len(models))
	for i, m := range models {
		if err := json.Unmarshal([]byte(m.Cells), &rows[i]); err != nil {
			return nil, fmt.Errorf("decode sheet %s row %d: %w", sheet, m.Position, err)
		}
	}
	return rows, nil
}

// ReplaceRows clears and rewrites the sheet's data rows in one transaction,
// creating the sheet with an empty header if it does not exist.
func (s *SQLStore) ReplaceRows(ctx context.Context, sheet string, rows [][]string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureSheet(tx, sheet, nil); err != nil {
			return err
		}
		if err := tx.Where("sheet = ?", sheet).Delete(&rowModel{}).Error; err != nil {
			return fmt.Errorf("clear sheet %s: %w", sheet, err)
		}
		if err := insertRows(tx, sheet, 0, rows); err != nil {
			return err
		}
		return touchSheet(tx, sheet)
	})
}

// AppendRows adds rows after the sheet's last data row.
func (s *SQLStore) AppendRows(ctx context.Context, sheet string, rows [][]string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := findSheet(tx, sheet); err != nil {
			return err
		}
		var last int
		err := tx.Model(&rowModel{}).
			Where("sheet = ?", sheet).
			Select("COALESCE(MAX(position), -1)").
			Scan(&last).Error
		if err != nil {
			return fmt.Errorf("find end of sheet %s: %w", sheet, err)
		}
		if err := insertRows(tx, sheet, last+1, rows); err != nil {
			return err
		}
		return touchSheet(tx, sheet)
	})
}

// Header returns the sheet's header row.
func (s *SQLStore) Header(ctx context.Context, sheet string) ([]string, error) {
	m, err := findSheet(s.db.WithContext(ctx), sheet)
	if err != nil {
		return nil, err
	}
	var header []string
	if err := json.Unmarshal([]byte(m.Header), &header); err != nil {
		return nil, fmt.Errorf("decode header of sheet %s: %w", sheet, err)
	}
	return header, nil
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func findSheet(db *gorm.DB, sheet string) (sheetModel, error) {
	var m sheetModel
	err := db.Where("name = ?", sheet).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return m, &MissingSheetError{Sheet: sheet}
	}
	if err != nil {
		return m, fmt.Errorf("look up sheet %s: %w", sheet, err)
	}
	return m, nil
}

func ensureSheet(db *gorm.DB, sheet string, header []string) error {
	if header == nil {
		header = []string{}
	}
	raw, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("encode header of sheet %s: %w", sheet, err)
	}
	var m sheetModel
	err = db.Where(sheetModel{Name: sheet}).
		Attrs(sheetModel{Header: string(raw)}).
		FirstOrCreate(&m).Error
	if err != nil {
		return fmt.Errorf("create sheet %s: %w", sheet, err)
	}
	return nil
}

func touchSheet(db *gorm.DB, sheet string) error {
	err := db.Model(&sheetModel{}).Where("name = ?", sheet).Update("updated_at", time.Now().UTC()).Error
	if err != nil {
		return fmt.Errorf("touch sheet %s: %w", sheet, err)
	}
	return nil
}

func insertRows(db *gorm.DB, sheet string, from int, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	models := make([]rowModel, len(rows))
	for i, row := range rows {
		if row == nil {
			row = []string{}
		}
		raw, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("encode sheet %s row %d: %w", sheet, from+i, err)
		}
		models[i] = rowModel{Sheet: sheet, Position: from + i, Cells: string(raw)}
	}
	if err := db.CreateInBatches(models, insertBatchSize).Error; err != nil {
		return fmt.Errorf("write sheet %s: %w", sheet, err)
	}
	return nil
}
