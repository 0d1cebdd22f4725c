package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/dgnsrekt/tbbo-ingest/internal/model"
)

// checkpointRow is the SQLite representation. Offsets and timestamps fit in
// int64 for any realistic capture.
type checkpointRow struct {
	FileID      string `gorm:"primaryKey"`
	Offset      int64  `gorm:"not null"`
	LastTsEvent int64
	State       string `gorm:"index;not null"`
	Batches     int64
	Records     int64
	RunID       string
	Error       string
	UpdatedAt   time.Time
}

func (checkpointRow) TableName() string { return "checkpoints" }

// SQLiteStore keeps checkpoints in a single SQLite database (pure Go driver).
type SQLiteStore struct {
	db *gorm.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("checkpoint database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One writer keeps saves strictly ordered.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&checkpointRow{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context, fileID string) (*model.Checkpoint, error) {
	if err := validateID(fileID); err != nil {
		return nil, err
	}

	var row checkpointRow
	err := s.db.WithContext(ctx).First(&row, "file_id = ?", fileID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint: %w", err)
	}
	cp := row.toModel()
	return &cp, nil
}

func (s *SQLiteStore) Save(ctx context.Context, cp model.Checkpoint) error {
	if err := validateID(cp.FileID); err != nil {
		return err
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}

	row := fromModel(cp)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "file_id"}},
			UpdateAll: true,
		}).Create(&row).Error
	})
	if err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]model.Checkpoint, error) {
	var rows []checkpointRow
	if err := s.db.WithContext(ctx).Order("file_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing checkpoints: %w", err)
	}
	out := make([]model.Checkpoint, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (s *SQLiteStore) Reset(ctx context.Context, fileID string) error {
	if err := validateID(fileID); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Where("file_id = ?", fileID).Delete(&checkpointRow{})
	if res.Error != nil {
		return fmt.Errorf("removing checkpoint: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, fileID)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func fromModel(cp model.Checkpoint) checkpointRow {
	return checkpointRow{
		FileID:      cp.FileID,
		Offset:      int64(cp.Offset),
		LastTsEvent: int64(cp.LastTsEvent),
		State:       string(cp.State),
		Batches:     cp.Batches,
		Records:     cp.Records,
		RunID:       cp.RunID,
		Error:       cp.Error,
		UpdatedAt:   cp.UpdatedAt,
	}
}

func (r checkpointRow) toModel() model.Checkpoint {
	return model.Checkpoint{
		FileID:      r.FileID,
		Offset:      uint64(r.Offset),
		LastTsEvent: uint64(r.LastTsEvent),
		State:       model.FileState(r.State),
		Batches:     r.Batches,
		Records:     r.Records,
		RunID:       r.RunID,
		Error:       r.Error,
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}
