package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"flashhunt/internal/domain"
	"flashhunt/internal/logging"
	"flashhunt/internal/ports"
)

// SQLiteRepository implements ports.HistoryRepository using GORM
type SQLiteRepository struct {
	db *gorm.DB
}

// Verify interface compliance at compile time
var _ ports.HistoryRepository = (*SQLiteRepository)(nil)

// gormLogger wraps the flashhunt logger for GORM
type gormLogger struct {
	level logger.LogLevel
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	return &gormLogger{level: level}
}

func (l *gormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= logger.Info {
		logging.Logger.Info(fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= logger.Warn {
		logging.Logger.Warn(fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= logger.Error {
		logging.Logger.Error(fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level < logger.Info {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		logging.Logger.Error("gorm query error",
			"error", err,
			"duration", elapsed,
			"sql", sql,
			"rows", rows,
		)
	} else {
		logging.Logger.Debug("gorm query",
			"duration", elapsed,
			"sql", sql,
			"rows", rows,
		)
	}
}

func newGormLogger() logger.Interface {
	if os.Getenv("FLASHHUNT_DEBUG") == "1" {
		return (&gormLogger{}).LogMode(logger.Info)
	}
	return (&gormLogger{}).LogMode(logger.Silent)
}

// NewSQLiteRepository opens (and migrates) the flash history database
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		PrepareStmt: false,
		NowFunc:     func() time.Time { return time.Now().UTC() },
		Logger:      newGormLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for concurrent access
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")
	db.Exec("PRAGMA synchronous=NORMAL")

	if err := db.AutoMigrate(&FlashRecordModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate flash history schema: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Add persists one terminal session outcome
func (r *SQLiteRepository) Add(ctx context.Context, record ports.FlashRecord) error {
	model := FlashRecordModel{
		BuildConfig:    string(record.BuildConfig),
		CreatedAt:      record.CreatedAt,
		EnvName:        record.EnvName,
		FinishedAt:     record.FinishedAt,
		ID:             record.ID,
		Message:        record.Message,
		Status:         string(record.Status),
		TargetDeviceID: record.TargetDeviceID,
		TargetPort:     record.TargetPort,
	}

	return withRetry(func() error {
		return r.db.WithContext(ctx).Create(&model).Error
	}, 3)
}

// List returns the most recent flash attempts, newest first
func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]ports.FlashRecord, error) {
	var models []FlashRecordModel
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list flash history: %w", err)
	}

	records := make([]ports.FlashRecord, 0, len(models))
	for _, m := range models {
		records = append(records, ports.FlashRecord{
			ID:             m.ID,
			BuildConfig:    domain.BuildConfig(m.BuildConfig),
			EnvName:        m.EnvName,
			TargetPort:     m.TargetPort,
			TargetDeviceID: m.TargetDeviceID,
			Status:         domain.SessionStatus(m.Status),
			Message:        m.Message,
			CreatedAt:      m.CreatedAt,
			FinishedAt:     m.FinishedAt,
		})
	}
	return records, nil
}

// Close closes the underlying database connection
func (r *SQLiteRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}
	return sqlDB.Close()
}

// withRetry retries writes that hit a transient sqlite busy/locked error
func withRetry(fn func() error, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}

		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && (sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked) {
			time.Sleep(time.Millisecond * time.Duration(50*(i+1)))
			continue
		}

		return err
	}
	return fmt.Errorf("operation failed after %d retries", maxRetries)
}
