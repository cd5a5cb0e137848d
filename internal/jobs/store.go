package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store persists jobs in an embedded SQLite file.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// OpenStore opens (or creates) the database at path and migrates the schema.
// WAL lets readers run next to the single writer, busy_timeout bounds lock
// waits, and synchronous(FULL) makes every commit durable before it returns.
func OpenStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)"
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// one connection per process; other processes wait on busy_timeout
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Job{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Create(ctx context.Context, j *Job) error {
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&Job{}).Where("id = ?", j.ID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrDuplicateID
		}
		return tx.Create(j).Error
	})
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrDuplicateID
	}
	return err
}

func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := s.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &j, nil
}

// Update writes every mutable column of j in one statement. Request
// parameters and created_at are left alone.
func (s *Store) Update(ctx context.Context, j *Job) error {
	j.UpdatedAt = time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", j.ID).
		Updates(map[string]any{
			"status":                 j.Status,
			"progress_overall":       j.ProgressOverall,
			"progress_phase":         j.ProgressPhase,
			"progress_phase_pct":     j.ProgressPhasePct,
			"started_at":             j.StartedAt,
			"completed_at":           j.CompletedAt,
			"result_text":            j.ResultText,
			"detected_language":      j.DetectedLanguage,
			"speaker_count":          j.SpeakerCount,
			"diarized":               j.Diarized,
			"error_message":          j.ErrorMessage,
			"diarization_error":      j.DiarizationError,
			"diarization_error_code": j.DiarizationErrorCode,
			"updated_at":             j.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActionable returns queued and downloading jobs, oldest first.
func (s *Store) ListActionable(ctx context.Context) ([]Job, error) {
	var out []Job
	if err := s.db.WithContext(ctx).
		Where("status IN ?", []Status{StatusQueued, StatusDownloading}).
		Order("created_at ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// NextActionable returns the oldest actionable job, or nil when there is none.
func (s *Store) NextActionable(ctx context.Context) (*Job, error) {
	var out []Job
	if err := s.db.WithContext(ctx).
		Where("status IN ?", []Status{StatusQueued, StatusDownloading}).
		Order("created_at ASC, id ASC").
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

// ListAll returns jobs newest first, optionally restricted to statuses.
func (s *Store) ListAll(ctx context.Context, statuses ...Status) ([]Job, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC, id DESC")
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var out []Job
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
