package ports

import (
	"context"
	"time"

	"flashhunt/internal/domain"
)

// FlashRecord is one finished deployment attempt, kept for the
// history command.
type FlashRecord struct {
	ID             string
	BuildConfig    domain.BuildConfig
	EnvName        string
	TargetPort     string
	TargetDeviceID string
	Status         domain.SessionStatus
	Message        string
	CreatedAt      time.Time
	FinishedAt     time.Time
}

// HistoryRepository persists terminal session outcomes
type HistoryRepository interface {
	Add(ctx context.Context, record FlashRecord) error
	List(ctx context.Context, limit int) ([]FlashRecord, error)
	Close() error
}
