package jobs

import (
	"time"

	"murmur/internal/entry"
)

const (
	TypeTranscribe = "transcribe"
	TypeSummarize  = "summarize"
)

const (
	StatusQueued  = "queued"
	StatusRunning = "running"
	StatusDone    = "done"
	StatusError   = "error"
)

// AiJob is one unit of AI work against one entry. At most one job per
// (entry, type) may be queued or running at a time; Enqueue enforces that
// with a duplicate check rather than a schema constraint.
type AiJob struct {
	ID          uint64 `gorm:"primaryKey"`
	WorkspaceID uint64 `gorm:"index;not null"`

	EntryID string `gorm:"index;not null"`
	Type    string `gorm:"type:text;not null"`

	Status   string `gorm:"index;not null;default:'queued'"`
	Attempts int    `gorm:"not null;default:0"`

	LastError *string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"index;not null"`
	UpdatedAt time.Time `gorm:"not null"`

	Entry entry.Entry `gorm:"foreignKey:EntryID;constraint:OnDelete:CASCADE"`
}

func (AiJob) TableName() string { return "ai_jobs" }
