package entry

import "time"

// AI pipeline status for an entry. Reflects the most recent completed or
// failed stage; only an explicit re-enqueue moves it backwards.
const (
	StatusNone        = "none"
	StatusQueued      = "queued"
	StatusTranscribed = "transcribed"
	StatusSummarized  = "summarized"
	StatusError       = "error"
)

// Entry is one voice note and its derived AI artifacts.
type Entry struct {
	ID          string `gorm:"primaryKey"`
	WorkspaceID uint64 `gorm:"index;not null"`

	AudioURI    string `gorm:"type:text;not null"`
	DurationSec int    `gorm:"not null;default:0"`

	Transcript *string `gorm:"type:text"`
	Summary    *string `gorm:"type:text"`

	AIStatus string  `gorm:"column:ai_status;index;not null;default:'none'"`
	ErrorMsg *string `gorm:"type:text"`

	// Milliseconds since epoch; fixed at creation.
	CreatedAt int64 `gorm:"autoCreateTime:milli;not null"`
}

// Tag names are normalized (trimmed, whitespace-collapsed, lowercased)
// before insert, so uniqueness per workspace is a plain index.
type Tag struct {
	ID          uint64    `gorm:"primaryKey"`
	WorkspaceID uint64    `gorm:"index;not null"`
	Name        string    `gorm:"index;not null"`
	CreatedAt   time.Time `gorm:"not null"`
}

// EntryTag is the join table between entries and tags.
type EntryTag struct {
	EntryID     string `gorm:"primaryKey"`
	TagID       uint64 `gorm:"primaryKey"`
	WorkspaceID uint64 `gorm:"index;not null"`

	Entry Entry `gorm:"foreignKey:EntryID;constraint:OnDelete:CASCADE"`
}
