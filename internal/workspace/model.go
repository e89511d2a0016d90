package workspace

import "time"

// DefaultName is the ambient workspace used when a request carries no
// credentials.
const DefaultName = "default"

// Workspace is an isolated data partition: its entries, jobs, and tags are
// invisible to every other workspace, and the worker drains each
// workspace's queue independently.
type Workspace struct {
	ID         uint64    `gorm:"primaryKey"`
	Name       string    `gorm:"uniqueIndex;not null"`
	SecretHash string    `gorm:"not null;default:''"`
	CreatedAt  time.Time `gorm:"not null"`
}
