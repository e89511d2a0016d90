package entry

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("entry not found")

// Store owns Entry, Tag and EntryTag rows. The worker and the HTTP layer
// never touch these tables except through it.
type Store struct {
	DB *gorm.DB
}

type CreateInput struct {
	AudioURI    string
	DurationSec int
}

func (s *Store) Create(ctx context.Context, workspaceID uint64, in CreateInput) (*Entry, error) {
	e := Entry{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		AudioURI:    in.AudioURI,
		DurationSec: in.DurationSec,
		AIStatus:    StatusNone,
	}
	if err := s.DB.WithContext(ctx).Create(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) Get(ctx context.Context, workspaceID uint64, id string) (*Entry, error) {
	var e Entry
	err := s.DB.WithContext(ctx).
		Where("id = ? AND workspace_id = ?", id, workspaceID).
		First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// Update applies a partial field update. Callers pass only the columns
// they mean to change; nil is a valid value for nullable columns.
func (s *Store) Update(ctx context.Context, workspaceID uint64, id string, fields map[string]any) error {
	res := s.DB.WithContext(ctx).Model(&Entry{}).
		Where("id = ? AND workspace_id = ?", id, workspaceID).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) List(ctx context.Context, workspaceID uint64) ([]Entry, error) {
	var rows []Entry
	err := s.DB.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("created_at desc").
		Find(&rows).Error
	return rows, err
}

// Delete removes an entry together with its tag associations. Jobs cascade
// via the queue's foreign key.
func (s *Store) Delete(ctx context.Context, workspaceID uint64, id string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("entry_id = ? AND workspace_id = ?", id, workspaceID).
			Delete(&EntryTag{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ? AND workspace_id = ?", id, workspaceID).Delete(&Entry{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// AttachTags creates missing tags and links them to the entry. Names are
// normalized first; attaching an already-linked tag is a no-op.
func (s *Store) AttachTags(ctx context.Context, workspaceID uint64, entryID string, names []string) error {
	names = NormalizeTags(names)
	if len(names) == 0 {
		return nil
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, name := range names {
			var t Tag
			err := tx.Where("workspace_id = ? AND name = ?", workspaceID, name).First(&t).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				t = Tag{WorkspaceID: workspaceID, Name: name, CreatedAt: time.Now()}
				if err := tx.Create(&t).Error; err != nil {
					return err
				}
			} else if err != nil {
				return err
			}

			var n int64
			if err := tx.Model(&EntryTag{}).
				Where("entry_id = ? AND tag_id = ?", entryID, t.ID).
				Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				continue
			}
			link := EntryTag{EntryID: entryID, TagID: t.ID, WorkspaceID: workspaceID}
			if err := tx.Create(&link).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) TagsFor(ctx context.Context, workspaceID uint64, entryID string) ([]string, error) {
	var names []string
	err := s.DB.WithContext(ctx).Model(&Tag{}).
		Joins("join entry_tags on entry_tags.tag_id = tags.id").
		Where("entry_tags.entry_id = ? AND tags.workspace_id = ?", entryID, workspaceID).
		Order("tags.name asc").
		Pluck("tags.name", &names).Error
	return names, err
}

func (s *Store) ListTags(ctx context.Context, workspaceID uint64) ([]Tag, error) {
	var tags []Tag
	err := s.DB.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("name asc").
		Find(&tags).Error
	return tags, err
}
