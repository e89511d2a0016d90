package workspace

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrNotFound      = errors.New("workspace not found")
	ErrNameTaken     = errors.New("workspace name already taken")
	ErrBadCredential = errors.New("invalid workspace credentials")
)

type Service struct {
	DB *gorm.DB
}

// EnsureDefault creates the ambient workspace if it does not exist yet and
// returns it. The default workspace has no secret and is resolved for
// requests without credentials.
func (s *Service) EnsureDefault(ctx context.Context) (*Workspace, error) {
	var ws Workspace
	err := s.DB.WithContext(ctx).Where("name = ?", DefaultName).First(&ws).Error
	if err == nil {
		return &ws, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	ws = Workspace{Name: DefaultName, CreatedAt: time.Now()}
	if err := s.DB.WithContext(ctx).Create(&ws).Error; err != nil {
		return nil, err
	}
	return &ws, nil
}

// Register creates a named workspace protected by a secret.
func (s *Service) Register(ctx context.Context, name, secret string) (*Workspace, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" || name == DefaultName || len(secret) < 8 {
		return nil, ErrBadCredential
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	ws := Workspace{Name: name, SecretHash: string(hash), CreatedAt: time.Now()}
	if err := s.DB.WithContext(ctx).Create(&ws).Error; err != nil {
		return nil, ErrNameTaken
	}
	return &ws, nil
}

// Login verifies the secret for a named workspace.
func (s *Service) Login(ctx context.Context, name, secret string) (*Workspace, error) {
	name = strings.TrimSpace(strings.ToLower(name))

	var ws Workspace
	if err := s.DB.WithContext(ctx).Where("name = ?", name).First(&ws).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBadCredential
		}
		return nil, err
	}
	if ws.SecretHash == "" {
		return nil, ErrBadCredential
	}
	if bcrypt.CompareHashAndPassword([]byte(ws.SecretHash), []byte(secret)) != nil {
		return nil, ErrBadCredential
	}
	return &ws, nil
}

// Get returns a workspace by id.
func (s *Service) Get(ctx context.Context, id uint64) (*Workspace, error) {
	var ws Workspace
	if err := s.DB.WithContext(ctx).First(&ws, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ws, nil
}
