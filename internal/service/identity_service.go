package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/Leganyst/counseling-booking/internal/model"
	"github.com/Leganyst/counseling-booking/internal/repository"
)

// IdentityService регистрирует собеседников канала как клиентов.
type IdentityService struct {
	userRepo   repository.UserRepository
	clientRepo repository.ClientRepository
}

func NewIdentityService(userRepo repository.UserRepository, clientRepo repository.ClientRepository) *IdentityService {
	return &IdentityService{userRepo: userRepo, clientRepo: clientRepo}
}

// EnsureClient создаёт пользователя и клиента по ExternalID или обновляет контактные данные существующего.
func (s *IdentityService) EnsureClient(ctx context.Context, externalID string, contacts repository.UserContacts) (*model.Client, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, validationf("external_id is required")
	}

	u, err := s.userRepo.UpsertUser(ctx, externalID, contacts)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	c, err := s.clientRepo.EnsureByUserID(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("ensure client: %w", err)
	}
	c.User = u
	return c, nil
}

// FindClient возвращает клиента по ExternalID, если он уже регистрировался.
func (s *IdentityService) FindClient(ctx context.Context, externalID string) (*model.Client, error) {
	u, err := s.userRepo.FindByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s: %w", externalID, ErrNotFound)
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	c, err := s.clientRepo.GetByUserID(ctx, u.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("client for user %s: %w", externalID, ErrNotFound)
		}
		return nil, fmt.Errorf("get client: %w", err)
	}
	c.User = u
	return c, nil
}
