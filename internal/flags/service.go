package flags

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrEmptyUpdate rejects partial updates that carry no fields.
var ErrEmptyUpdate = errors.New("no fields provided for update")

// CacheInvalidator receives post-commit notifications about mutated records.
type CacheInvalidator interface {
	OnFlagChanged(flagID uuid.UUID)
	OnOverrideChanged(flagID uuid.UUID, userID string)
}

// Service implements flag and override management. Every mutation notifies
// the invalidator only after its transaction has committed, so the cache can
// never hold a result a rolled-back write would contradict.
type Service struct {
	repo        Repository
	invalidator CacheInvalidator
}

// NewService constructs the management service.
func NewService(repo Repository, invalidator CacheInvalidator) *Service {
	return &Service{repo: repo, invalidator: invalidator}
}

func (s *Service) CreateFlag(ctx context.Context, req CreateFlagRequest) (*Flag, error) {
	var flag *Flag
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		flag, err = repo.CreateFlag(ctx, req.Name, req.Description, req.IsEnabled)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, fmt.Errorf("%w: flag name %q taken", ErrDuplicate, req.Name)
		}
		return nil, fmt.Errorf("create flag: %w", err)
	}
	return flag, nil
}

func (s *Service) GetFlag(ctx context.Context, id uuid.UUID) (*Flag, error) {
	flag, err := s.repo.FindFlagByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get flag: %w", err)
	}
	if flag == nil {
		return nil, fmt.Errorf("flag %s: %w", id, ErrNotFound)
	}
	return flag, nil
}

func (s *Service) ListFlags(ctx context.Context, req ListFlagsRequest) ([]Flag, int, error) {
	return s.repo.ListFlags(ctx, req)
}

func (s *Service) UpdateFlag(ctx context.Context, id uuid.UUID, req UpdateFlagRequest) (*Flag, error) {
	if req.IsEmpty() {
		return nil, ErrEmptyUpdate
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.IsEnabled != nil {
		updates["is_enabled"] = *req.IsEnabled
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		return repo.UpdateFlag(ctx, id, updates)
	})
	if err != nil {
		if errors.Is(err, ErrDuplicate) && req.Name != nil {
			return nil, fmt.Errorf("%w: flag name %q taken", ErrDuplicate, *req.Name)
		}
		return nil, fmt.Errorf("update flag: %w", err)
	}
	s.invalidator.OnFlagChanged(id)

	return s.GetFlag(ctx, id)
}

func (s *Service) ToggleFlag(ctx context.Context, id uuid.UUID, enabled bool) (*Flag, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		return repo.UpdateFlag(ctx, id, map[string]interface{}{"is_enabled": enabled})
	})
	if err != nil {
		return nil, fmt.Errorf("toggle flag: %w", err)
	}
	s.invalidator.OnFlagChanged(id)

	return s.GetFlag(ctx, id)
}

// DeleteFlag removes the flag and, through the cascade, its overrides, then
// drops every cached evaluation of it. Returns the deleted record.
func (s *Service) DeleteFlag(ctx context.Context, id uuid.UUID) (*Flag, error) {
	flag, err := s.GetFlag(ctx, id)
	if err != nil {
		return nil, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		return repo.DeleteFlag(ctx, id)
	})
	if err != nil {
		return nil, fmt.Errorf("delete flag: %w", err)
	}
	s.invalidator.OnFlagChanged(id)

	return flag, nil
}

// SetOverride creates or replaces the per-user override. The second return
// value reports whether a new record was created.
func (s *Service) SetOverride(ctx context.Context, flagID uuid.UUID, userID string, enabled bool) (*Override, bool, error) {
	if _, err := s.GetFlag(ctx, flagID); err != nil {
		return nil, false, err
	}

	var override *Override
	var created bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		existing, err := repo.FindOverride(ctx, flagID, userID)
		if err != nil {
			return err
		}
		if existing == nil {
			override, err = repo.CreateOverride(ctx, flagID, userID, enabled)
			created = true
			return err
		}
		if err := repo.UpdateOverride(ctx, flagID, userID, enabled); err != nil {
			return err
		}
		override, err = repo.FindOverride(ctx, flagID, userID)
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("set override: %w", err)
	}
	s.invalidator.OnOverrideChanged(flagID, userID)

	return override, created, nil
}

func (s *Service) DeleteOverride(ctx context.Context, flagID uuid.UUID, userID string) error {
	if _, err := s.GetFlag(ctx, flagID); err != nil {
		return err
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		return repo.DeleteOverride(ctx, flagID, userID)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("override for flag %s user %q: %w", flagID, userID, ErrNotFound)
		}
		return fmt.Errorf("delete override: %w", err)
	}
	s.invalidator.OnOverrideChanged(flagID, userID)

	return nil
}

func (s *Service) ListOverrides(ctx context.Context, flagID uuid.UUID, req ListOverridesRequest) ([]Override, int, error) {
	if _, err := s.GetFlag(ctx, flagID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListOverrides(ctx, flagID, req)
}
