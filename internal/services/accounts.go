package services

import (
	"context"

	"caption-service/internal/repository"
)

const (
	RoleChild = "child"
	RoleAdult = "adult"

	MinTier     = 1
	DefaultTier = 2
	MaxTier     = 3
)

// AccountDirectory is the account subsystem as seen by the pipeline.
type AccountDirectory interface {
	IsLinked(ctx context.Context, requesterID, ownerID string) (bool, error)
	ComplexityTierFor(ctx context.Context, userID string) (int, error)
	CanUpload(ctx context.Context, userID string) (bool, error)
}

type accountDirectory struct {
	repo *repository.AccountRepository
}

// NewAccountDirectory serves collaborator lookups from the account tables.
func NewAccountDirectory(repo *repository.AccountRepository) AccountDirectory {
	return &accountDirectory{repo: repo}
}

func (d *accountDirectory) IsLinked(ctx context.Context, requesterID, ownerID string) (bool, error) {
	return d.repo.IsLinked(ctx, requesterID, ownerID)
}

// ComplexityTierFor returns the stored tier clamped to 1..3, or the default tier.
func (d *accountDirectory) ComplexityTierFor(ctx context.Context, userID string) (int, error) {
	setting, found, err := d.repo.Setting(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !found {
		return DefaultTier, nil
	}
	return ClampTier(setting.ComplexityTier), nil
}

// CanUpload defaults to true for accounts without a setting row.
func (d *accountDirectory) CanUpload(ctx context.Context, userID string) (bool, error) {
	setting, found, err := d.repo.Setting(ctx, userID)
	if err != nil {
		return false, err
	}
	return !found || setting.CanUpload, nil
}

func ClampTier(tier int) int {
	if tier < MinTier {
		return MinTier
	}
	if tier > MaxTier {
		return MaxTier
	}
	return tier
}
