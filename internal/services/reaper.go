package services

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"caption-service/internal/logger"
	"caption-service/internal/repository"
	"caption-service/internal/storage"
)

// Reaper removes assets that no annotation record references. Writes happen
// before the record insert, so only assets older than the grace period are
// considered.
type Reaper struct {
	repo   repository.AnnotationRepository
	assets storage.AssetStore
	grace  time.Duration
	log    *logger.Logger
	now    func() time.Time
}

func NewReaper(repo repository.AnnotationRepository, assets storage.AssetStore, grace time.Duration, log *logger.Logger) *Reaper {
	if log == nil {
		log = logger.Nop()
	}
	return &Reaper{
		repo:   repo,
		assets: assets,
		grace:  grace,
		log:    log.With("service", "Reaper"),
		now:    time.Now,
	}
}

// Run deletes orphaned assets and returns how many were removed. A failed
// delete is logged and skipped.
func (r *Reaper) Run(ctx context.Context) (int, error) {
	referenced, err := r.repo.ReferencedAssetKeys(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "load referenced keys")
	}
	cutoff := r.now().Add(-r.grace)

	removed := 0
	for _, prefix := range []string{storage.ImagePrefix, storage.AudioPrefix} {
		infos, err := r.assets.List(ctx, prefix)
		if err != nil {
			return removed, errors.Wrapf(err, "list %s", prefix)
		}
		for _, info := range infos {
			if _, ok := referenced[info.Key]; ok {
				continue
			}
			if info.ModTime.After(cutoff) {
				continue
			}
			if err := r.assets.Delete(ctx, info.Key); err != nil {
				r.log.Warn("could not delete orphaned asset", "key", info.Key, "error", err)
				continue
			}
			removed++
		}
	}
	r.log.Info("orphan sweep finished", "removed", removed, "referenced", len(referenced))
	return removed, nil
}
