package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"caption-service/internal/models"
)

// ErrNotFound is returned when no active record matches.
var ErrNotFound = errors.New("record not found")

// AnnotationRepository persists annotation records.
type AnnotationRepository interface {
	Create(ctx context.Context, record *models.AnnotationRecord) error
	GetActive(ctx context.Context, id uuid.UUID) (*models.AnnotationRecord, error)
	ListActiveByOwner(ctx context.Context, ownerID string) ([]models.AnnotationRecord, error)
	ToggleBookmark(ctx context.Context, id uuid.UUID) (bool, error)
	MarkChallengeComplete(ctx context.Context, id uuid.UUID) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	UploadTimes(ctx context.Context, ownerID string, from, to time.Time) ([]time.Time, error)
	ReferencedAssetKeys(ctx context.Context) (map[string]struct{}, error)
}

// AnnotationRepositoryImpl is the gorm-backed AnnotationRepository.
type AnnotationRepositoryImpl struct {
	db *gorm.DB
}

func NewAnnotationRepository(db *gorm.DB) *AnnotationRepositoryImpl {
	return &AnnotationRepositoryImpl{db: db}
}

// AutoMigrate creates or updates every table the service owns or reads.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.AnnotationRecord{}, &models.AccountSetting{}, &models.AccountLink{})
}

func (r *AnnotationRepositoryImpl) Create(ctx context.Context, record *models.AnnotationRecord) error {
	if record.Status == "" {
		record.Status = models.StatusActive
	}
	record.UploadedAt = record.UploadedAt.UTC()
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *AnnotationRepositoryImpl) active(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.AnnotationRecord{}).Where("status = ?", models.StatusActive)
}

// GetActive retrieves a record that has not been soft-deleted.
func (r *AnnotationRepositoryImpl) GetActive(ctx context.Context, id uuid.UUID) (*models.AnnotationRecord, error) {
	var record models.AnnotationRecord
	err := r.active(ctx).Where("id = ?", id).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListActiveByOwner returns bookmarked records first, then newest first.
func (r *AnnotationRepositoryImpl) ListActiveByOwner(ctx context.Context, ownerID string) ([]models.AnnotationRecord, error) {
	var records []models.AnnotationRecord
	err := r.active(ctx).
		Where("owner_id = ?", ownerID).
		Order("is_bookmarked DESC").
		Order("uploaded_at DESC").
		Find(&records).Error
	return records, err
}

// ToggleBookmark flips the bookmark flag and returns the new state.
func (r *AnnotationRepositoryImpl) ToggleBookmark(ctx context.Context, id uuid.UUID) (bool, error) {
	var state bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.AnnotationRecord{}).
			Where("id = ? AND status = ?", id, models.StatusActive).
			Update("is_bookmarked", gorm.Expr("NOT is_bookmarked"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		var record models.AnnotationRecord
		if err := tx.Select("is_bookmarked").Where("id = ?", id).First(&record).Error; err != nil {
			return err
		}
		state = record.IsBookmarked
		return nil
	})
	return state, err
}

// MarkChallengeComplete sets the one-way challenge flag.
func (r *AnnotationRepositoryImpl) MarkChallengeComplete(ctx context.Context, id uuid.UUID) error {
	res := r.active(ctx).Where("id = ?", id).Update("challenge_completed", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Already completed records still count as found.
		if _, err := r.GetActive(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// SoftDelete flips the status to deleted. The row and its assets are kept.
func (r *AnnotationRepositoryImpl) SoftDelete(ctx context.Context, id uuid.UUID) error {
	res := r.active(ctx).Where("id = ?", id).Update("status", models.StatusDeleted)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UploadTimes returns upload timestamps of active records in [from, to).
func (r *AnnotationRepositoryImpl) UploadTimes(ctx context.Context, ownerID string, from, to time.Time) ([]time.Time, error) {
	var records []models.AnnotationRecord
	err := r.active(ctx).
		Select("uploaded_at").
		Where("owner_id = ?", ownerID).
		Where("uploaded_at >= ? AND uploaded_at < ?", from.UTC(), to.UTC()).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	times := make([]time.Time, 0, len(records))
	for _, rec := range records {
		times = append(times, rec.UploadedAt)
	}
	return times, nil
}

// ReferencedAssetKeys returns every asset key referenced by any record,
// including soft-deleted ones.
func (r *AnnotationRepositoryImpl) ReferencedAssetKeys(ctx context.Context) (map[string]struct{}, error) {
	keys := make(map[string]struct{})
	var batch []models.AnnotationRecord
	res := r.db.WithContext(ctx).
		Select("id", "image_key", "main_audio_key", "object_audio").
		FindInBatches(&batch, 200, func(tx *gorm.DB, _ int) error {
			for i := range batch {
				for _, key := range batch[i].AssetKeys() {
					if key != "" {
						keys[key] = struct{}{}
					}
				}
			}
			return nil
		})
	if res.Error != nil {
		return nil, res.Error
	}
	return keys, nil
}
