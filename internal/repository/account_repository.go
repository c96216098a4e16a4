package repository

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"caption-service/internal/models"
)

// AccountRepository reads account-subsystem rows the pipeline depends on.
// Settings lookups go through a short TTL cache.
type AccountRepository struct {
	db       *gorm.DB
	settings *cache.Cache
}

type cachedSetting struct {
	setting models.AccountSetting
	found   bool
}

func NewAccountRepository(db *gorm.DB, ttl time.Duration) *AccountRepository {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &AccountRepository{db: db, settings: cache.New(ttl, 2*ttl)}
}

// Setting returns the stored setting for userID and whether one exists.
func (r *AccountRepository) Setting(ctx context.Context, userID string) (models.AccountSetting, bool, error) {
	if v, ok := r.settings.Get(userID); ok {
		c := v.(cachedSetting)
		return c.setting, c.found, nil
	}

	var setting models.AccountSetting
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&setting).Error
	found := true
	if errors.Is(err, gorm.ErrRecordNotFound) {
		found, err = false, nil
	}
	if err != nil {
		return models.AccountSetting{}, false, err
	}
	r.settings.SetDefault(userID, cachedSetting{setting: setting, found: found})
	return setting, found, nil
}

// SaveSetting upserts a setting and drops the cached copy.
func (r *AccountRepository) SaveSetting(ctx context.Context, setting models.AccountSetting) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"complexity_tier", "can_upload"}),
	}).Create(&setting).Error
	r.settings.Delete(setting.UserID)
	return err
}

// Link records a supervising relationship.
func (r *AccountRepository) Link(ctx context.Context, adultID, childID string) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.AccountLink{AdultID: adultID, ChildID: childID}).Error
}

// IsLinked reports whether the two accounts are related in either direction.
func (r *AccountRepository) IsLinked(ctx context.Context, a, b string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.AccountLink{}).
		Where("(adult_id = ? AND child_id = ?) OR (adult_id = ? AND child_id = ?)", a, b, b, a).
		Count(&count).Error
	return count > 0, err
}
