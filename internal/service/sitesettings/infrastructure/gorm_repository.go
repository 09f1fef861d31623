package infrastructure

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"storefront/internal/service/sitesettings/domain"
)

// singletonID 是唯一一行配置的主键。
const singletonID = 1

// SiteSettingsModel 对应 site_settings 表
type SiteSettingsModel struct {
	ID               uint   `gorm:"primaryKey;autoIncrement:false"`
	MetaPixelID      string `gorm:"type:varchar(32);not null;default:''"`
	GA4MeasurementID string `gorm:"column:ga4_measurement_id;type:varchar(32);not null;default:''"`
	UpdatedAt        time.Time
}

// TableName 指定 GORM 应该使用的表名
func (SiteSettingsModel) TableName() string {
	return "site_settings"
}

// GormRepository 是 domain.Repository 的 GORM 实现
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) Get(ctx context.Context) (*domain.SiteSettings, error) {
	var model SiteSettingsModel
	err := r.db.WithContext(ctx).Where("id = ?", singletonID).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotConfigured
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "query site_settings")
	}
	return &domain.SiteSettings{
		MetaPixelID:      model.MetaPixelID,
		GA4MeasurementID: model.GA4MeasurementID,
		UpdatedAt:        model.UpdatedAt,
	}, nil
}

// Put 用 ON CONFLICT 更新固定主键的那一行。
func (r *GormRepository) Put(ctx context.Context, s *domain.SiteSettings) error {
	model := SiteSettingsModel{
		ID:               singletonID,
		MetaPixelID:      s.MetaPixelID,
		GA4MeasurementID: s.GA4MeasurementID,
		UpdatedAt:        s.UpdatedAt,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"meta_pixel_id", "ga4_measurement_id", "updated_at"}),
	}).Create(&model).Error
	return pkgerrors.Wrap(err, "upsert site_settings")
}
