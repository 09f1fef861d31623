package infrastructure

import (
	"context"
	"errors"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"storefront/internal/pkg/metrics"
	"storefront/internal/service/shipping/domain"
)

var tracer = otel.Tracer("shipping-infrastructure")

// RowSource 读取一个商品的原始规则数据行。GORM 仓储和缓存装饰器都实现它。
type RowSource interface {
	LoadSnapshotRows(ctx context.Context, productID string) (*SnapshotRows, error)
}

// GormRuleStore 是规则存储的 GORM 实现
type GormRuleStore struct {
	db *gorm.DB
}

// NewGormRuleStore 创建一个新的 GORM 仓储实例
func NewGormRuleStore(db *gorm.DB) *GormRuleStore {
	return &GormRuleStore{db: db}
}

// LoadSnapshotRows 并发读取已启用的规则和运费配置。
func (s *GormRuleStore) LoadSnapshotRows(ctx context.Context, productID string) (rows *SnapshotRows, err error) {
	ctx, span := tracer.Start(ctx, "repository.LoadSnapshotRows")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", productID))

	start := time.Now()
	defer func() {
		metrics.ObserveStore("load_snapshot", start, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "rule store query failed")
		}
	}()

	var (
		rules    []ShippingRuleModel
		settings *ShippingSettingsModel
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := s.db.WithContext(gctx).
			Where("product_id = ? AND enabled = ?", productID, true).
			Order("id ASC").
			Find(&rules).Error
		return pkgerrors.Wrapf(err, "query shipping_rules for product %s", productID)
	})
	g.Go(func() error {
		var model ShippingSettingsModel
		err := s.db.WithContext(gctx).Where("product_id = ?", productID).Take(&model).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return pkgerrors.Wrapf(err, "query shipping_settings for product %s", productID)
		}
		settings = &model
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("rules.count", len(rules)), attribute.Bool("settings.found", settings != nil))
	return &SnapshotRows{ProductID: productID, Rules: rules, Settings: settings}, nil
}

// FindCityID 不区分大小写地精确匹配城市名；省份为空时只按城市名查找。
func (s *GormRuleStore) FindCityID(ctx context.Context, provinceCode, cityName string) (id *int64, err error) {
	ctx, span := tracer.Start(ctx, "repository.FindCityID")
	defer span.End()

	start := time.Now()
	defer func() { metrics.ObserveStore("find_city", start, err) }()

	q := s.db.WithContext(ctx).Model(&CityModel{}).Where("LOWER(name) = LOWER(?)", strings.TrimSpace(cityName))
	if p := strings.TrimSpace(provinceCode); p != "" {
		q = q.Where("LOWER(province_code) = LOWER(?)", p)
	}

	var model CityModel
	err = q.Order("id ASC").Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, pkgerrors.Wrapf(err, "query cities for %q", cityName)
	}
	return &model.ID, nil
}

// ImportSnapshot 在一个事务里写入快照的规则、配置和城市，任何一步失败都整体回滚。
func (s *GormRuleStore) ImportSnapshot(ctx context.Context, rows *SnapshotRows, cities []CityModel) error {
	for i, r := range rows.Rules {
		if strings.TrimSpace(r.ID) == "" {
			return pkgerrors.Errorf("rule #%d of product %s: id required", i+1, rows.ProductID)
		}
	}

	ctx, span := tracer.Start(ctx, "repository.ImportSnapshot")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", rows.ProductID), attribute.Int("rules.count", len(rows.Rules)))

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range rows.Rules {
			if err := upsertRule(tx, &rows.Rules[i]).Error; err != nil {
				return pkgerrors.Wrapf(err, "upsert shipping rule %s", rows.Rules[i].ID)
			}
		}
		if rows.Settings != nil {
			if err := upsertSettings(tx, rows.Settings).Error; err != nil {
				return pkgerrors.Wrapf(err, "upsert shipping settings %s", rows.ProductID)
			}
		}
		for i := range cities {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&cities[i]).Error; err != nil {
				return pkgerrors.Wrapf(err, "upsert city %s", cities[i].Name)
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "import snapshot failed")
	}
	return err
}

// upsertRule 用 INSERT ... ON CONFLICT 写入所有列，零值（如 enabled=false）也会原样写入。
func upsertRule(db *gorm.DB, model *ShippingRuleModel) *gorm.DB {
	return db.Clauses(clause.OnConflict{UpdateAll: true}).Create(model)
}

func upsertSettings(db *gorm.DB, model *ShippingSettingsModel) *gorm.DB {
	return db.Clauses(clause.OnConflict{UpdateAll: true}).Create(model)
}

// SnapshotRepository 把 RowSource 读取的原始数据转换为领域快照，实现 domain.SnapshotRepository。
type SnapshotRepository struct {
	rows RowSource
}

func NewSnapshotRepository(rows RowSource) *SnapshotRepository {
	return &SnapshotRepository{rows: rows}
}

func (r *SnapshotRepository) LoadSnapshot(ctx context.Context, productID string) (*domain.Snapshot, error) {
	rows, err := r.rows.LoadSnapshotRows(ctx, productID)
	if err != nil {
		return nil, err
	}
	return ToDomainSnapshot(ctx, rows), nil
}
