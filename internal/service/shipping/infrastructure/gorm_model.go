package infrastructure

import (
	"time"
)

// ShippingRuleModel 对应数据库中的 shipping_rules 表。
// 数值列按文本读取，由 mapper 负责解析，这样后台写入的脏数据不会让整条查询失败。
type ShippingRuleModel struct {
	ID            string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ProductID     string     `gorm:"index:idx_rule_product_enabled;type:varchar(64);not null" json:"product_id"`
	CityID        *int64     `gorm:"index" json:"city_id,omitempty"`
	ProvinceCode  *string    `gorm:"type:varchar(16)" json:"province_code,omitempty"`
	Mode          string     `gorm:"type:varchar(32);not null" json:"mode"`
	FlatAmount    *string    `gorm:"type:varchar(32)" json:"flat_amount,omitempty"`
	PerItemAmount *string    `gorm:"type:varchar(32)" json:"per_item_amount,omitempty"`
	BaseAmount    *string    `gorm:"type:varchar(32)" json:"base_amount,omitempty"`
	PerKgAmount   *string    `gorm:"type:varchar(32)" json:"per_kg_amount,omitempty"`
	CouponCode    *string    `gorm:"type:varchar(64)" json:"coupon_code,omitempty"`
	MinSubtotal   *string    `gorm:"type:varchar(32)" json:"min_subtotal,omitempty"`
	ActiveFrom    *time.Time `json:"active_from,omitempty"`
	ActiveTo      *time.Time `json:"active_to,omitempty"`
	Priority      int        `gorm:"not null;default:0" json:"priority"`
	Enabled       bool       `gorm:"index:idx_rule_product_enabled;not null" json:"enabled"` // 不能加 default 标签，否则 Create 会把 false 换成默认值
	EtaDays       *int       `json:"eta_days,omitempty"`
	Condition     *string    `gorm:"type:text" json:"condition,omitempty"`
	CreatedAt     time.Time  `json:"-"`
	UpdatedAt     time.Time  `json:"-"`
}

// TableName 指定 GORM 应该使用的表名
func (ShippingRuleModel) TableName() string {
	return "shipping_rules"
}

// ShippingSettingsModel 对应 shipping_settings 表，每个商品最多一行。
type ShippingSettingsModel struct {
	ProductID             string    `gorm:"primaryKey;type:varchar(64)" json:"product_id"`
	FallbackMode          *string   `gorm:"type:varchar(32)" json:"fallback_mode,omitempty"`
	FallbackFlatAmount    *string   `gorm:"type:varchar(32)" json:"fallback_flat_amount,omitempty"`
	FallbackPerItemAmount *string   `gorm:"type:varchar(32)" json:"fallback_per_item_amount,omitempty"`
	FallbackBaseAmount    *string   `gorm:"type:varchar(32)" json:"fallback_base_amount,omitempty"`
	FallbackPerKgAmount   *string   `gorm:"type:varchar(32)" json:"fallback_per_kg_amount,omitempty"`
	FreeOverSubtotal      *string   `gorm:"type:varchar(32)" json:"free_over_subtotal,omitempty"`
	CODFee                *string   `gorm:"column:cod_fee;type:varchar(32)" json:"cod_fee,omitempty"`
	UpdatedAt             time.Time `json:"-"`
}

// TableName 指定 GORM 应该使用的表名
func (ShippingSettingsModel) TableName() string {
	return "shipping_settings"
}

// CityModel 对应 cities 表。
type CityModel struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	Name         string `gorm:"type:varchar(128);not null;index"`
	ProvinceCode string `gorm:"type:varchar(16);not null;index"`
}

// TableName 指定 GORM 应该使用的表名
func (CityModel) TableName() string {
	return "cities"
}

// SnapshotRows 是一个商品的原始数据行，也是快照缓存里存放的内容。
type SnapshotRows struct {
	ProductID string                 `json:"product_id"`
	Rules     []ShippingRuleModel    `json:"rules"`
	Settings  *ShippingSettingsModel `json:"settings,omitempty"`
}

// AllModels 返回需要迁移的表模型。
func AllModels() []interface{} {
	return []interface{}{&ShippingRuleModel{}, &ShippingSettingsModel{}, &CityModel{}}
}
