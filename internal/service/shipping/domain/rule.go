// internal/service/shipping/domain/rule.go
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ShippingRule 是一条运费规则。规则由后台管理系统维护，报价流程只读取快照。
type ShippingRule struct {
	ID        string
	ProductID string

	// --- 地理范围 ---
	// CityID 非空: 城市级规则; 仅 ProvinceCode 非空: 省级规则; 都为空: 全局规则。
	CityID       *int64
	ProvinceCode string

	Pricing Pricing

	MinSubtotal *decimal.Decimal
	ActiveFrom  *time.Time
	ActiveTo    *time.Time
	Priority    int
	Enabled     bool
	EtaDays     *int

	// Condition 是一个可选的 CEL 表达式，结果必须为 bool。
	Condition string
}

// HasCityScope 表示规则绑定到一个具体城市。
func (r *ShippingRule) HasCityScope() bool {
	return r.CityID != nil
}

// HasProvinceScope 表示规则绑定到一个省（且没有绑定城市）。
func (r *ShippingRule) HasProvinceScope() bool {
	return r.CityID == nil && strings.TrimSpace(r.ProvinceCode) != ""
}

// IsGlobal 表示规则既没有城市也没有省份。
func (r *ShippingRule) IsGlobal() bool {
	return !r.HasCityScope() && !r.HasProvinceScope()
}

// ActiveAt 检查时间窗口，两端边界都是闭区间。
func (r *ShippingRule) ActiveAt(now time.Time) bool {
	if r.ActiveFrom != nil && now.Before(*r.ActiveFrom) {
		return false
	}
	if r.ActiveTo != nil && now.After(*r.ActiveTo) {
		return false
	}
	return true
}

// ShippingSettings 是每个商品（可选）的默认运费配置。
type ShippingSettings struct {
	ProductID string

	// Fallback 在没有任何规则命中时使用，不会是 CouponFree。
	Fallback Pricing

	// FreeOverSubtotal 小计达到该阈值时直接包邮，只在没有规则命中时生效。
	FreeOverSubtotal *decimal.Decimal

	// CODFee 货到付款手续费，在基础运费确定之后追加，任何路径都生效。
	CODFee *decimal.Decimal
}

// Snapshot 是一次报价所需的规则与配置的只读快照。
type Snapshot struct {
	ProductID string
	Rules     []ShippingRule
	Settings  *ShippingSettings
}
