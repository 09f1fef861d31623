package domain

import "context"

// SnapshotRepository 定义了读取某个商品规则快照的接口。
// 这是领域层与基础设施层之间的“插座”，由 GORM / Redis 适配器实现。
type SnapshotRepository interface {
	// LoadSnapshot 读取商品的已启用规则和运费配置。配置不存在时 Settings 为 nil。
	LoadSnapshot(ctx context.Context, productID string) (*Snapshot, error)
}

// CityRepository 把 (省份代码, 城市名) 解析为城市 ID。
type CityRepository interface {
	// FindCityID 不区分大小写、精确匹配城市名。找不到时返回 (nil, nil)。
	FindCityID(ctx context.Context, provinceCode, cityName string) (*int64, error)
}

// Fact 是规则条件表达式可以访问的订单事实。
type Fact struct {
	ProductID    string  `json:"product_id"`
	ProvinceCode string  `json:"province_code"`
	City         string  `json:"city"`
	CityID       int64   `json:"city_id"`
	Coupon       string  `json:"coupon"`
	Subtotal     float64 `json:"subtotal"`
	ItemCount    int64   `json:"item_count"`
	WeightKg     float64 `json:"weight_kg"`
}

// ConditionEvaluator 评估规则上的附加条件。
// 它和旧的 RuleEngine 一样是一个端口，具体实现（CEL）在基础设施层。
type ConditionEvaluator interface {
	Evaluate(expression string, fact Fact) (bool, error)
}

// NewFact 从报价请求构造条件事实。
func NewFact(req QuoteRequest) Fact {
	f := Fact{
		ProductID:    req.ProductID,
		ProvinceCode: req.ProvinceCode,
		City:         req.City,
		Coupon:       req.Coupon,
		Subtotal:     req.Subtotal.InexactFloat64(),
		ItemCount:    req.TotalQuantity(),
	}
	if req.CityID != nil {
		f.CityID = *req.CityID
	}
	if req.TotalWeightKg != nil {
		f.WeightKg = req.TotalWeightKg.InexactFloat64()
	}
	return f
}
