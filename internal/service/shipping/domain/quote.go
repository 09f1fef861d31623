package domain

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Item 是订单中的一个商品变体及其数量。
type Item struct {
	VariantID string
	Qty       int64
}

// QuoteRequest 是一次运费报价的订单上下文。
type QuoteRequest struct {
	ProductID    string
	ProvinceCode string
	City         string
	// CityID 由接口层通过 (省, 城市名) 查询城市表得到，查不到时为 nil。
	CityID        *int64
	Coupon        string
	Items         []Item
	Subtotal      decimal.Decimal
	TotalWeightKg *decimal.Decimal
}

// Quantity 返回所有商品数量之和，负数按 0 计。用 decimal 累加，不会溢出。
func (r QuoteRequest) Quantity() decimal.Decimal {
	total := decimal.Zero
	for _, it := range r.Items {
		if it.Qty > 0 {
			total = total.Add(decimal.NewFromInt(it.Qty))
		}
	}
	return total
}

// TotalQuantity 是 Quantity 的 int64 形式，超出范围时取 math.MaxInt64。
func (r QuoteRequest) TotalQuantity() int64 {
	var total int64
	for _, it := range r.Items {
		if it.Qty <= 0 {
			continue
		}
		if it.Qty > math.MaxInt64-total {
			return math.MaxInt64
		}
		total += it.Qty
	}
	return total
}

// SuppliesLocation 表示请求是否带了城市名或省份代码。
func (r QuoteRequest) SuppliesLocation() bool {
	return strings.TrimSpace(r.City) != "" || strings.TrimSpace(r.ProvinceCode) != ""
}

// QuoteSource 记录最终运费来自哪条路径。
type QuoteSource string

const (
	SourceRule             QuoteSource = "rule"
	SourceFreeOverSubtotal QuoteSource = "free_over_subtotal"
	SourceFallback         QuoteSource = "fallback"
	SourceNone             QuoteSource = "none"
)

// Quote 是报价结果。对外只暴露 Amount 和 EtaDays。
type Quote struct {
	Amount  decimal.Decimal
	EtaDays *int

	Source QuoteSource
	RuleID string
	CODFee decimal.Decimal
}
