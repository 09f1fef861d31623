// internal/service/shipping/domain/pricing.go
package domain

import "github.com/shopspring/decimal"

// Mode 是运费计算方式在存储层的字符串表示。
type Mode string

const (
	ModeFree       Mode = "free"
	ModeCouponFree Mode = "coupon_free"
	ModeFlat       Mode = "flat"
	ModePerItem    Mode = "per_item"
	ModePerKg      Mode = "per_kg"
)

// Pricing 是一个封闭的和类型 (sum type)，每种计费模式对应一个具体的载荷结构。
// 只有本包内的类型可以实现它，Amount 中的 type switch 因此是穷尽的。
type Pricing interface {
	Mode() Mode
	isPricing()
}

// Free 包邮。
type Free struct{}

// CouponFree 凭券包邮，Code 必须与请求中的优惠码匹配（不区分大小写）。
type CouponFree struct {
	Code string
}

// Flat 固定运费。
type Flat struct {
	Amount decimal.Decimal
}

// PerItem 按件计费：Amount × 所有商品数量之和。
type PerItem struct {
	Amount decimal.Decimal
}

// PerKg 按重量计费：Base + PerKg × 总重量(kg)。
type PerKg struct {
	Base  decimal.Decimal
	PerKg decimal.Decimal
}

// Unknown 用于存储层出现无法识别的 fallback_mode，运费按 0 处理。
type Unknown struct {
	Raw string
}

func (Free) Mode() Mode       { return ModeFree }
func (CouponFree) Mode() Mode { return ModeCouponFree }
func (Flat) Mode() Mode       { return ModeFlat }
func (PerItem) Mode() Mode    { return ModePerItem }
func (PerKg) Mode() Mode      { return ModePerKg }
func (u Unknown) Mode() Mode  { return Mode(u.Raw) }

func (Free) isPricing()       {}
func (CouponFree) isPricing() {}
func (Flat) isPricing()       {}
func (PerItem) isPricing()    {}
func (PerKg) isPricing()      {}
func (Unknown) isPricing()    {}

// Amount 根据计费模式和订单上下文计算基础运费（不含货到付款手续费）。
func Amount(p Pricing, req QuoteRequest) decimal.Decimal {
	switch v := p.(type) {
	case Free, CouponFree:
		return decimal.Zero
	case Flat:
		return v.Amount
	case PerItem:
		return v.Amount.Mul(req.Quantity())
	case PerKg:
		weight := decimal.Zero
		if req.TotalWeightKg != nil {
			weight = *req.TotalWeightKg
		}
		return v.Base.Add(v.PerKg.Mul(weight))
	default:
		// Unknown 以及 nil
		return decimal.Zero
	}
}

// ParseMode 把存储层的模式字符串和参数组装成 Pricing。
// 调用方负责把数值参数规范化（非法值已被置为 0）。
func ParseMode(mode string, couponCode string, flat, perItem, base, perKg decimal.Decimal) Pricing {
	switch Mode(mode) {
	case ModeFree:
		return Free{}
	case ModeCouponFree:
		return CouponFree{Code: couponCode}
	case ModeFlat:
		return Flat{Amount: flat}
	case ModePerItem:
		return PerItem{Amount: perItem}
	case ModePerKg:
		return PerKg{Base: base, PerKg: perKg}
	default:
		return Unknown{Raw: mode}
	}
}
