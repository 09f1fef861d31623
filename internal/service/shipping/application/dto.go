package application

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"storefront/internal/service/shipping/domain"
)

// Number 是一个宽松的数值字段：接受 JSON 数字或数字字符串，其他内容一律按 0 处理。
// Coerced 标记该字段是否发生过强制转换，由应用层记录日志与指标。
type Number struct {
	Value   decimal.Decimal
	Coerced bool
}

// UnmarshalJSON 永远不会返回错误，非法值按 0 处理。
func (n *Number) UnmarshalJSON(data []byte) error {
	n.Value = decimal.Zero
	n.Coerced = false

	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	var text string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			n.Coerced = true
			return nil
		}
		text = strings.TrimSpace(text)
	} else {
		text = string(raw)
	}

	d, err := decimal.NewFromString(text)
	if err != nil {
		n.Coerced = true
		return nil
	}
	n.Value = d
	return nil
}

// MarshalJSON 以 JSON 数字输出。
func (n Number) MarshalJSON() ([]byte, error) {
	return []byte(n.Value.String()), nil
}

// NewNumber 方便测试和 CLI 构造请求。
func NewNumber(v float64) Number {
	return Number{Value: decimal.NewFromFloat(v)}
}

// QuoteItemRequest 是请求中的一个商品行。
type QuoteItemRequest struct {
	VariantID string `json:"variant_id"`
	Qty       Number `json:"qty"`
}

// QuoteRequest 是 POST /shipping/quote 的请求体。
type QuoteRequest struct {
	ProductID     string             `json:"product_id" validate:"required"`
	ProvinceCode  string             `json:"province_code,omitempty"`
	City          string             `json:"city,omitempty"`
	Coupon        string             `json:"coupon,omitempty"`
	Items         []QuoteItemRequest `json:"items" validate:"required"`
	Subtotal      Number             `json:"subtotal"`
	TotalWeightKg *Number            `json:"total_weight_kg,omitempty"`
}

// QuoteResponse 是报价接口的响应体。
type QuoteResponse struct {
	Amount  float64 `json:"amount"`
	EtaDays *int    `json:"eta_days"`
}

// coercedFields 返回所有被强制转换为 0 的字段名。
func (r *QuoteRequest) coercedFields() []string {
	var fields []string
	if r.Subtotal.Coerced {
		fields = append(fields, "subtotal")
	}
	if r.TotalWeightKg != nil && r.TotalWeightKg.Coerced {
		fields = append(fields, "total_weight_kg")
	}
	for _, it := range r.Items {
		if it.Qty.Coerced || it.Qty.Value.GreaterThan(maxQty) {
			fields = append(fields, "items.qty")
			break
		}
	}
	return fields
}

var maxQty = decimal.NewFromInt(math.MaxInt64)

// toDomain 把请求 DTO 转换为领域对象。数量取整数部分，负数按 0 处理，超过 int64 的按 math.MaxInt64 处理。
func (r *QuoteRequest) toDomain(cityID *int64) domain.QuoteRequest {
	items := make([]domain.Item, 0, len(r.Items))
	for _, it := range r.Items {
		var qty int64
		switch v := it.Qty.Value.Truncate(0); {
		case v.IsNegative():
			qty = 0
		case v.GreaterThan(maxQty):
			qty = math.MaxInt64
		default:
			qty = v.IntPart()
		}
		items = append(items, domain.Item{VariantID: it.VariantID, Qty: qty})
	}

	subtotal := r.Subtotal.Value
	if subtotal.IsNegative() {
		subtotal = decimal.Zero
	}

	req := domain.QuoteRequest{
		ProductID:    strings.TrimSpace(r.ProductID),
		ProvinceCode: strings.TrimSpace(r.ProvinceCode),
		City:         strings.TrimSpace(r.City),
		CityID:       cityID,
		Coupon:       strings.TrimSpace(r.Coupon),
		Items:        items,
		Subtotal:     subtotal,
	}
	if r.TotalWeightKg != nil {
		w := r.TotalWeightKg.Value
		if w.IsNegative() {
			w = decimal.Zero
		}
		req.TotalWeightKg = &w
	}
	return req
}

func toQuoteResponse(q domain.Quote) *QuoteResponse {
	return &QuoteResponse{
		Amount:  q.Amount.Round(2).InexactFloat64(),
		EtaDays: q.EtaDays,
	}
}
