package infrastructure

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/service/shipping/domain"
)

// numberParser 解析存储层的文本数值，并记录每一次强制转换。
type numberParser struct {
	ctx       context.Context
	productID string
	ruleID    string
}

func (p numberParser) report(field, raw string) {
	metrics.NumericCoercionsTotal.WithLabelValues(field).Inc()
	logger.Ctx(p.ctx).Warn().
		Str("product_id", p.productID).
		Str("rule_id", p.ruleID).
		Str("field", field).
		Str("raw", raw).
		Msg("Malformed numeric column coerced")
}

// amount 解析金额参数。NULL 为 0；非法值或负数按 0 处理。
func (p numberParser) amount(field string, raw *string) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	text := strings.TrimSpace(*raw)
	if text == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(text)
	if err != nil || d.IsNegative() {
		p.report(field, *raw)
		return decimal.Zero
	}
	return d
}

// threshold 解析阈值。NULL 为未设置；非法值或负数也视为未设置。
func (p numberParser) threshold(field string, raw *string) *decimal.Decimal {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(*raw))
	if err != nil || d.IsNegative() {
		p.report(field, *raw)
		return nil
	}
	return &d
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ToDomainRule 将数据库模型转换为领域模型
func ToDomainRule(ctx context.Context, model *ShippingRuleModel) domain.ShippingRule {
	p := numberParser{ctx: ctx, productID: model.ProductID, ruleID: model.ID}
	return domain.ShippingRule{
		ID:           model.ID,
		ProductID:    model.ProductID,
		CityID:       model.CityID,
		ProvinceCode: strings.TrimSpace(deref(model.ProvinceCode)),
		Pricing: domain.ParseMode(
			strings.ToLower(strings.TrimSpace(model.Mode)),
			strings.TrimSpace(deref(model.CouponCode)),
			p.amount("flat_amount", model.FlatAmount),
			p.amount("per_item_amount", model.PerItemAmount),
			p.amount("base_amount", model.BaseAmount),
			p.amount("per_kg_amount", model.PerKgAmount),
		),
		MinSubtotal: p.threshold("min_subtotal", model.MinSubtotal),
		ActiveFrom:  model.ActiveFrom,
		ActiveTo:    model.ActiveTo,
		Priority:    model.Priority,
		Enabled:     model.Enabled,
		EtaDays:     model.EtaDays,
		Condition:   strings.TrimSpace(deref(model.Condition)),
	}
}

// ToDomainSettings 将配置行转换为领域模型。凭券包邮不能作为兜底模式，按未知模式处理。
func ToDomainSettings(ctx context.Context, model *ShippingSettingsModel) *domain.ShippingSettings {
	if model == nil {
		return nil
	}
	p := numberParser{ctx: ctx, productID: model.ProductID}
	mode := strings.ToLower(strings.TrimSpace(deref(model.FallbackMode)))

	var fallback domain.Pricing
	if domain.Mode(mode) == domain.ModeCouponFree {
		fallback = domain.Unknown{Raw: mode}
	} else {
		fallback = domain.ParseMode(mode, "",
			p.amount("fallback_flat_amount", model.FallbackFlatAmount),
			p.amount("fallback_per_item_amount", model.FallbackPerItemAmount),
			p.amount("fallback_base_amount", model.FallbackBaseAmount),
			p.amount("fallback_per_kg_amount", model.FallbackPerKgAmount),
		)
	}

	return &domain.ShippingSettings{
		ProductID:        model.ProductID,
		Fallback:         fallback,
		FreeOverSubtotal: p.threshold("free_over_subtotal", model.FreeOverSubtotal),
		CODFee:           p.threshold("cod_fee", model.CODFee),
	}
}

// ToDomainSnapshot 把原始数据行转换为报价快照。
func ToDomainSnapshot(ctx context.Context, rows *SnapshotRows) *domain.Snapshot {
	if rows == nil {
		return nil
	}
	snapshot := &domain.Snapshot{
		ProductID: rows.ProductID,
		Rules:     make([]domain.ShippingRule, 0, len(rows.Rules)),
		Settings:  ToDomainSettings(ctx, rows.Settings),
	}
	for i := range rows.Rules {
		snapshot.Rules = append(snapshot.Rules, ToDomainRule(ctx, &rows.Rules[i]))
	}
	return snapshot
}

// FromDomainRule 把领域规则转换为数据库模型，用于种子数据和 CLI。
func FromDomainRule(rule *domain.ShippingRule) *ShippingRuleModel {
	m := &ShippingRuleModel{
		ID:         rule.ID,
		ProductID:  rule.ProductID,
		CityID:     rule.CityID,
		ActiveFrom: rule.ActiveFrom,
		ActiveTo:   rule.ActiveTo,
		Priority:   rule.Priority,
		Enabled:    rule.Enabled,
		EtaDays:    rule.EtaDays,
	}
	if rule.ProvinceCode != "" {
		m.ProvinceCode = strPtr(rule.ProvinceCode)
	}
	if rule.Condition != "" {
		m.Condition = strPtr(rule.Condition)
	}
	if rule.MinSubtotal != nil {
		m.MinSubtotal = strPtr(rule.MinSubtotal.String())
	}
	if rule.Pricing != nil {
		m.Mode = string(rule.Pricing.Mode())
	}
	switch v := rule.Pricing.(type) {
	case domain.CouponFree:
		m.CouponCode = strPtr(v.Code)
	case domain.Flat:
		m.FlatAmount = strPtr(v.Amount.String())
	case domain.PerItem:
		m.PerItemAmount = strPtr(v.Amount.String())
	case domain.PerKg:
		m.BaseAmount = strPtr(v.Base.String())
		m.PerKgAmount = strPtr(v.PerKg.String())
	}
	return m
}

func strPtr(s string) *string { return &s }
