// internal/service/shipping/domain/resolver.go
package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Resolver 从候选规则中选出一条规则并计算运费。
// 它没有任何可变状态，同样的输入和快照总是得到同样的结果。
type Resolver struct {
	now              func() time.Time
	evaluator        ConditionEvaluator
	conditionGate    func() bool
	onConditionError func(ruleID string, err error)
}

// ResolverOption 用于定制 Resolver。
type ResolverOption func(*Resolver)

// WithClock 替换当前时间来源，主要用于测试时间窗口。
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// WithConditionEvaluator 注入规则条件评估器。未注入时带条件的规则一律不参与匹配。
func WithConditionEvaluator(e ConditionEvaluator) ResolverOption {
	return func(r *Resolver) { r.evaluator = e }
}

// WithConditionGate 每次评估前询问条件功能是否开启，关闭时带条件的规则不参与匹配。
func WithConditionGate(enabled func() bool) ResolverOption {
	return func(r *Resolver) { r.conditionGate = enabled }
}

// WithConditionErrorHook 在条件表达式评估出错时回调，便于记录日志和指标。
func WithConditionErrorHook(fn func(ruleID string, err error)) ResolverOption {
	return func(r *Resolver) { r.onConditionError = fn }
}

// NewResolver 创建一个新的报价解析器。
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve 计算运费。只有缺少商品 ID 时才会返回 ValidationError。
func (r *Resolver) Resolve(req QuoteRequest, rules []ShippingRule, settings *ShippingSettings) (Quote, error) {
	if strings.TrimSpace(req.ProductID) == "" {
		return Quote{}, &ValidationError{Field: "product_id"}
	}

	now := r.now()
	quote := Quote{Amount: decimal.Zero, Source: SourceNone}

	// 1. 规则路径
	if chosen := r.choose(req, rules, now); chosen != nil {
		quote.Amount = Amount(chosen.Pricing, req)
		quote.EtaDays = chosen.EtaDays
		quote.Source = SourceRule
		quote.RuleID = chosen.ID
	} else if settings != nil {
		// 2. 默认配置路径：满额包邮优先于 fallback 模式
		if settings.FreeOverSubtotal != nil && req.Subtotal.GreaterThanOrEqual(*settings.FreeOverSubtotal) {
			quote.Source = SourceFreeOverSubtotal
		} else {
			quote.Amount = Amount(settings.Fallback, req)
			quote.Source = SourceFallback
		}
	}

	if quote.Amount.IsNegative() {
		quote.Amount = decimal.Zero
	}

	// 3. 货到付款手续费最后追加，包邮时同样生效
	if settings != nil && settings.CODFee != nil && settings.CODFee.IsPositive() {
		quote.CODFee = *settings.CODFee
		quote.Amount = quote.Amount.Add(*settings.CODFee)
	}

	return quote, nil
}

// Eligible 判断一条规则是否是候选规则。
func (r *Resolver) Eligible(rule *ShippingRule, req QuoteRequest, now time.Time) bool {
	if !rule.Enabled {
		return false
	}
	if !scopeMatches(rule, req) {
		return false
	}
	if !rule.ActiveAt(now) {
		return false
	}
	if rule.MinSubtotal != nil && req.Subtotal.LessThan(*rule.MinSubtotal) {
		return false
	}
	if cf, ok := rule.Pricing.(CouponFree); ok && !couponMatches(cf.Code, req.Coupon) {
		return false
	}
	if strings.TrimSpace(rule.Condition) != "" {
		return r.conditionHolds(rule, req)
	}
	return true
}

func (r *Resolver) choose(req QuoteRequest, rules []ShippingRule, now time.Time) *ShippingRule {
	candidates := make([]*ShippingRule, 0, len(rules))
	for i := range rules {
		if r.Eligible(&rules[i], req, now) {
			candidates = append(candidates, &rules[i])
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	// 按 (城市级, 省级, 优先级) 降序，最后按规则 ID 升序；完全相同时保留输入顺序
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.HasCityScope() != b.HasCityScope() {
			return a.HasCityScope()
		}
		if a.HasProvinceScope() != b.HasProvinceScope() {
			return a.HasProvinceScope()
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.ID < b.ID
	})
	return candidates[0]
}

func (r *Resolver) conditionHolds(rule *ShippingRule, req QuoteRequest) bool {
	if r.evaluator == nil {
		return false
	}
	if r.conditionGate != nil && !r.conditionGate() {
		return false
	}
	ok, err := r.evaluator.Evaluate(rule.Condition, NewFact(req))
	if err != nil {
		if r.onConditionError != nil {
			r.onConditionError(rule.ID, err)
		}
		return false
	}
	return ok
}

func scopeMatches(rule *ShippingRule, req QuoteRequest) bool {
	switch {
	case rule.HasCityScope():
		return req.CityID != nil && *req.CityID == *rule.CityID
	case rule.HasProvinceScope():
		return strings.EqualFold(strings.TrimSpace(rule.ProvinceCode), strings.TrimSpace(req.ProvinceCode))
	default:
		return !req.SuppliesLocation()
	}
}

func couponMatches(ruleCode, requestCode string) bool {
	requestCode = strings.TrimSpace(requestCode)
	if requestCode == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(ruleCode), requestCode)
}
