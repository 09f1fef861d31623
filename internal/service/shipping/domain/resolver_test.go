package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestResolver(opts ...ResolverOption) *Resolver {
	opts = append([]ResolverOption{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewResolver(opts...)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}
func intPtr(i int) *int              { return &i }
func idPtr(i int64) *int64           { return &i }
func timePtr(t time.Time) *time.Time { return &t }

func baseRequest() QuoteRequest {
	return QuoteRequest{
		ProductID: "tracker-mini",
		Items:     []Item{{VariantID: "black", Qty: 1}},
		Subtotal:  dec("2500"),
	}
}

func flatRule(id string, amount string) ShippingRule {
	return ShippingRule{ID: id, ProductID: "tracker-mini", Enabled: true, Pricing: Flat{Amount: dec(amount)}}
}

func TestResolve_MissingProductID(t *testing.T) {
	r := newTestResolver()
	_, err := r.Resolve(QuoteRequest{ProductID: "  "}, nil, nil)

	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "product_id", vErr.Field)
	assert.Equal(t, "product_id required", err.Error())
}

func TestResolve_NoRulesNoSettings(t *testing.T) {
	r := newTestResolver()
	q, err := r.Resolve(baseRequest(), nil, nil)

	require.NoError(t, err)
	assert.True(t, q.Amount.IsZero())
	assert.Nil(t, q.EtaDays)
	assert.Equal(t, SourceNone, q.Source)
}

func TestResolve_ModeAmounts(t *testing.T) {
	weight := dec("2.5")
	tests := []struct {
		name    string
		pricing Pricing
		req     func(QuoteRequest) QuoteRequest
		want    string
	}{
		{"free", Free{}, nil, "0"},
		{"flat", Flat{Amount: dec("199")}, nil, "199"},
		{"per item sums quantities", PerItem{Amount: dec("100")}, func(q QuoteRequest) QuoteRequest {
			q.Items = []Item{{VariantID: "a", Qty: 2}, {VariantID: "b", Qty: 3}}
			return q
		}, "500"},
		{"per item does not overflow on huge quantities", PerItem{Amount: dec("1")}, func(q QuoteRequest) QuoteRequest {
			q.Items = []Item{{VariantID: "a", Qty: 9223372036854775807}, {VariantID: "b", Qty: 9223372036854775807}}
			return q
		}, "18446744073709551614"},
		{"per kg", PerKg{Base: dec("150"), PerKg: dec("40")}, func(q QuoteRequest) QuoteRequest {
			q.TotalWeightKg = &weight
			return q
		}, "250"},
		{"per kg without weight", PerKg{Base: dec("150"), PerKg: dec("40")}, nil, "150"},
		{"coupon free", CouponFree{Code: "SHIPFREE"}, func(q QuoteRequest) QuoteRequest {
			q.Coupon = "shipfree"
			return q
		}, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := baseRequest()
			if tt.req != nil {
				req = tt.req(req)
			}
			rule := ShippingRule{ID: "r1", Enabled: true, Pricing: tt.pricing, EtaDays: intPtr(3)}

			q, err := newTestResolver().Resolve(req, []ShippingRule{rule}, nil)

			require.NoError(t, err)
			assert.True(t, dec(tt.want).Equal(q.Amount), "got %s", q.Amount)
			assert.Equal(t, SourceRule, q.Source)
			assert.Equal(t, "r1", q.RuleID)
			require.NotNil(t, q.EtaDays)
			assert.Equal(t, 3, *q.EtaDays)
		})
	}
}

func TestResolve_ScopePrecedence(t *testing.T) {
	city := flatRule("city", "100")
	city.CityID = idPtr(42)
	province := flatRule("province", "200")
	province.ProvinceCode = "PB"
	province.Priority = 99
	global := flatRule("global", "300")
	global.Priority = 1000

	rules := []ShippingRule{global, province, city}
	r := newTestResolver()

	t.Run("city beats province and global", func(t *testing.T) {
		req := baseRequest()
		req.ProvinceCode = "PB"
		req.City = "Lahore"
		req.CityID = idPtr(42)

		q, err := r.Resolve(req, rules, nil)
		require.NoError(t, err)
		assert.Equal(t, "city", q.RuleID)
	})

	t.Run("province when city does not match", func(t *testing.T) {
		req := baseRequest()
		req.ProvinceCode = "pb"
		req.City = "Multan"
		req.CityID = idPtr(7)

		q, err := r.Resolve(req, rules, nil)
		require.NoError(t, err)
		assert.Equal(t, "province", q.RuleID)
	})

	t.Run("global only without any location", func(t *testing.T) {
		q, err := r.Resolve(baseRequest(), rules, nil)
		require.NoError(t, err)
		assert.Equal(t, "global", q.RuleID)
	})

	t.Run("global excluded when location supplied", func(t *testing.T) {
		req := baseRequest()
		req.ProvinceCode = "SD"

		q, err := r.Resolve(req, rules, nil)
		require.NoError(t, err)
		assert.Equal(t, SourceNone, q.Source)
	})
}

func TestResolve_PriorityWithinTier(t *testing.T) {
	a := flatRule("a", "100")
	a.ProvinceCode = "PB"
	a.Priority = 1
	b := flatRule("b", "200")
	b.ProvinceCode = "PB"
	b.Priority = 2

	req := baseRequest()
	req.ProvinceCode = "PB"
	r := newTestResolver()

	q, _ := r.Resolve(req, []ShippingRule{a, b}, nil)
	assert.Equal(t, "b", q.RuleID)

	a.Priority, b.Priority = b.Priority, a.Priority
	q, _ = r.Resolve(req, []ShippingRule{a, b}, nil)
	assert.Equal(t, "a", q.RuleID)
}

func TestResolve_TieBreakByRuleID(t *testing.T) {
	z := flatRule("zz", "100")
	a := flatRule("aa", "200")

	q, err := newTestResolver().Resolve(baseRequest(), []ShippingRule{z, a}, nil)

	require.NoError(t, err)
	assert.Equal(t, "aa", q.RuleID)
}

func TestResolve_CouponFreeRequiresCoupon(t *testing.T) {
	coupon := ShippingRule{ID: "coupon", Enabled: true, CityID: idPtr(42), Pricing: CouponFree{Code: "FREESHIP"}}
	fallback := flatRule("province", "250")
	fallback.ProvinceCode = "PB"

	req := baseRequest()
	req.ProvinceCode = "PB"
	req.CityID = idPtr(42)
	r := newTestResolver()

	q, _ := r.Resolve(req, []ShippingRule{coupon, fallback}, nil)
	assert.Equal(t, "province", q.RuleID, "coupon rule must be skipped without coupon")

	req.Coupon = "WRONG"
	q, _ = r.Resolve(req, []ShippingRule{coupon, fallback}, nil)
	assert.Equal(t, "province", q.RuleID)

	req.Coupon = " freeship "
	q, _ = r.Resolve(req, []ShippingRule{coupon, fallback}, nil)
	assert.Equal(t, "coupon", q.RuleID)
	assert.True(t, q.Amount.IsZero())
}

func TestResolve_TimeWindowInclusive(t *testing.T) {
	r := newTestResolver()

	endsNow := flatRule("ends-now", "100")
	endsNow.ActiveTo = timePtr(fixedNow)
	q, _ := r.Resolve(baseRequest(), []ShippingRule{endsNow}, nil)
	assert.Equal(t, "ends-now", q.RuleID)

	startsNow := flatRule("starts-now", "100")
	startsNow.ActiveFrom = timePtr(fixedNow)
	q, _ = r.Resolve(baseRequest(), []ShippingRule{startsNow}, nil)
	assert.Equal(t, "starts-now", q.RuleID)

	expired := flatRule("expired", "100")
	expired.ActiveTo = timePtr(fixedNow.Add(-time.Nanosecond))
	q, _ = r.Resolve(baseRequest(), []ShippingRule{expired}, nil)
	assert.Equal(t, SourceNone, q.Source)

	future := flatRule("future", "100")
	future.ActiveFrom = timePtr(fixedNow.Add(time.Second))
	q, _ = r.Resolve(baseRequest(), []ShippingRule{future}, nil)
	assert.Equal(t, SourceNone, q.Source)
}

func TestResolve_DisabledAndMinSubtotal(t *testing.T) {
	disabled := flatRule("disabled", "100")
	disabled.Enabled = false
	tooSmall := flatRule("min", "100")
	tooSmall.MinSubtotal = decPtr("3000")
	exact := flatRule("exact", "100")
	exact.MinSubtotal = decPtr("2500")

	q, _ := newTestResolver().Resolve(baseRequest(), []ShippingRule{disabled, tooSmall, exact}, nil)
	assert.Equal(t, "exact", q.RuleID)
}

func TestResolve_FallbackPaths(t *testing.T) {
	r := newTestResolver()

	t.Run("free over subtotal plus cod fee", func(t *testing.T) {
		req := baseRequest()
		req.Subtotal = dec("1200")
		settings := &ShippingSettings{Fallback: Flat{Amount: dec("250")}, FreeOverSubtotal: decPtr("1000"), CODFee: decPtr("50")}

		q, err := r.Resolve(req, nil, settings)
		require.NoError(t, err)
		assert.True(t, dec("50").Equal(q.Amount))
		assert.Nil(t, q.EtaDays)
		assert.Equal(t, SourceFreeOverSubtotal, q.Source)
	})

	t.Run("below threshold uses fallback mode", func(t *testing.T) {
		req := baseRequest()
		req.Subtotal = dec("999.99")
		settings := &ShippingSettings{Fallback: Flat{Amount: dec("250")}, FreeOverSubtotal: decPtr("1000")}

		q, _ := r.Resolve(req, nil, settings)
		assert.True(t, dec("250").Equal(q.Amount))
		assert.Equal(t, SourceFallback, q.Source)
	})

	t.Run("unknown fallback mode is zero", func(t *testing.T) {
		q, _ := r.Resolve(baseRequest(), nil, &ShippingSettings{Fallback: Unknown{Raw: "weird"}})
		assert.True(t, q.Amount.IsZero())
		assert.Equal(t, SourceFallback, q.Source)
	})

	t.Run("per item fallback", func(t *testing.T) {
		req := baseRequest()
		req.Items = []Item{{Qty: 2}, {Qty: 3}}
		q, _ := r.Resolve(req, nil, &ShippingSettings{Fallback: PerItem{Amount: dec("100")}})
		assert.True(t, dec("500").Equal(q.Amount))
	})

	t.Run("rule path ignores free over subtotal but keeps cod fee", func(t *testing.T) {
		req := baseRequest()
		req.Subtotal = dec("5000")
		settings := &ShippingSettings{FreeOverSubtotal: decPtr("1000"), CODFee: decPtr("50")}

		q, _ := r.Resolve(req, []ShippingRule{flatRule("flat", "200")}, settings)
		assert.True(t, dec("250").Equal(q.Amount))
		assert.Equal(t, SourceRule, q.Source)
	})

	t.Run("non positive cod fee ignored", func(t *testing.T) {
		q, _ := r.Resolve(baseRequest(), []ShippingRule{flatRule("flat", "200")}, &ShippingSettings{CODFee: decPtr("0")})
		assert.True(t, dec("200").Equal(q.Amount))
	})
}

func TestResolve_Idempotent(t *testing.T) {
	rules := []ShippingRule{flatRule("b", "100"), flatRule("a", "200")}
	settings := &ShippingSettings{CODFee: decPtr("30")}
	r := newTestResolver()

	first, _ := r.Resolve(baseRequest(), rules, settings)
	second, _ := r.Resolve(baseRequest(), rules, settings)

	assert.Equal(t, first, second)
	assert.Equal(t, "b", rules[0].ID, "input slice must not be reordered")
}

type stubEvaluator struct {
	result bool
	err    error
	calls  int
}

func (s *stubEvaluator) Evaluate(expression string, fact Fact) (bool, error) {
	s.calls++
	return s.result, s.err
}

func TestResolve_Conditions(t *testing.T) {
	conditional := flatRule("conditional", "100")
	conditional.Priority = 10
	conditional.Condition = "item_count > 3"
	plain := flatRule("plain", "300")

	t.Run("no evaluator skips conditional rules", func(t *testing.T) {
		q, _ := newTestResolver().Resolve(baseRequest(), []ShippingRule{conditional, plain}, nil)
		assert.Equal(t, "plain", q.RuleID)
	})

	t.Run("true condition keeps rule", func(t *testing.T) {
		ev := &stubEvaluator{result: true}
		q, _ := newTestResolver(WithConditionEvaluator(ev)).Resolve(baseRequest(), []ShippingRule{conditional, plain}, nil)
		assert.Equal(t, "conditional", q.RuleID)
		assert.Equal(t, 1, ev.calls)
	})

	t.Run("evaluation error excludes rule and reports", func(t *testing.T) {
		ev := &stubEvaluator{err: errors.New("boom")}
		var reported string
		r := newTestResolver(WithConditionEvaluator(ev), WithConditionErrorHook(func(id string, err error) { reported = id }))

		q, _ := r.Resolve(baseRequest(), []ShippingRule{conditional, plain}, nil)
		assert.Equal(t, "plain", q.RuleID)
		assert.Equal(t, "conditional", reported)
	})

	t.Run("gate is read on every resolve", func(t *testing.T) {
		ev := &stubEvaluator{result: true}
		enabled := false
		r := newTestResolver(WithConditionEvaluator(ev), WithConditionGate(func() bool { return enabled }))

		q, _ := r.Resolve(baseRequest(), []ShippingRule{conditional, plain}, nil)
		assert.Equal(t, "plain", q.RuleID)
		assert.Equal(t, 0, ev.calls, "closed gate does not evaluate")

		enabled = true
		q, _ = r.Resolve(baseRequest(), []ShippingRule{conditional, plain}, nil)
		assert.Equal(t, "conditional", q.RuleID)
		assert.Equal(t, 1, ev.calls)
	})
}
