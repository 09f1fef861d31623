package port

import (
	"context"
	"time"
)

// QuoteCalculated 是每次成功报价后发布的分析事件。
type QuoteCalculated struct {
	QuoteID      string    `json:"quote_id"`
	ProductID    string    `json:"product_id"`
	ProvinceCode string    `json:"province_code,omitempty"`
	City         string    `json:"city,omitempty"`
	Amount       string    `json:"amount"`
	EtaDays      *int      `json:"eta_days,omitempty"`
	Source       string    `json:"source"`
	RuleID       string    `json:"rule_id,omitempty"`
	TraceID      string    `json:"trace_id,omitempty"`
	CalculatedAt time.Time `json:"calculated_at"`
}

// QuoteEventPublisher 是报价事件的出站端口。
type QuoteEventPublisher interface {
	PublishQuoteCalculated(ctx context.Context, event *QuoteCalculated) error
}

// RulesChanged 是后台修改规则或配置后发布的事件，用于让快照缓存失效。
type RulesChanged struct {
	ProductID string    `json:"product_id"`
	ChangedAt time.Time `json:"changed_at,omitempty"`
}

// SnapshotInvalidator 让某个商品的快照缓存失效。
type SnapshotInvalidator interface {
	Invalidate(ctx context.Context, productID string) error
}
