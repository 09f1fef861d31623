package application

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/service/shipping/domain"
	"storefront/internal/service/shipping/domain/port"
)

const eventPublishTimeout = 2 * time.Second

// ShippingService 定义了运费服务提供的业务用例
type ShippingService struct {
	snapshots domain.SnapshotRepository
	cities    domain.CityRepository
	resolver  *domain.Resolver
	publisher port.QuoteEventPublisher
	tracer    trace.Tracer
	validate  *validator.Validate

	retries      int
	retryBackoff time.Duration
}

// Option 定制 ShippingService。
type Option func(*ShippingService)

// WithRetry 设置读取规则快照失败时的重试次数与间隔。
func WithRetry(retries int, backoff time.Duration) Option {
	return func(s *ShippingService) {
		if retries > 0 {
			s.retries = retries
		}
		s.retryBackoff = backoff
	}
}

// WithPublisher 注入报价事件发布器，不注入时不发布事件。
func WithPublisher(p port.QuoteEventPublisher) Option {
	return func(s *ShippingService) { s.publisher = p }
}

// NewShippingService 创建一个新的运费服务实例
func NewShippingService(snapshots domain.SnapshotRepository, cities domain.CityRepository, resolver *domain.Resolver, tracer trace.Tracer, opts ...Option) *ShippingService {
	s := &ShippingService{
		snapshots: snapshots,
		cities:    cities,
		resolver:  resolver,
		tracer:    tracer,
		validate:  newValidator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetQuote 是运费报价的核心用例：校验 -> 解析城市 -> 读取快照 -> 计算。
func (s *ShippingService) GetQuote(ctx context.Context, req *QuoteRequest) (*QuoteResponse, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "service.GetQuote")
	defer span.End()

	// 1. 请求校验
	if err := s.validateRequest(req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid quote request")
		metrics.ObserveQuote(start, string(domain.SourceNone), "invalid")
		return nil, err
	}

	span.SetAttributes(
		attribute.String("product.id", req.ProductID),
		attribute.String("shipping.province", req.ProvinceCode),
		attribute.String("shipping.city", req.City),
		attribute.Int("order.items", len(req.Items)),
	)

	for _, field := range req.coercedFields() {
		metrics.NumericCoercionsTotal.WithLabelValues("request." + field).Inc()
		logger.Ctx(ctx).Warn().Str("field", field).Str("product_id", req.ProductID).Msg("Malformed numeric request field coerced to 0")
	}

	// 2. 解析城市 ID
	cityID, err := s.resolveCity(ctx, req)
	if err != nil {
		return nil, s.fail(ctx, span, start, err)
	}

	// 3. 读取规则快照（带重试）
	snapshot, err := s.loadSnapshot(ctx, strings.TrimSpace(req.ProductID))
	if err != nil {
		return nil, s.fail(ctx, span, start, err)
	}

	// 4. 计算运费
	dreq := req.toDomain(cityID)
	quote, err := s.resolver.Resolve(dreq, snapshot.Rules, snapshot.Settings)
	if err != nil {
		span.RecordError(err)
		metrics.ObserveQuote(start, string(domain.SourceNone), "invalid")
		return nil, err
	}

	span.SetAttributes(
		attribute.String("quote.source", string(quote.Source)),
		attribute.String("quote.rule_id", quote.RuleID),
		attribute.String("quote.amount", quote.Amount.String()),
	)
	span.AddEvent("Shipping quote calculated")
	logger.Ctx(ctx).Info().
		Str("product_id", dreq.ProductID).
		Str("source", string(quote.Source)).
		Str("rule_id", quote.RuleID).
		Str("amount", quote.Amount.String()).
		Msg("Shipping quote calculated")

	metrics.ObserveQuote(start, string(quote.Source), "ok")
	s.publishQuote(ctx, dreq, quote)

	return toQuoteResponse(quote), nil
}

func (s *ShippingService) validateRequest(req *QuoteRequest) error {
	if req == nil {
		return &domain.ValidationError{Field: "product_id"}
	}
	if err := s.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return &domain.ValidationError{Field: fieldErrs[0].Field()}
		}
		return &domain.ValidationError{Field: "request"}
	}
	if strings.TrimSpace(req.ProductID) == "" {
		return &domain.ValidationError{Field: "product_id"}
	}
	return nil
}

func (s *ShippingService) resolveCity(ctx context.Context, req *QuoteRequest) (*int64, error) {
	if strings.TrimSpace(req.City) == "" || s.cities == nil {
		return nil, nil
	}
	cityID, err := s.cities.FindCityID(ctx, strings.TrimSpace(req.ProvinceCode), strings.TrimSpace(req.City))
	if err != nil {
		return nil, &domain.UpstreamError{Op: "city lookup", Err: err}
	}
	return cityID, nil
}

func (s *ShippingService) loadSnapshot(ctx context.Context, productID string) (*domain.Snapshot, error) {
	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			logger.Ctx(ctx).Warn().Err(lastErr).Int("attempt", attempt).Msg("Retrying shipping rule snapshot read")
			select {
			case <-ctx.Done():
				return nil, &domain.UpstreamError{Op: "shipping rules lookup", Err: ctx.Err()}
			case <-time.After(s.retryBackoff):
			}
		}
		snapshot, err := s.snapshots.LoadSnapshot(ctx, productID)
		if err == nil {
			if snapshot == nil {
				snapshot = &domain.Snapshot{ProductID: productID}
			}
			return snapshot, nil
		}
		lastErr = err
	}
	return nil, &domain.UpstreamError{Op: "shipping rules lookup", Err: lastErr}
}

func (s *ShippingService) fail(ctx context.Context, span trace.Span, start time.Time, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	logger.Ctx(ctx).Error().Err(err).Msg("Shipping quote failed")
	metrics.ObserveQuote(start, string(domain.SourceNone), "error")
	return err
}

// publishQuote 尽力而为地发布报价事件，失败只记录日志，不影响报价结果。
func (s *ShippingService) publishQuote(ctx context.Context, req domain.QuoteRequest, q domain.Quote) {
	if s.publisher == nil {
		return
	}
	event := &port.QuoteCalculated{
		QuoteID:      uuid.NewString(),
		ProductID:    req.ProductID,
		ProvinceCode: req.ProvinceCode,
		City:         req.City,
		Amount:       q.Amount.StringFixed(2),
		EtaDays:      q.EtaDays,
		Source:       string(q.Source),
		RuleID:       q.RuleID,
		TraceID:      logger.TraceID(ctx),
		CalculatedAt: time.Now().UTC(),
	}

	pubCtx, cancel := context.WithTimeout(ctx, eventPublishTimeout)
	defer cancel()
	if err := s.publisher.PublishQuoteCalculated(pubCtx, event); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("quote_id", event.QuoteID).Msg("Failed to publish quote event")
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	// 用 json 标签作为字段名，这样错误信息是 product_id 而不是 ProductID
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}
