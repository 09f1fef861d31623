package infrastructure

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/pkg/mq"
	"storefront/internal/service/shipping/domain/port"
)

// QuoteProducerAdapter 把报价事件写入 Kafka，实现 port.QuoteEventPublisher。
type QuoteProducerAdapter struct {
	writer *kafka.Writer
}

func NewQuoteProducerAdapter(writer *kafka.Writer) *QuoteProducerAdapter {
	topic := writer.Topic
	// 异步模式下 WriteMessages 不返回投递错误，投递结果只能在回调里统计
	writer.Completion = func(messages []kafka.Message, err error) {
		status := "success"
		if err != nil {
			status = "error"
			log.Warn().Err(err).Int("messages", len(messages)).Str("topic", topic).Msg("Quote events delivery failed")
		}
		metrics.EventsPublishedTotal.WithLabelValues(topic, status).Add(float64(len(messages)))
	}
	return &QuoteProducerAdapter{writer: writer}
}

func (p *QuoteProducerAdapter) PublishQuoteCalculated(ctx context.Context, event *port.QuoteCalculated) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("Failed to marshal quote event")
		return err
	}

	// 以 product_id 作为 key，同一商品的报价事件保持顺序
	return mq.ProduceMessage(ctx, p.writer, []byte(event.ProductID), eventBytes)
}

func (p *QuoteProducerAdapter) Close() error {
	return p.writer.Close()
}
