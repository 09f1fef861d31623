package infrastructure

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/pkg/mq"
	"storefront/internal/service/shipping/domain/port"
)

// messageReader 是 kafka.Reader 中消费者用到的部分，测试时可以替换。
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RulesChangedConsumer 是一个驱动适配器，它监听规则变更消息并让快照缓存失效。
type RulesChangedConsumer struct {
	reader      messageReader
	topic       string
	invalidator port.SnapshotInvalidator
	wg          sync.WaitGroup
	cancel      context.CancelFunc
}

// NewRulesChangedConsumer 创建一个新的 Kafka 消费者适配器。
func NewRulesChangedConsumer(reader *kafka.Reader, invalidator port.SnapshotInvalidator) *RulesChangedConsumer {
	return newRulesChangedConsumer(reader, reader.Config().Topic, invalidator)
}

func newRulesChangedConsumer(reader messageReader, topic string, invalidator port.SnapshotInvalidator) *RulesChangedConsumer {
	return &RulesChangedConsumer{reader: reader, topic: topic, invalidator: invalidator}
}

// Start 开始监听 Kafka 主题，在后台 goroutine 中运行直到 Stop 或 ctx 取消。
func (c *RulesChangedConsumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		log.Info().Str("topic", c.topic).Msg("Rules-changed consumer started")
		for {
			// 使用 FetchMessage 而不是 ReadMessage，处理完成后再手动提交
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					log.Info().Str("topic", c.topic).Msg("Rules-changed consumer shutting down")
					return
				}
				log.Error().Err(err).Msg("Could not read message, retrying")
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}

			c.processMessage(ctx, msg)

			if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("Failed to commit message")
			}
		}
	}()
}

// Stop 优雅地停止消费者。
func (c *RulesChangedConsumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	if err := c.reader.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close kafka reader")
	}
	log.Info().Str("topic", c.topic).Msg("Rules-changed consumer stopped")
}

// processMessage 反序列化消息并让对应商品的缓存失效。无法解析的消息会被跳过。
func (c *RulesChangedConsumer) processMessage(parentCtx context.Context, msg kafka.Message) {
	ctx := mq.ExtractTraceContext(parentCtx, msg.Headers)
	ctx, span := tracer.Start(ctx, "consumer.RulesChanged")
	defer span.End()

	var event port.RulesChanged
	if err := json.Unmarshal(msg.Value, &event); err != nil || strings.TrimSpace(event.ProductID) == "" {
		// 兼容只把 product_id 放在 key 里的生产者
		event.ProductID = strings.TrimSpace(string(msg.Key))
	}
	if event.ProductID == "" {
		metrics.RulesChangedTotal.WithLabelValues("skipped").Inc()
		logger.Ctx(ctx).Warn().Int64("offset", msg.Offset).Msg("Rules-changed message without product_id skipped")
		return
	}

	if err := c.invalidator.Invalidate(ctx, event.ProductID); err != nil {
		span.RecordError(err)
		metrics.RulesChangedTotal.WithLabelValues("error").Inc()
		logger.Ctx(ctx).Error().Err(err).Str("product_id", event.ProductID).Msg("Failed to invalidate shipping snapshot")
		return
	}
	metrics.RulesChangedTotal.WithLabelValues("invalidated").Inc()
	logger.Ctx(ctx).Info().Str("product_id", event.ProductID).Msg("Shipping snapshot invalidated")
}
