package main

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/database"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
	"storefront/internal/pkg/redis"
	"storefront/internal/service/shipping/application"
	"storefront/internal/service/shipping/domain"
	"storefront/internal/service/shipping/infrastructure"
	"storefront/internal/service/shipping/infrastructure/rule"
	"storefront/internal/service/shipping/interfaces"
	settingsapp "storefront/internal/service/sitesettings/application"
	settingsinfra "storefront/internal/service/sitesettings/infrastructure"
	settingsapi "storefront/internal/service/sitesettings/interfaces"
)

const serviceName = "shipping-service"

func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()
	logger.Init(serviceName, cfg.App.LogLevel, cfg.App.LogPretty)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var closers []func(context.Context) error

	// 1. 规则存储
	db, err := database.Open(cfg.Infra.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open rule store")
	}
	closers = append(closers, func(context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	store := infrastructure.NewGormRuleStore(db)

	// 2. 快照缓存（可选）
	var (
		rows   infrastructure.RowSource = store
		cached *infrastructure.CachedRowSource
	)
	if cfg.Infra.Redis.Enabled {
		rc, err := redis.NewClient(ctx, cfg.Infra.Redis.Addrs, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to redis")
		}
		closers = append(closers, func(context.Context) error { return rc.Close() })
		cached = infrastructure.NewCachedRowSource(store, rc, cfg.Infra.Redis.SnapshotTTL)
		rows = cached
	}

	// 3. 规则条件
	resolverOpts := []domain.ResolverOption{
		domain.WithConditionErrorHook(func(ruleID string, err error) {
			log.Warn().Err(err).Str("rule_id", ruleID).Msg("Rule condition failed, rule skipped")
		}),
	}
	evaluator, err := rule.NewCELEvaluator()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build condition evaluator")
	}
	resolverOpts = append(resolverOpts,
		domain.WithConditionEvaluator(evaluator),
		// 开关可以通过 Nacos 远程配置随时切换
		domain.WithConditionGate(func() bool { return bootstrap.FeatureEnabled(bootstrap.FlagShippingConditions) }),
	)

	// 4. Kafka：报价事件与规则变更
	svcOpts := []application.Option{application.WithRetry(cfg.Shipping.RuleStoreRetries, cfg.Shipping.RetryBackoff)}
	if cfg.Infra.Kafka.Enabled {
		producer := infrastructure.NewQuoteProducerAdapter(mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.QuotesTopic, true))
		svcOpts = append(svcOpts, application.WithPublisher(producer))
		closers = append(closers, func(context.Context) error { return producer.Close() })

		if cached != nil {
			reader := mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.RulesChangedTopic, cfg.Infra.Kafka.GroupID)
			consumer := infrastructure.NewRulesChangedConsumer(reader, cached)
			consumer.Start(ctx)
			closers = append(closers, func(context.Context) error {
				consumer.Stop()
				return nil
			})
		}
	}

	// 5. 应用服务
	svc := application.NewShippingService(
		infrastructure.NewSnapshotRepository(rows),
		store,
		domain.NewResolver(resolverOpts...),
		otel.Tracer(serviceName),
		svcOpts...,
	)
	settingsSvc, err := settingsapp.NewService(settingsinfra.NewGormRepository(db))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build site settings service")
	}

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			interfaces.NewShippingHandler(svc).RegisterRoutes(appCtx.Mux)
			settingsapi.NewSettingsHandler(settingsSvc, func() string {
				return bootstrap.GetCurrentConfig().Admin.Token
			}).RegisterRoutes(appCtx.Mux)
		},
		OnShutdown: closers,
	})
}
