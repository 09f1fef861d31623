// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
	"storefront/internal/pkg/database"
	"storefront/internal/pkg/nacos"
)

const defaultConfigPath = "configs/config.yaml"

// Config 是服务的完整配置。文件配置、环境变量、Nacos 远程配置依次覆盖。
type Config struct {
	App      AppConfig      `yaml:"app"`
	Infra    InfraConfig    `yaml:"infra"`
	Shipping ShippingConfig `yaml:"shipping"`
	Admin    AdminConfig    `yaml:"admin"`
}

type AppConfig struct {
	Name         string          `yaml:"name"`
	Port         int             `yaml:"port"`
	LogLevel     string          `yaml:"log_level"`
	LogPretty    bool            `yaml:"log_pretty"`
	FeatureFlags map[string]bool `yaml:"feature_flags"`
}

type InfraConfig struct {
	Jaeger   JaegerConfig    `yaml:"jaeger"`
	Nacos    NacosConfig     `yaml:"nacos"`
	Database database.Config `yaml:"database"`
	Redis    RedisConfig     `yaml:"redis"`
	Kafka    KafkaConfig     `yaml:"kafka"`
}

type JaegerConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

type NacosConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addrs     string `yaml:"addrs"`
	Namespace string `yaml:"namespace"`
	Group     string `yaml:"group"`
	DataID    string `yaml:"data_id"` // 为空时不拉取远程配置
}

type RedisConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Addrs       string        `yaml:"addrs"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	SnapshotTTL time.Duration `yaml:"snapshot_ttl"`
}

type KafkaConfig struct {
	Enabled           bool     `yaml:"enabled"`
	Brokers           []string `yaml:"brokers"`
	QuotesTopic       string   `yaml:"quotes_topic"`
	RulesChangedTopic string   `yaml:"rules_changed_topic"`
	GroupID           string   `yaml:"group_id"`
}

type ShippingConfig struct {
	RuleStoreRetries int           `yaml:"rule_store_retries"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
}

type AdminConfig struct {
	Token string `yaml:"token"`
}

var current atomic.Pointer[Config]

// nacosConfigClient 在启用远程配置时被初始化，关停时关闭。
var nacosConfigClient *nacos.ConfigClient

// Default 返回一份可以直接在本地运行的默认配置。
func Default() *Config {
	return &Config{
		App: AppConfig{Name: "shipping-service", Port: 8086, LogLevel: "info", FeatureFlags: map[string]bool{}},
		Infra: InfraConfig{
			Jaeger:   JaegerConfig{Endpoint: "http://localhost:14268/api/traces", SampleRatio: 1},
			Nacos:    NacosConfig{Addrs: "localhost:8848", Group: "DEFAULT_GROUP"},
			Database: database.Config{Driver: database.DriverPostgres, MaxOpenConns: 10, MaxIdleConns: 5, ConnMaxLifetime: 30 * time.Minute},
			Redis:    RedisConfig{Addrs: "localhost:6379", SnapshotTTL: 5 * time.Minute},
			Kafka: KafkaConfig{
				Brokers:           []string{"localhost:9092"},
				QuotesTopic:       "shipping.quotes",
				RulesChangedTopic: "shipping.rules.changed",
				GroupID:           "shipping-service",
			},
		},
		Shipping: ShippingConfig{RuleStoreRetries: 1, RetryBackoff: 100 * time.Millisecond},
	}
}

// Init 读取 .env、配置文件和环境变量，并在启用时加载 Nacos 远程配置。
// 任何一步失败都会直接退出进程。
func Init() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Failed to load .env file")
	}

	cfg, err := Load(getEnv("CONFIG_PATH", defaultConfigPath))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	current.Store(cfg)

	if cfg.Infra.Nacos.Enabled && cfg.Infra.Nacos.DataID != "" {
		if err := initRemoteConfig(cfg.Infra.Nacos); err != nil {
			log.Fatal().Err(err).Msg("Failed to load remote config from nacos")
		}
	}
}

// GetCurrentConfig 返回当前生效的配置。Init 之前调用时返回默认配置。
func GetCurrentConfig() *Config {
	if cfg := current.Load(); cfg != nil {
		return cfg
	}
	return Default()
}

// SetCurrentConfig 替换当前配置，供测试和 CLI 使用。
func SetCurrentConfig(cfg *Config) {
	current.Store(cfg)
}

// FlagShippingConditions 控制是否评估规则上的 CEL 条件。
const FlagShippingConditions = "shipping_conditions"

// FeatureEnabled 读取一个功能开关，远程配置修改后立即生效。
func FeatureEnabled(name string) bool {
	return GetCurrentConfig().App.FeatureFlags[name]
}

// Load 从 path 读取 YAML 配置，文件不存在时使用默认值，然后应用环境变量覆盖。
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		log.Warn().Str("path", path).Msg("Config file not found, using defaults")
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查启动所必需的配置项。
func (c *Config) Validate() error {
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("app.port %d out of range", c.App.Port)
	}
	switch c.Infra.Database.Driver {
	case database.DriverMySQL, database.DriverPostgres:
	default:
		return fmt.Errorf("infra.database.driver %q not supported", c.Infra.Database.Driver)
	}
	if c.Shipping.RuleStoreRetries < 0 {
		return fmt.Errorf("shipping.rule_store_retries must not be negative")
	}
	if c.Infra.Kafka.Enabled && len(c.Infra.Kafka.Brokers) == 0 {
		return fmt.Errorf("infra.kafka.brokers required when kafka is enabled")
	}
	return nil
}

// applyEnv 用环境变量覆盖地址和密钥类配置。
func applyEnv(cfg *Config) {
	cfg.App.Port = getEnvInt("PORT", cfg.App.Port)
	cfg.App.LogLevel = getEnv("LOG_LEVEL", cfg.App.LogLevel)

	cfg.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", cfg.Infra.Jaeger.Endpoint)

	cfg.Infra.Nacos.Addrs = getEnv("NACOS_SERVER_ADDRS", cfg.Infra.Nacos.Addrs)
	cfg.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", cfg.Infra.Nacos.Namespace)
	cfg.Infra.Nacos.Group = getEnv("NACOS_GROUP", cfg.Infra.Nacos.Group)

	cfg.Infra.Database.Driver = getEnv("DATABASE_DRIVER", cfg.Infra.Database.Driver)
	cfg.Infra.Database.DSN = getEnv("DATABASE_URL", cfg.Infra.Database.DSN)
	cfg.Infra.Database.Password = getEnv("DATABASE_PASSWORD", cfg.Infra.Database.Password)

	cfg.Infra.Redis.Addrs = getEnv("REDIS_ADDRS", cfg.Infra.Redis.Addrs)
	cfg.Infra.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Infra.Redis.Password)

	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.Infra.Kafka.Brokers = strings.Split(brokers, ",")
	}

	cfg.Admin.Token = getEnv("ADMIN_TOKEN", cfg.Admin.Token)
}

// initRemoteConfig 拉取 Nacos 上的配置并监听变更。远程配置只覆盖它包含的字段。
func initRemoteConfig(nc NacosConfig) error {
	client, err := nacos.NewConfigClient(nc.Addrs, nc.Namespace)
	if err != nil {
		return err
	}
	nacosConfigClient = client

	content, err := client.GetConfig(nc.DataID, nc.Group)
	if err != nil {
		return err
	}
	if err := applyRemote(content); err != nil {
		return err
	}

	return client.ListenConfig(nc.DataID, nc.Group, func(data string) {
		if err := applyRemote(data); err != nil {
			log.Error().Err(err).Str("data_id", nc.DataID).Msg("Ignoring invalid remote config")
			return
		}
		log.Info().Str("data_id", nc.DataID).Msg("Remote config reloaded")
	})
}

// applyRemote 在当前配置的副本上合并远程 YAML，校验通过后原子替换。
func applyRemote(content string) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	next := *GetCurrentConfig()
	next.App.FeatureFlags = map[string]bool{}
	for k, v := range GetCurrentConfig().App.FeatureFlags {
		next.App.FeatureFlags[k] = v
	}
	if err := yaml.Unmarshal([]byte(content), &next); err != nil {
		return fmt.Errorf("parse remote config: %w", err)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	current.Store(&next)
	return nil
}

// getEnv 是一个内部辅助函数，从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("Ignoring non-numeric environment variable")
		return fallback
	}
	return n
}
