package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  port: 9090
  feature_flags:
    shipping_conditions: true
infra:
  database:
    driver: mysql
    host: db
    name: shop
  redis:
    enabled: true
    snapshot_ttl: 90s
shipping:
  rule_store_retries: 3
  retry_backoff: 250ms
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, "shipping-service", cfg.App.Name, "defaults survive partial files")
	assert.True(t, cfg.App.FeatureFlags["shipping_conditions"])
	assert.Equal(t, "mysql", cfg.Infra.Database.Driver)
	assert.Equal(t, 90*time.Second, cfg.Infra.Redis.SnapshotTTL)
	assert.Equal(t, 3, cfg.Shipping.RuleStoreRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Shipping.RetryBackoff)
	assert.Equal(t, "shipping.quotes", cfg.Infra.Kafka.QuotesTopic)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("DATABASE_URL", "postgres://u:p@pg/shop")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("ADMIN_TOKEN", "s3cret")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.App.Port)
	assert.Equal(t, "postgres://u:p@pg/shop", cfg.Infra.Database.DSN)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Infra.Kafka.Brokers)
	assert.Equal(t, "s3cret", cfg.Admin.Token)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(writeConfig(t, "app: [not, a, map]"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "infra:\n  database:\n    driver: oracle\n"))
	assert.ErrorContains(t, err, "oracle")

	_, err = Load(writeConfig(t, "shipping:\n  rule_store_retries: -1\n"))
	assert.Error(t, err)
}

func TestApplyRemote(t *testing.T) {
	base := Default()
	base.App.FeatureFlags["existing"] = true
	SetCurrentConfig(base)
	t.Cleanup(func() { SetCurrentConfig(Default()) })

	require.NoError(t, applyRemote(`
app:
  feature_flags:
    shipping_conditions: true
shipping:
  rule_store_retries: 4
`))
	cfg := GetCurrentConfig()
	assert.Equal(t, 4, cfg.Shipping.RuleStoreRetries)
	assert.True(t, FeatureEnabled(FlagShippingConditions))
	assert.True(t, FeatureEnabled("existing"))
	assert.False(t, base.App.FeatureFlags["shipping_conditions"], "previous config is not mutated")

	// 非法的远程配置被拒绝，当前配置保持不变
	assert.Error(t, applyRemote("app:\n  port: 0\n"))
	assert.Equal(t, 4, GetCurrentConfig().Shipping.RuleStoreRetries)

	assert.NoError(t, applyRemote("   "))
}
