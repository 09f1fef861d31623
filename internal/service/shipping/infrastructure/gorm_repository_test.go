package infrastructure

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// dryRunDB 只生成 SQL 不连接数据库。
func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost user=shop dbname=shop sslmode=disable"}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               gormlogger.Discard,
	})
	require.NoError(t, err)
	return db
}

func TestShippingRuleModel_EnabledHasNoDefault(t *testing.T) {
	sch, err := schema.Parse(&ShippingRuleModel{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)

	field := sch.LookUpField("enabled")
	require.NotNil(t, field)
	assert.False(t, field.HasDefaultValue)
}

func TestUpsertRule_KeepsDisabledRule(t *testing.T) {
	model := &ShippingRuleModel{ID: "r1", ProductID: "tracker-x", Mode: "flat", Enabled: false}

	res := upsertRule(dryRunDB(t), model)
	require.NoError(t, res.Error)

	assert.False(t, model.Enabled)
	assert.Contains(t, res.Statement.SQL.String(), "ON CONFLICT")
	assert.Contains(t, res.Statement.Vars, false)
	assert.NotContains(t, res.Statement.Vars, true)
}

func TestImportSnapshot_RejectsRuleWithoutID(t *testing.T) {
	store := NewGormRuleStore(dryRunDB(t))
	rows := &SnapshotRows{
		ProductID: "tracker-x",
		Rules: []ShippingRuleModel{
			{ID: "r1", ProductID: "tracker-x", Mode: "free", Enabled: true},
			{ID: "  ", ProductID: "tracker-x", Mode: "flat", Enabled: true},
		},
	}

	err := store.ImportSnapshot(context.Background(), rows, nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "rule #2 of product tracker-x: id required"), err.Error())
}
