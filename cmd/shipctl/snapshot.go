package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"storefront/internal/service/shipping/infrastructure"
)

// snapshotFile 是离线快照文件的格式，字段名与数据库列名一致。
type snapshotFile struct {
	ProductID string        `yaml:"product_id"`
	Rules     []ruleFile    `yaml:"rules"`
	Settings  *settingsFile `yaml:"settings"`
	Cities    []cityFile    `yaml:"cities"`
}

type ruleFile struct {
	ID            string     `yaml:"id"`
	CityID        *int64     `yaml:"city_id"`
	ProvinceCode  *string    `yaml:"province_code"`
	Mode          string     `yaml:"mode"`
	FlatAmount    *string    `yaml:"flat_amount"`
	PerItemAmount *string    `yaml:"per_item_amount"`
	BaseAmount    *string    `yaml:"base_amount"`
	PerKgAmount   *string    `yaml:"per_kg_amount"`
	CouponCode    *string    `yaml:"coupon_code"`
	MinSubtotal   *string    `yaml:"min_subtotal"`
	ActiveFrom    *time.Time `yaml:"active_from"`
	ActiveTo      *time.Time `yaml:"active_to"`
	Priority      int        `yaml:"priority"`
	Enabled       *bool      `yaml:"enabled"` // 省略时视为启用
	EtaDays       *int       `yaml:"eta_days"`
	Condition     *string    `yaml:"condition"`
}

type settingsFile struct {
	FallbackMode          *string `yaml:"fallback_mode"`
	FallbackFlatAmount    *string `yaml:"fallback_flat_amount"`
	FallbackPerItemAmount *string `yaml:"fallback_per_item_amount"`
	FallbackBaseAmount    *string `yaml:"fallback_base_amount"`
	FallbackPerKgAmount   *string `yaml:"fallback_per_kg_amount"`
	FreeOverSubtotal      *string `yaml:"free_over_subtotal"`
	CODFee                *string `yaml:"cod_fee"`
}

type cityFile struct {
	ID           int64  `yaml:"id"`
	Name         string `yaml:"name"`
	ProvinceCode string `yaml:"province_code"`
}

func loadSnapshotFile(path string) (*snapshotFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f snapshotFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	if f.ProductID == "" {
		return nil, fmt.Errorf("snapshot %s: product_id required", path)
	}
	return &f, nil
}

// rows 把文件内容转换为数据库模型，离线报价和导入共用同一套映射。
func (f *snapshotFile) rows() *infrastructure.SnapshotRows {
	rows := &infrastructure.SnapshotRows{ProductID: f.ProductID}
	for _, r := range f.Rules {
		enabled := r.Enabled == nil || *r.Enabled
		rows.Rules = append(rows.Rules, infrastructure.ShippingRuleModel{
			ID:            r.ID,
			ProductID:     f.ProductID,
			CityID:        r.CityID,
			ProvinceCode:  r.ProvinceCode,
			Mode:          r.Mode,
			FlatAmount:    r.FlatAmount,
			PerItemAmount: r.PerItemAmount,
			BaseAmount:    r.BaseAmount,
			PerKgAmount:   r.PerKgAmount,
			CouponCode:    r.CouponCode,
			MinSubtotal:   r.MinSubtotal,
			ActiveFrom:    r.ActiveFrom,
			ActiveTo:      r.ActiveTo,
			Priority:      r.Priority,
			Enabled:       enabled,
			EtaDays:       r.EtaDays,
			Condition:     r.Condition,
		})
	}
	if s := f.Settings; s != nil {
		rows.Settings = &infrastructure.ShippingSettingsModel{
			ProductID:             f.ProductID,
			FallbackMode:          s.FallbackMode,
			FallbackFlatAmount:    s.FallbackFlatAmount,
			FallbackPerItemAmount: s.FallbackPerItemAmount,
			FallbackBaseAmount:    s.FallbackBaseAmount,
			FallbackPerKgAmount:   s.FallbackPerKgAmount,
			FreeOverSubtotal:      s.FreeOverSubtotal,
			CODFee:                s.CODFee,
		}
	}
	return rows
}
