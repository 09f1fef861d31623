package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// SiteSettings 是站点级的单行配置，目前只保存分析像素的 ID。
type SiteSettings struct {
	MetaPixelID      string
	GA4MeasurementID string
	UpdatedAt        time.Time
}

// Repository 定义了站点配置的读写契约。
type Repository interface {
	// Get 返回已保存的配置；从未保存过时返回 ErrNotConfigured。
	Get(ctx context.Context) (*SiteSettings, error)
	// Put 整体替换配置。
	Put(ctx context.Context, settings *SiteSettings) error
}

var ErrNotConfigured = errors.New("site settings not configured")

// ValidationError 表示某个字段格式不合法。
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}
