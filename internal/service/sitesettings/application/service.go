package application

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"storefront/internal/pkg/logger"
	"storefront/internal/service/sitesettings/domain"
)

var ga4Pattern = regexp.MustCompile(`^G-[A-Z0-9]{4,}$`)

// SettingsDTO 是 GET/PUT /admin/site-settings 的请求与响应体。
type SettingsDTO struct {
	MetaPixelID      string     `json:"meta_pixel_id" validate:"omitempty,number,min=5,max=20"`
	GA4MeasurementID string     `json:"ga4_measurement_id" validate:"omitempty,ga4"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
}

// Service 是站点配置的应用服务
type Service struct {
	repo     domain.Repository
	validate *validator.Validate
	now      func() time.Time
}

func NewService(repo domain.Repository) (*Service, error) {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	})
	err := v.RegisterValidation("ga4", func(fl validator.FieldLevel) bool {
		return ga4Pattern.MatchString(fl.Field().String())
	})
	if err != nil {
		return nil, fmt.Errorf("register ga4 validation: %w", err)
	}
	return &Service{repo: repo, validate: v, now: time.Now}, nil
}

// Get 返回当前配置；从未保存过时返回全部为空的默认值。
func (s *Service) Get(ctx context.Context) (*SettingsDTO, error) {
	settings, err := s.repo.Get(ctx)
	if errors.Is(err, domain.ErrNotConfigured) {
		return &SettingsDTO{}, nil
	}
	if err != nil {
		return nil, err
	}
	return toDTO(settings), nil
}

// Put 校验并整体替换配置。前后空白会被去掉，GA4 ID 统一为大写。
func (s *Service) Put(ctx context.Context, req *SettingsDTO) (*SettingsDTO, error) {
	in := SettingsDTO{
		MetaPixelID:      strings.TrimSpace(req.MetaPixelID),
		GA4MeasurementID: strings.ToUpper(strings.TrimSpace(req.GA4MeasurementID)),
	}
	if err := s.validate.Struct(&in); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return nil, &domain.ValidationError{Field: fieldErrs[0].Field(), Reason: reasonFor(fieldErrs[0].Tag())}
		}
		return nil, err
	}

	settings := &domain.SiteSettings{
		MetaPixelID:      in.MetaPixelID,
		GA4MeasurementID: in.GA4MeasurementID,
		UpdatedAt:        s.now().UTC(),
	}
	if err := s.repo.Put(ctx, settings); err != nil {
		return nil, err
	}
	logger.Ctx(ctx).Info().
		Bool("meta_pixel", settings.MetaPixelID != "").
		Bool("ga4", settings.GA4MeasurementID != "").
		Msg("Site settings updated")
	return toDTO(settings), nil
}

func reasonFor(tag string) string {
	switch tag {
	case "number":
		return "must contain digits only"
	case "min", "max":
		return "must be 5 to 20 digits"
	case "ga4":
		return "must look like G-XXXXXXX"
	default:
		return "is invalid"
	}
}

func toDTO(s *domain.SiteSettings) *SettingsDTO {
	dto := &SettingsDTO{MetaPixelID: s.MetaPixelID, GA4MeasurementID: s.GA4MeasurementID}
	if !s.UpdatedAt.IsZero() {
		t := s.UpdatedAt
		dto.UpdatedAt = &t
	}
	return dto
}
