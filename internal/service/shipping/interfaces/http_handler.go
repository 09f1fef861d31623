package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"storefront/internal/pkg/logger"
	"storefront/internal/service/shipping/application"
	"storefront/internal/service/shipping/domain"
)

const maxBodyBytes = 1 << 20

var tracer = otel.Tracer("shipping-interfaces")

// QuoteService 是处理器依赖的应用服务用例。
type QuoteService interface {
	GetQuote(ctx context.Context, req *application.QuoteRequest) (*application.QuoteResponse, error)
}

// ShippingHandler 封装了 shipping 服务的 HTTP 处理器
type ShippingHandler struct {
	service QuoteService
}

// NewShippingHandler 创建一个新的 HTTP 处理器实例
func NewShippingHandler(service QuoteService) *ShippingHandler {
	return &ShippingHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *ShippingHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("POST /shipping/quote", logger.Middleware(http.HandlerFunc(h.handleQuote)))
}

func (h *ShippingHandler) handleQuote(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "http.ShippingQuote")
	defer span.End()

	var req application.QuoteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request body")
		logger.Ctx(ctx).Warn().Err(err).Msg("Invalid quote request body")
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.service.GetQuote(ctx, &req)
	if err != nil {
		// 根据错误类型返回不同的 HTTP 状态码
		var (
			vErr *domain.ValidationError
			uErr *domain.UpstreamError
		)
		switch {
		case errors.As(err, &vErr):
			writeError(w, http.StatusBadRequest, vErr.Error())
		case errors.As(err, &uErr):
			writeError(w, http.StatusInternalServerError, uErr.Message())
		default:
			logger.Ctx(ctx).Error().Err(err).Msg("Unexpected quote error")
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
