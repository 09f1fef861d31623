package interfaces

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/sitesettings/application"
	"storefront/internal/service/sitesettings/domain"
)

// SettingsService 是处理器依赖的用例。
type SettingsService interface {
	Get(ctx context.Context) (*application.SettingsDTO, error)
	Put(ctx context.Context, req *application.SettingsDTO) (*application.SettingsDTO, error)
}

// SettingsHandler 封装了站点配置的 HTTP 处理器
type SettingsHandler struct {
	service SettingsService
	token   func() string
}

// NewSettingsHandler 创建处理器。token 每次请求时读取，远程配置更新后立即生效。
func NewSettingsHandler(service SettingsService, token func() string) *SettingsHandler {
	return &SettingsHandler{service: service, token: token}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *SettingsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET /admin/site-settings", logger.Middleware(h.requireToken(h.handleGet)))
	mux.Handle("PUT /admin/site-settings", logger.Middleware(h.requireToken(h.handlePut)))
}

// requireToken 校验 Authorization: Bearer <token>。未配置 token 时拒绝所有请求。
func (h *SettingsHandler) requireToken(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		expected := h.token()
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if expected == "" || !ok || subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	})
}

func (h *SettingsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Get(r.Context())
	if err != nil {
		logger.Ctx(r.Context()).Error().Err(err).Msg("Failed to read site settings")
		writeError(w, http.StatusInternalServerError, "site settings lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *SettingsHandler) handlePut(w http.ResponseWriter, r *http.Request) {
	var req application.SettingsDTO
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.service.Put(r.Context(), &req)
	if err != nil {
		var vErr *domain.ValidationError
		if errors.As(err, &vErr) {
			writeError(w, http.StatusBadRequest, vErr.Error())
			return
		}
		logger.Ctx(r.Context()).Error().Err(err).Msg("Failed to save site settings")
		writeError(w, http.StatusInternalServerError, "site settings update failed")
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
