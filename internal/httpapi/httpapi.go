package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"vetpos/backend/internal/assistant"
	"vetpos/backend/internal/domain"
	"vetpos/backend/internal/service"
	"vetpos/backend/internal/store"
)

const maxJSONBody = 1 << 20

type Options struct {
	AllowedOrigin string
	Logger        *zap.Logger
}

type API struct {
	service          *service.Service
	auth             *AuthManager
	logger           *zap.Logger
	allowedOrigin    string
	loginLimiter     *attemptLimiter
	assistantLimiter *attemptLimiter
	csrfSecret       []byte
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.AllowedOrigin == "" {
		opts.AllowedOrigin = "*"
	}
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		opts.Logger.Warn("csrf secret fell back to a static value", zap.Error(err))
		csrfSecret = []byte("vetpos-csrf-fallback-secret-32b!")
	}
	return &API{
		service:          svc,
		auth:             auth,
		logger:           opts.Logger,
		allowedOrigin:    opts.AllowedOrigin,
		loginLimiter:     newAttemptLimiter(5, time.Minute),
		assistantLimiter: newAttemptLimiter(20, time.Minute),
		csrfSecret:       csrfSecret,
	}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{a.allowedOrigin},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-CSRF-Token"},
		ExposedHeaders: []string{"Content-Disposition", "X-Request-Id"},
		MaxAge:         300,
	}))
	r.Use(securityHeaders)
	r.Use(limitJSONBody)
	r.Use(a.checkCSRF)

	r.Get("/healthz", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)
		r.Get("/auth/csrf-token", a.handleCSRFToken)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth())

			r.Get("/auth/me", a.handleMe)

			r.Route("/products", a.productRoutes)
			r.Route("/categories", a.categoryRoutes)
			r.Route("/suppliers", a.supplierRoutes)
			r.Route("/sales", a.saleRoutes)
			r.Route("/purchases", a.purchaseRoutes)
			r.Route("/animals", a.animalRoutes)
			r.Route("/consultations", a.consultationRoutes)
			r.Route("/assistant", a.assistantRoutes)

			r.Get("/settings", a.handleGetSettings)
			r.Post("/hardware/cash-drawer/open", a.handleCashDrawerOpen)

			r.Group(func(r chi.Router) {
				r.Use(a.requireAuth(domain.RoleAdmin))
				r.Post("/returns", a.handleCreateReturn)
				r.Get("/reports/statistics", a.handleStatistics)
				r.Route("/users", a.userRoutes)
				r.Put("/settings", a.handleUpdateSettings)
				r.Get("/audit-logs", a.handleAuditLogs)
			})
		})
	})

	return r
}

// requireAuth resolves the bearer token to an active user. The stored user
// is reloaded on every request so deactivation and role changes apply at once.
func (a *API) requireAuth(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if actor, ok := service.ActorFromContext(r.Context()); ok {
				if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
					writeError(w, http.StatusForbidden, service.ErrForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			authorization := strings.TrimSpace(r.Header.Get("Authorization"))
			if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
				writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
				return
			}
			claimed, err := a.auth.ParseToken(strings.TrimSpace(authorization[len("Bearer "):]))
			if err != nil {
				writeError(w, http.StatusUnauthorized, err)
				return
			}

			ctx := service.WithActor(r.Context(), claimed)
			user, err := a.service.CurrentUser(ctx)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					writeError(w, http.StatusUnauthorized, errInvalidToken)
					return
				}
				a.fail(w, err)
				return
			}
			if !user.Active {
				writeError(w, http.StatusUnauthorized, service.ErrInactiveAccount)
				return
			}
			actor := domain.Actor{UserID: user.ID, Username: user.Username, Role: user.Role}
			if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
				writeError(w, http.StatusForbidden, service.ErrForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
		})
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.logger.Info("login", zap.String("username", resp.User.Username), zap.String("role", resp.User.Role))
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := a.service.CurrentUser(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrInvalidTransaction):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, store.ErrOverReturn),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrDuplicateNumber):
		return http.StatusConflict
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrUnauthenticated),
		errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInactiveAccount):
		return http.StatusUnauthorized
	case errors.Is(err, assistant.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, assistant.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed", zap.Error(err))
	}
	writeError(w, status, err)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func queryBool(r *http.Request, key string) bool {
	value, err := strconv.ParseBool(strings.TrimSpace(r.URL.Query().Get(key)))
	return err == nil && value
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies never carry internal details.
	msg := err.Error()
	switch {
	case status == http.StatusServiceUnavailable:
		msg = assistant.ErrUnavailable.Error()
	case status == http.StatusBadGateway:
		msg = assistant.ErrUpstream.Error()
	case status >= 500:
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
