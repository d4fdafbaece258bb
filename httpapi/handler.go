package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	tokenAuth "github.com/MrEthical07/tokenAuth"
	"github.com/MrEthical07/tokenAuth/middleware"
)

// RefreshCookie is the name of the cookie carrying the refresh token.
const RefreshCookie = "refresh_token"

// Engine is the part of *tokenAuth.Engine the handlers need.
type Engine interface {
	middleware.Authenticator
	Login(ctx context.Context, creds tokenAuth.Credentials) (tokenAuth.Pair, error)
	Refresh(ctx context.Context, refreshToken string, now time.Time) (tokenAuth.Pair, error)
	Revoke(ctx context.Context, refreshToken string) error
	ExpiresAt(tokenStr string) (time.Time, error)
	Now() time.Time
}

// Options tune cookie attributes and logging.
type Options struct {
	Logger *zap.Logger
	// SecureCookie forces the Secure attribute; otherwise it follows r.TLS.
	SecureCookie bool
	// CookieMaxAge bounds the refresh cookie lifetime. Zero leaves it a
	// session cookie.
	CookieMaxAge time.Duration
}

// Handler serves the token endpoints.
type Handler struct {
	engine Engine
	opts   Options
	logger *zap.Logger
}

// New returns a Handler over engine.
func New(engine Engine, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{engine: engine, opts: opts, logger: logger.Named("httpapi")}
}

// TokenResponse is the body of a successful login or refresh.
type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// ExpiryResponse is the body of the expiry-time endpoint.
type ExpiryResponse struct {
	AccessToken  *time.Time `json:"accessToken,omitempty"`
	RefreshToken time.Time  `json:"refreshToken"`
}

// Routes registers every endpoint on a new mux.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /api/hello", middleware.Guard(h.engine)(http.HandlerFunc(h.hello)))
	mux.HandleFunc("POST /api/authenticate", h.authenticate)
	mux.HandleFunc("GET /api/token/refresh", h.refresh)
	mux.HandleFunc("POST /api/token/refresh", h.refresh)
	mux.HandleFunc("GET /api/token/expiry-time", h.expiryTime)
	mux.HandleFunc("POST /api/logout", h.logout)
	return mux
}

func (h *Handler) hello(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Hello"))
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.BearerToken(r); ok {
		http.Error(w, "already logged in", http.StatusBadRequest)
		return
	}

	var creds tokenAuth.Credentials
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	pair, err := h.engine.Login(requestContext(r), creds)
	switch {
	case err == nil:
	case errors.Is(err, tokenAuth.ErrInvalidCredentials):
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	case errors.Is(err, tokenAuth.ErrLoginRateLimited):
		http.Error(w, "too many login attempts", http.StatusTooManyRequests)
		return
	default:
		h.logger.Error("login failed", zap.Error(err))
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	h.writePair(w, r, pair)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(RefreshCookie)
	if err != nil || cookie.Value == "" {
		http.Error(w, "refresh token not found", http.StatusNotFound)
		return
	}

	pair, err := h.engine.Refresh(requestContext(r), cookie.Value, h.engine.Now())
	switch {
	case err == nil:
	case errors.Is(err, tokenAuth.ErrRefreshExpired):
		http.Error(w, "refresh token expired", http.StatusUnauthorized)
		return
	case errors.Is(err, tokenAuth.ErrRefreshReplayed):
		h.clearRefreshCookie(w, r)
		http.Error(w, "refresh token replayed", http.StatusUnauthorized)
		return
	case errors.Is(err, tokenAuth.ErrRefreshInvalid):
		http.Error(w, "refresh token invalid", http.StatusUnauthorized)
		return
	default:
		h.logger.Error("refresh failed", zap.Error(err))
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	h.writePair(w, r, pair)
}

func (h *Handler) expiryTime(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(RefreshCookie)
	if err != nil || cookie.Value == "" {
		http.Error(w, "refresh token not found", http.StatusNotFound)
		return
	}

	var out ExpiryResponse
	if out.RefreshToken, err = h.engine.ExpiresAt(cookie.Value); err != nil {
		http.Error(w, "refresh token invalid", http.StatusUnauthorized)
		return
	}
	out.RefreshToken = out.RefreshToken.UTC()

	if access, ok := middleware.BearerToken(r); ok {
		exp, err := h.engine.ExpiresAt(access)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		exp = exp.UTC()
		out.AccessToken = &exp
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(RefreshCookie)
	if err == nil && cookie.Value != "" {
		err := h.engine.Revoke(requestContext(r), cookie.Value)
		switch {
		case err == nil, errors.Is(err, tokenAuth.ErrRefreshInvalid):
		case errors.Is(err, tokenAuth.ErrLedgerRequired):
			h.logger.Debug("logout without refresh ledger, clearing cookie only")
		default:
			h.logger.Error("logout revoke failed", zap.Error(err))
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}
	}

	h.clearRefreshCookie(w, r)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writePair(w http.ResponseWriter, r *http.Request, pair tokenAuth.Pair) {
	h.setRefreshCookie(w, r, pair.RefreshToken)
	w.Header().Set("Authorization", "Bearer "+pair.AccessToken)
	writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// ---------------------------------------------------------------------------
// Cookie helpers
// ---------------------------------------------------------------------------

func (h *Handler) setRefreshCookie(w http.ResponseWriter, r *http.Request, token string) {
	c := &http.Cookie{
		Name:     RefreshCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.opts.SecureCookie || r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	}
	if h.opts.CookieMaxAge > 0 {
		c.MaxAge = int(h.opts.CookieMaxAge.Seconds())
	}
	http.SetCookie(w, c)
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.opts.SecureCookie || r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func requestContext(r *http.Request) context.Context {
	return tokenAuth.WithClientIP(r.Context(), middleware.ClientIP(r))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
