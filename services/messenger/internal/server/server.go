package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"messenger/internal/ratelimit"
	"messenger/internal/util"
	"messenger/pkg/domain"
	"messenger/services/messenger/internal/app"
)

const maxJSONBody = 1 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                      *app.App
	Redis                    *redis.Client
	SignupRateLimitPerMinute int
	LoginRateLimitPerMinute  int
	MaxUploadBytes           int64
	CORSAllowedOrigins       []string
	TrustedProxies           []string
}

// Server exposes HTTP endpoints for the messenger.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	maxUploadBytes int64
	corsOrigins    []string
	trustedProxies *util.TrustedProxies
	signupLimiter  *ratelimit.FixedWindowLimiter
	loginLimiter   *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured. Without a Redis client
// registration and login are not rate limited.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server requires an app")
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("parse trusted proxies: %w", err)
	}
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		maxUploadBytes: normalizeMaxBytes(cfg.MaxUploadBytes),
		corsOrigins:    cfg.CORSAllowedOrigins,
		trustedProxies: trusted,
	}
	if cfg.Redis != nil {
		signupLimit := cfg.SignupRateLimitPerMinute
		if signupLimit <= 0 {
			signupLimit = 5
		}
		loginLimit := cfg.LoginRateLimitPerMinute
		if loginLimit <= 0 {
			loginLimit = 10
		}
		newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
			limiter, err := ratelimit.NewFixedWindowLimiter(cfg.Redis, "messenger:ratelimit:"+name, limit, time.Minute)
			if err != nil {
				return nil, fmt.Errorf("init %s limiter: %w", name, err)
			}
			return limiter, nil
		}
		if s.signupLimiter, err = newLimiter("signup", signupLimit); err != nil {
			return nil, err
		}
		if s.loginLimiter, err = newLimiter("login", loginLimit); err != nil {
			return nil, err
		}
	} else {
		slog.Warn("redis not configured, auth rate limiting disabled")
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(s.trustedProxies, util.WithCORS(s.corsOrigins, util.WithRequestID(util.WithRequestLog("messenger", s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// identity
	s.mux.HandleFunc("/api/register", s.handleRegister)
	s.mux.HandleFunc("/api/login", s.handleLogin)
	s.mux.HandleFunc("/api/logout", s.handleLogout)
	s.mux.Handle("/api/me", s.authenticated(s.handleMe))
	s.mux.Handle("/api/profile", s.authenticated(s.handleProfile))
	s.mux.Handle("/api/users/search", s.authenticated(s.handleSearchUsers))
	s.mux.Handle("/api/settings", s.authenticated(s.handleSettings))

	// chats
	s.mux.Handle("/api/chats", s.authenticated(s.handleChats))
	s.mux.Handle("/api/groups", s.authenticated(s.handleGroups))
	s.mux.Handle("/api/chats/{id}/messages", s.authenticated(s.handleMessages))

	// files
	s.mux.Handle("/api/upload", s.authenticated(s.handleUpload))
	s.mux.HandleFunc("/api/files/{key...}", s.handleFile)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Ready(r.Context()); err != nil {
		util.LoggerFromContext(r.Context()).Error("readiness check failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrapper
type authHandler func(http.ResponseWriter, *http.Request, domain.Identity)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.audit(r, "messenger.authorize", "fail", "reason", "missing_token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		identity, err := s.app.Authenticate(r.Context(), token)
		if err != nil {
			s.audit(r, "messenger.authorize", "fail", "reason", err.Error())
			writeAppError(w, r, err)
			return
		}
		ctx := util.ContextWithLogger(r.Context(), util.LoggerFromContext(r.Context()).With("user_id", identity.ID))
		next(w, r.WithContext(ctx), identity)
	})
}

// identity handlers
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.signupLimiter, "too many signup attempts") {
		s.audit(r, "messenger.register", "rate_limited")
		return
	}
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		s.audit(r, "messenger.register", "fail", "reason", "invalid_request")
		return
	}
	identity, token, err := s.app.Register(r.Context(), req.Name, req.Username, req.Password)
	if err != nil {
		s.audit(r, "messenger.register", "fail", "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "messenger.register", "success", "user_id", identity.ID)
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: identity})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
		s.audit(r, "messenger.login", "rate_limited")
		return
	}
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		s.audit(r, "messenger.login", "fail", "reason", "invalid_request")
		return
	}
	identity, token, err := s.app.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.audit(r, "messenger.login", "fail", "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "messenger.login", "success", "user_id", identity.ID)
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: identity})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		s.audit(r, "messenger.logout", "fail", "reason", "missing_token")
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := s.app.Logout(r.Context(), token); err != nil {
		s.audit(r, "messenger.logout", "fail", "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "messenger.logout", "success")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user domain.Identity) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, user domain.Identity) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	updated, token, err := s.app.UpdateProfile(r.Context(), user.ID, app.ProfileUpdate{
		DisplayName:       req.Name,
		StatusText:        req.Status,
		AvatarRef:         req.Avatar,
		Handle:            req.Username,
		AllowGroupInvites: req.AllowGroupInvites,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if token != "" {
		s.audit(r, "messenger.handle.change", "success", "user_id", user.ID)
	}
	writeJSON(w, http.StatusOK, profileResponse{User: updated, Token: token})
}

func (s *Server) handleSearchUsers(w http.ResponseWriter, r *http.Request, user domain.Identity) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	users, err := s.app.SearchUsers(r.Context(), user.ID, r.URL.Query().Get("query"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(users))
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request, user domain.Identity) {
	switch r.Method {
	case http.MethodGet:
		blob, err := s.app.GetPreferences(r.Context(), user.ID)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, blob)
	case http.MethodPost:
		body, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
		if err := s.app.PutPreferences(r.Context(), user.ID, json.RawMessage(body)); err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, json.RawMessage(body))
	default:
		methodNotAllowed(w)
	}
}

// chat handlers
func (s *Server) handleChats(w http.ResponseWriter, r *http.Request, user domain.Identity) {
	switch r.Method {
	case http.MethodGet:
		summaries, err := s.app.ListChatsFor(r.Context(), user.ID)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, orEmpty(summaries))
	case http.MethodPost:
		var req directChatRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		chat, created, err := s.app.FindOrCreateDirect(r.Context(), user.ID, req.UserID)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, chat)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request, user domain.Identity) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req groupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	chat, err := s.app.CreateGroup(r.Context(), user.ID, req.Name, req.MemberIDs, req.Avatar)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, chat)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request, user domain.Identity) {
	chatID := strings.TrimSpace(r.PathValue("id"))
	switch r.Method {
	case http.MethodGet:
		messages, err := s.app.ListMessages(r.Context(), chatID, user.ID)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, orEmpty(messages))
	case http.MethodPost:
		var req messageRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		msg, err := s.app.SendMessage(r.Context(), chatID, user.ID, req.Text, req.Attachment)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	default:
		methodNotAllowed(w)
	}
}

// file handlers
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, user domain.Identity) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	// multipart framing needs some room beyond the file itself
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, "file is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	defer r.MultipartForm.RemoveAll()
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: file)")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, s.maxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	info, err := s.app.Upload(r.Context(), user.ID, data)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, uploadResponse{
		FileURL:     info.URL,
		Key:         info.Key,
		Size:        info.Size,
		ContentType: info.ContentType,
	})
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	file, err := s.app.OpenFile(r.Context(), r.PathValue("key"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if file.URL != "" {
		http.Redirect(w, r, file.URL, http.StatusFound)
		return
	}
	defer file.Body.Close()
	if file.Info.ContentType != "" {
		w.Header().Set("Content-Type", file.Info.ContentType)
	}
	if file.Info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(file.Info.Size, 10))
	}
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, file.Body); err != nil {
		util.LoggerFromContext(r.Context()).Warn("stream file failed", "key", file.Info.Key, "err", err)
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// orEmpty keeps list responses as JSON arrays when there is nothing to list.
func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeAppError maps an app error kind to its HTTP status. Storage and
// unclassified failures are logged and hidden behind a generic message.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var denied *app.InviteDeniedError
	switch {
	case errors.As(err, &denied):
		writeError(w, http.StatusForbidden, denied.Error())
	case errors.Is(err, app.ErrStorage):
		util.LoggerFromContext(r.Context()).Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	case errors.Is(err, app.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func normalizeMaxBytes(value int64) int64 {
	if value <= 0 {
		return 10 << 20
	}
	return value
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trustedProxies),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	if limiter == nil {
		return true
	}
	decision := limiter.Allow(r.Context(), util.ClientIP(r, s.trustedProxies))
	if decision.Allowed {
		return true
	}
	retryAfter := int(decision.RetryAfter.Round(time.Second) / time.Second)
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}
