package httpserver

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/phenrril/kitehouse/internal/auth"
	"github.com/phenrril/kitehouse/internal/domain"
)

const oauthStateCookie = "oauth_state"

func shopperPrincipal(u *domain.User) auth.Principal {
	return auth.Principal{Role: auth.RoleShopper, UserID: u.ID, Email: u.Email, Name: u.Name}
}

// --- Admin ---

func (s *Server) adminLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if err := s.auth.AdminLogin(req.Username, req.Password); err != nil {
		zerolog.Ctx(r.Context()).Warn().Str("username", req.Username).Msg("admin login rejected")
		fail(w, r, err)
		return
	}
	if err := s.sessions.Login(w, auth.Principal{Role: auth.RoleAdmin, Name: req.Username}); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) adminLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Logout(w, auth.RoleAdmin)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) adminSession(w http.ResponseWriter, r *http.Request) {
	if p, ok := auth.FromContext(r.Context()); ok && p.Role == auth.RoleAdmin {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": true})
		return
	}
	writeJSON(w, http.StatusUnauthorized, map[string]any{"authenticated": false})
}

// --- Shopper ---

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Phone    string `json:"phone"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	u, err := s.auth.Register(r.Context(), req.Name, req.Email, req.Phone, req.Password)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := s.sessions.Login(w, shopperPrincipal(u)); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": u})
}

func (s *Server) userLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	u, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := s.sessions.Login(w, shopperPrincipal(u)); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": u})
}

func (s *Server) userLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Logout(w, auth.RoleShopper)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) userSession(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.FromContext(r.Context())
	if !ok || p.Role != auth.RoleShopper {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"user": nil})
		return
	}
	u, err := s.auth.User(r.Context(), p.UserID)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"user": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": u})
}

// --- Google ---

func (s *Server) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if s.oauthCfg == nil {
		writeError(w, http.StatusServiceUnavailable, "oauth_disabled", "google login is not configured")
		return
	}
	state := uuid.New().String()
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Value: state, Path: "/", MaxAge: 300, HttpOnly: true, Secure: s.secure, SameSite: http.SameSiteLaxMode})
	http.Redirect(w, r, s.oauthCfg.AuthCodeURL(state, oauth2.AccessTypeOnline), http.StatusFound)
}

func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if s.oauthCfg == nil {
		writeError(w, http.StatusServiceUnavailable, "oauth_disabled", "google login is not configured")
		return
	}
	logger := zerolog.Ctx(r.Context())
	q := r.URL.Query()
	c, _ := r.Cookie(oauthStateCookie)
	if c == nil || c.Value == "" || c.Value != q.Get("state") {
		writeError(w, http.StatusBadRequest, "oauth_state", "invalid oauth state")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true, Secure: s.secure})

	tok, err := s.oauthCfg.Exchange(r.Context(), q.Get("code"))
	if err != nil {
		logger.Error().Err(err).Msg("oauth exchange")
		writeError(w, http.StatusBadRequest, "oauth_exchange", "google login failed")
		return
	}
	resp, err := s.oauthCfg.Client(r.Context(), tok).Get(s.userInfoURL)
	if err != nil {
		logger.Error().Err(err).Msg("oauth userinfo")
		writeError(w, http.StatusBadGateway, "oauth_userinfo", "google login failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		logger.Error().Int("status", resp.StatusCode).Msg("oauth userinfo")
		writeError(w, http.StatusBadGateway, "oauth_userinfo", "google login failed")
		return
	}
	var info struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&info); err != nil {
		writeError(w, http.StatusBadGateway, "oauth_userinfo", "google login failed")
		return
	}
	// accounts are matched by email, so an unverified address could take over someone else's
	if !info.EmailVerified {
		logger.Warn().Str("email", info.Email).Msg("oauth email not verified")
		writeError(w, http.StatusForbidden, "oauth_unverified", "google account email is not verified")
		return
	}
	u, err := s.auth.OAuthUser(r.Context(), info.Email, info.Name)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := s.sessions.Login(w, shopperPrincipal(u)); err != nil {
		fail(w, r, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}
