package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/studex/apiserver/config"
	"github.com/studex/apiserver/internal/services"
	"github.com/studex/apiserver/types"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	defaultTokenTTL   = 24 * time.Hour
	oauthStateCookie  = "studex_oauth_state"
	oauthStateTTL     = 10 * time.Minute
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
)

// Authenticator verifies bearer tokens and loads the calling account.
type Authenticator struct {
	users  *services.UserService
	secret []byte
	Responder
}

func NewAuthenticator(users *services.UserService, jwtSecret string, logger *slog.Logger, production bool) *Authenticator {
	return &Authenticator{
		users:     users,
		secret:    []byte(jwtSecret),
		Responder: Responder{logger: logger, production: production},
	}
}

// RequireAuth rejects requests without a valid token (401) and accounts that
// are blocked or inactive (403).
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := a.authenticate(r)
		if err != nil {
			if services.KindOf(err) == services.KindForbidden {
				writeError(w, http.StatusForbidden, services.MessageOf(err))
				return
			}
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

// OptionalAuth attaches the account when a usable token is present and
// otherwise lets the request through anonymously.
func (a *Authenticator) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, err := a.authenticate(r); err == nil {
			r = r.WithContext(withUser(r.Context(), user))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin must run after RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !user.IsAdmin() {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) authenticate(r *http.Request) (types.User, error) {
	tokenString, err := bearerToken(r)
	if err != nil {
		return types.User{}, err
	}
	subject, err := parseTokenSubject(tokenString, a.secret)
	if err != nil {
		return types.User{}, err
	}
	userID, err := strconv.Atoi(subject)
	if err != nil || userID < 1 {
		return types.User{}, errors.New("invalid subject")
	}
	user, err := a.users.GetByID(r.Context(), userID)
	if err != nil {
		return types.User{}, err
	}
	if !user.CanSignIn() {
		return types.User{}, &services.Error{Kind: services.KindForbidden, Message: "account is blocked or inactive"}
	}
	return user, nil
}

func withUser(ctx context.Context, user types.User) context.Context {
	return context.WithValue(ctx, contextUserKey, user)
}

// AuthHandler provides the identity endpoints.
type AuthHandler struct {
	auth        *Authenticator
	users       *services.UserService
	tokenTTL    time.Duration
	oauth       *oauth2.Config
	frontendURL string
	httpClient  *http.Client
}

// NewAuthHandler constructs an AuthHandler. Google sign-in is disabled when
// no client id is configured.
func NewAuthHandler(auth *Authenticator, users *services.UserService, authCfg config.AuthConfig, googleCfg config.GoogleConfig) *AuthHandler {
	ttl := authCfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	h := &AuthHandler{
		auth:        auth,
		users:       users,
		tokenTTL:    ttl,
		frontendURL: strings.TrimRight(googleCfg.FrontendURL, "/"),
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
	if googleCfg.ClientID != "" {
		h.oauth = &oauth2.Config{
			ClientID:     googleCfg.ClientID,
			ClientSecret: googleCfg.ClientSecret,
			RedirectURL:  googleCfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		}
	}
	return h
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, h *AuthHandler) {
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.With(h.auth.RequireAuth).Get("/verify", h.Verify)
	r.With(h.auth.RequireAuth).Get("/me", h.Me)
	r.Get("/google", h.GoogleLogin)
	r.Get("/google/callback", h.GoogleCallback)
}

// Register creates a new account and returns a JWT.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.users.Register(r.Context(), services.Registration{
		Email:      req.Email,
		Password:   req.Password,
		Name:       req.Name,
		University: req.University,
	})
	if err != nil {
		h.auth.fail(w, r, err)
		return
	}

	token, err := issueToken(user.ID, h.auth.secret, h.tokenTTL)
	if err != nil {
		h.auth.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, AuthResponse{Token: token, User: user})
}

// Login verifies credentials and returns a JWT.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.auth.fail(w, r, err)
		return
	}

	token, err := issueToken(user.ID, h.auth.secret, h.tokenTTL)
	if err != nil {
		h.auth.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, AuthResponse{Token: token, User: user})
}

// Verify confirms the presented token is still usable.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	writeData(w, http.StatusOK, VerifyResponse{Valid: true, User: user})
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeData(w, http.StatusOK, user)
}

// GoogleLogin redirects to the Google consent screen.
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil {
		writeError(w, http.StatusServiceUnavailable, "google sign-in is not configured")
		return
	}
	state, err := randomState()
	if err != nil {
		h.auth.fail(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int(oauthStateTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.auth.production,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.oauth.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// GoogleCallback exchanges the authorization code, finds or creates the
// account and hands a JWT to the frontend.
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil {
		writeError(w, http.StatusServiceUnavailable, "google sign-in is not configured")
		return
	}
	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		writeError(w, http.StatusBadRequest, "invalid oauth state")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Value: "", Path: "/", MaxAge: -1})

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing authorization code")
		return
	}

	ctx := context.WithValue(r.Context(), oauth2.HTTPClient, h.httpClient)
	token, err := h.oauth.Exchange(ctx, code)
	if err != nil {
		h.auth.fail(w, r, &services.Error{Kind: services.KindAuth, Message: "google sign-in failed", Err: err})
		return
	}
	profile, err := h.fetchGoogleProfile(ctx, token)
	if err != nil {
		h.auth.fail(w, r, &services.Error{Kind: services.KindAuth, Message: "google sign-in failed", Err: err})
		return
	}

	user, err := h.users.SignInWithGoogle(r.Context(), profile)
	if err != nil {
		h.auth.fail(w, r, err)
		return
	}
	jwtToken, err := issueToken(user.ID, h.auth.secret, h.tokenTTL)
	if err != nil {
		h.auth.fail(w, r, err)
		return
	}
	target := h.frontendURL + "/auth/callback?token=" + url.QueryEscape(jwtToken)
	http.Redirect(w, r, target, http.StatusFound)
}

type googleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func (h *AuthHandler) fetchGoogleProfile(ctx context.Context, token *oauth2.Token) (services.GoogleProfile, error) {
	client := h.oauth.Client(ctx, token)
	resp, err := client.Get(googleUserInfoURL)
	if err != nil {
		return services.GoogleProfile{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return services.GoogleProfile{}, fmt.Errorf("userinfo returned %s", resp.Status)
	}
	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return services.GoogleProfile{}, err
	}
	return services.GoogleProfile{
		Subject:   info.Sub,
		Email:     info.Email,
		Name:      info.Name,
		AvatarURL: info.Picture,
		Verified:  info.EmailVerified,
	}, nil
}

type RegisterRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Name       string `json:"name"`
	University string `json:"university"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string     `json:"token"`
	User  types.User `json:"user"`
}

type VerifyResponse struct {
	Valid bool       `json:"valid"`
	User  types.User `json:"user"`
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func issueToken(userID int, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.Itoa(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func parseTokenSubject(tokenString string, secret []byte) (string, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errors.New("missing subject")
	}
	return claims.Subject, nil
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
