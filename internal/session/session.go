// Package session owns the authenticated user and bearer token, mirrors the
// token into the jwt cookie and restores it on hydration.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/frahmantamala/travel-requests/internal"
	"github.com/frahmantamala/travel-requests/internal/core/events"
)

const (
	DefaultCookieName = "jwt"
	DefaultTokenTTL   = 900 * time.Second
	DefaultCookieTTL  = 6 * time.Hour

	cookieWriteTimeout = 5 * time.Second
)

var (
	ErrMissingToken = errors.New("Token ausente")
	// ErrStaleSession is returned when the session was cleared while a user
	// fetch was in flight; the late result is dropped.
	ErrStaleSession = errors.New("session changed while the request was in flight")
	ErrEmptyToken   = errors.New("login response did not include a token")
	ErrMissingUser  = errors.New("user response did not include a user")
)

// API is the part of the HTTP client the session store talks to.
type API interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
	Post(ctx context.Context, path string, body, out any) error
	SetAuthToken(token string)
}

type User struct {
	ID    int64          `json:"id"`
	Name  string         `json:"name"`
	Email string         `json:"email"`
	Role  *string        `json:"role,omitempty"`
	Roles []string       `json:"roles,omitempty"`
	Extra map[string]any `json:"-"`
}

func (u *User) UnmarshalJSON(data []byte) error {
	type plain User
	var known plain
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, key := range []string{"id", "name", "email", "role", "roles"} {
		delete(all, key)
	}
	if len(all) > 0 {
		known.Extra = all
	}

	*u = User(known)
	return nil
}

// State is a snapshot of the session.
type State struct {
	User          *User
	Token         string
	Hydrated      bool
	Loading       bool
	StatusMessage string
	RedirectPath  string
}

func (s State) IsAuthenticated() bool {
	return s.User != nil && s.Token != ""
}

type Options struct {
	CookieName string
	// TokenTTL is the cookie max-age used when login does not return expires_in.
	TokenTTL time.Duration
	// CookieTTL is the max-age for a token restored from the cookie.
	CookieTTL time.Duration
}

type FetchOptions struct {
	Silent bool
}

type Store struct {
	api     API
	cookies *CookieJar
	bus     events.Publisher
	logger  *slog.Logger
	opts    Options

	mu            sync.Mutex
	user          *User
	token         string
	hydrated      bool
	loading       bool
	statusMessage string
	redirectPath  string
	cookieMaxAge  time.Duration
	epoch         uint64

	hydrateMu sync.Mutex
}

func NewStore(api API, cookies *CookieJar, bus events.Publisher, logger *slog.Logger, opts Options) *Store {
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = DefaultTokenTTL
	}
	if opts.CookieTTL <= 0 {
		opts.CookieTTL = DefaultCookieTTL
	}
	return &Store{
		api:     api,
		cookies: cookies,
		bus:     bus,
		logger:  logger,
		opts:    opts,
	}
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	var user *User
	if s.user != nil {
		copied := *s.user
		user = &copied
	}
	return State{
		User:          user,
		Token:         s.token,
		Hydrated:      s.hydrated,
		Loading:       s.loading,
		StatusMessage: s.statusMessage,
		RedirectPath:  s.redirectPath,
	}
}

func (s *Store) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user != nil && s.token != ""
}

func (s *Store) Hydrated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hydrated
}

func (s *Store) Login(ctx context.Context, email, password string) (string, error) {
	s.ClearSession("")
	s.setLoading(true)
	defer s.setLoading(false)

	var resp struct {
		Token     string `json:"token"`
		ExpiresIn any    `json:"expires_in"`
	}
	credentials := map[string]string{"email": email, "password": password}
	if err := s.api.Post(ctx, "/login", credentials, &resp); err != nil {
		s.logger.Info("login failed", "email", email, "status", internal.StatusOf(err))
		return "", err
	}
	if resp.Token == "" {
		return "", ErrEmptyToken
	}

	maxAge := s.expiresIn(resp.ExpiresIn)

	s.mu.Lock()
	s.token = resp.Token
	s.cookieMaxAge = maxAge
	s.mu.Unlock()

	s.persistCookie(ctx, resp.Token, maxAge)
	s.api.SetAuthToken(resp.Token)

	if _, err := s.FetchUser(ctx, resp.Token, FetchOptions{Silent: true}); err != nil {
		return "", err
	}

	s.SetStatusMessage("")
	s.logger.Info("logged in", "email", email, "cookie_max_age", maxAge)
	return resp.Token, nil
}

func (s *Store) expiresIn(raw any) time.Duration {
	seconds, ok := raw.(float64)
	if !ok || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return s.opts.TokenTTL
	}
	if seconds < 0 {
		seconds = 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// FetchUser loads the current user with token, or with the active token when
// token is empty.
func (s *Store) FetchUser(ctx context.Context, token string, opts FetchOptions) (*User, error) {
	s.mu.Lock()
	active := token
	if active == "" {
		active = s.token
	}
	epoch := s.epoch
	s.mu.Unlock()

	if active == "" {
		return nil, ErrMissingToken
	}

	if token != "" {
		s.api.SetAuthToken(token)
		s.persistCookie(ctx, token, s.currentCookieMaxAge())
	}

	var resp struct {
		User *User `json:"user"`
	}
	if err := s.api.Get(ctx, "/user", nil, &resp); err != nil {
		switch internal.StatusOf(err) {
		case http.StatusUnauthorized, http.StatusForbidden:
			s.ClearSession(internal.MsgSessionExpired)
		default:
			if !opts.Silent {
				s.SetStatusMessage(internal.MessagesFrom(err, internal.MsgUserValidation)[0])
			}
		}
		return nil, err
	}
	if resp.User == nil {
		if !opts.Silent {
			s.SetStatusMessage(internal.MsgUserValidation)
		}
		return nil, ErrMissingUser
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		s.logger.Debug("dropping user fetched for a cleared session", "user_id", resp.User.ID)
		return nil, ErrStaleSession
	}
	s.user = resp.User
	s.token = active
	if !opts.Silent {
		s.statusMessage = ""
	}
	maxAge := s.cookieMaxAgeLocked()
	s.mu.Unlock()

	s.api.SetAuthToken(active)
	s.persistCookie(ctx, active, maxAge)
	s.notify(ctx, "user_loaded")

	copied := *resp.User
	return &copied, nil
}

type hydratingKey struct{}

// Hydrate restores the session from the cookie once. Calls made while a
// hydration is already running on the same call chain return immediately.
func (s *Store) Hydrate(ctx context.Context) error {
	if ctx.Value(hydratingKey{}) != nil {
		return nil
	}

	s.hydrateMu.Lock()
	defer s.hydrateMu.Unlock()

	if s.Hydrated() {
		return nil
	}

	ctx = context.WithValue(ctx, hydratingKey{}, true)
	defer s.markHydrated(ctx)

	saved, err := s.cookies.Get(ctx, s.opts.CookieName)
	if err != nil {
		s.ClearSession("")
		return err
	}
	if saved == "" {
		s.ClearSession("")
		return nil
	}

	if _, err := s.FetchUser(ctx, saved, FetchOptions{Silent: true}); err != nil {
		switch internal.StatusOf(err) {
		case http.StatusUnauthorized, http.StatusForbidden:
			s.ClearSession(internal.MsgSessionExpired)
		default:
			s.SetStatusMessage(internal.MsgSessionValidation)
		}
		s.logger.Warn("could not restore session", "error", err)
	}
	return nil
}

func (s *Store) markHydrated(ctx context.Context) {
	s.mu.Lock()
	s.hydrated = true
	s.mu.Unlock()
	s.notify(ctx, "hydrated")
}

func (s *Store) Logout(message string) {
	s.ClearSession(message)
	s.SetRedirectPath("")
}

// ClearSession drops the user and token, removes the auth header and the
// cookie, and starts a new session epoch.
func (s *Store) ClearSession(message string) {
	s.mu.Lock()
	s.user = nil
	s.token = ""
	s.cookieMaxAge = 0
	s.statusMessage = message
	s.epoch++
	s.mu.Unlock()

	s.api.SetAuthToken("")

	ctx, cancel := internal.WithTimeout(context.Background(), cookieWriteTimeout)
	defer cancel()
	if err := s.cookies.Remove(ctx, s.opts.CookieName); err != nil {
		s.logger.Warn("failed to remove session cookie", "error", err)
	}
	s.notify(ctx, "cleared")
}

func (s *Store) SetStatusMessage(message string) {
	s.mu.Lock()
	changed := s.statusMessage != message
	s.statusMessage = message
	s.mu.Unlock()

	if changed {
		s.notify(context.Background(), "status_message")
	}
}

func (s *Store) StatusMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusMessage
}

func (s *Store) SetRedirectPath(path string) {
	s.mu.Lock()
	s.redirectPath = path
	s.mu.Unlock()
}

// TakeRedirectPath returns the stored redirect target and forgets it.
func (s *Store) TakeRedirectPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.redirectPath
	s.redirectPath = ""
	return path
}

// TokenExpiry reads the exp claim of the current token without verifying it.
func (s *Store) TokenExpiry() (time.Time, bool) {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()
	if token == "" {
		return time.Time{}, false
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

func (s *Store) setLoading(loading bool) {
	s.mu.Lock()
	s.loading = loading
	s.mu.Unlock()
}

func (s *Store) currentCookieMaxAge() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cookieMaxAgeLocked()
}

func (s *Store) cookieMaxAgeLocked() time.Duration {
	if s.cookieMaxAge > 0 {
		return s.cookieMaxAge
	}
	return s.opts.CookieTTL
}

func (s *Store) persistCookie(ctx context.Context, token string, maxAge time.Duration) {
	if err := s.cookies.Set(ctx, s.opts.CookieName, token, maxAge); err != nil {
		s.logger.Warn("failed to persist session cookie", "error", err)
	}
}

func (s *Store) notify(ctx context.Context, change string) {
	events.Notify(ctx, s.bus, s.logger, events.SessionChanged, map[string]interface{}{"change": change})
}
