package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/frahmantamala/travel-requests/internal/storage"
)

const cookieKeyPrefix = "cookie:"

// CookieJar keeps Set-Cookie lines in a storage.Store, the way a browser
// would keep the session cookie between visits.
type CookieJar struct {
	store  storage.Store
	now    func() time.Time
	logger *slog.Logger
}

func NewCookieJar(store storage.Store, logger *slog.Logger) *CookieJar {
	return &CookieJar{store: store, now: time.Now, logger: logger}
}

// WithClock replaces the clock used to stamp Expires.
func (j *CookieJar) WithClock(now func() time.Time) *CookieJar {
	j.now = now
	return j
}

// Set writes name=value with Path=/ and SameSite=Lax. A non-positive maxAge
// deletes the cookie.
func (j *CookieJar) Set(ctx context.Context, name, value string, maxAge time.Duration) error {
	if maxAge <= 0 {
		return j.Remove(ctx, name)
	}

	seconds := int(maxAge / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	cookie := &http.Cookie{
		Name:     name,
		Value:    url.QueryEscape(value),
		Path:     "/",
		MaxAge:   seconds,
		Expires:  j.now().Add(time.Duration(seconds) * time.Second).UTC(),
		SameSite: http.SameSiteLaxMode,
	}

	if err := j.store.Set(ctx, cookieKeyPrefix+name, []byte(cookie.String()), time.Duration(seconds)*time.Second); err != nil {
		return fmt.Errorf("write cookie %s: %w", name, err)
	}
	return nil
}

// Cookie returns the stored cookie, or storage.ErrNotFound when it is absent
// or expired.
func (j *CookieJar) Cookie(ctx context.Context, name string) (*http.Cookie, error) {
	raw, err := j.store.Get(ctx, cookieKeyPrefix+name)
	if err != nil {
		return nil, err
	}

	cookie, err := http.ParseSetCookie(string(raw))
	if err != nil {
		j.logger.Debug("discarding unreadable cookie", "name", name, "error", err)
		return nil, storage.ErrNotFound
	}
	if !cookie.Expires.IsZero() && !j.now().Before(cookie.Expires) {
		return nil, storage.ErrNotFound
	}
	return cookie, nil
}

// Get returns the decoded cookie value, or "" when there is none.
func (j *CookieJar) Get(ctx context.Context, name string) (string, error) {
	cookie, err := j.Cookie(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read cookie %s: %w", name, err)
	}

	value, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return cookie.Value, nil
	}
	return value, nil
}

func (j *CookieJar) Remove(ctx context.Context, name string) error {
	if err := j.store.Delete(ctx, cookieKeyPrefix+name); err != nil {
		return fmt.Errorf("remove cookie %s: %w", name, err)
	}
	return nil
}
