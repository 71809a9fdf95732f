// Package router resolves named routes and runs the session guard before
// every navigation.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/frahmantamala/travel-requests/internal"
	"github.com/frahmantamala/travel-requests/internal/apiclient"
)

const (
	RouteLogin     = apiclient.RouteLogin
	RouteDashboard = apiclient.RouteDashboard
	RouteCadastrar = "cadastrar"

	maxRedirects = 5
)

var (
	ErrUnknownRoute     = errors.New("unknown route")
	ErrTooManyRedirects = errors.New("too many redirects")
)

// Session is what the guard reads and updates.
type Session interface {
	Hydrated() bool
	Hydrate(ctx context.Context) error
	IsAuthenticated() bool
	StatusMessage() string
	SetStatusMessage(message string)
	SetRedirectPath(path string)
}

type Meta struct {
	RequiresAuth  bool
	RequiresGuest bool
}

type Definition struct {
	Name    string
	Path    string
	Aliases []string
	Meta    Meta
}

func Routes() []Definition {
	return []Definition{
		{Name: RouteLogin, Path: "/login", Aliases: []string{"/"}, Meta: Meta{RequiresGuest: true}},
		{Name: RouteDashboard, Path: "/dashboard", Meta: Meta{RequiresAuth: true}},
		{Name: RouteCadastrar, Path: "/cadastrar", Meta: Meta{RequiresAuth: true}},
	}
}

type Router struct {
	session Session
	logger  *slog.Logger

	byName map[string]Definition
	byPath map[string]string

	mu      sync.Mutex
	current apiclient.Route
}

func New(session Session, logger *slog.Logger) *Router {
	r := &Router{
		session: session,
		logger:  logger,
		byName:  map[string]Definition{},
		byPath:  map[string]string{},
	}
	for _, def := range Routes() {
		r.byName[def.Name] = def
		r.byPath[def.Path] = def.Name
		for _, alias := range def.Aliases {
			r.byPath[alias] = def.Name
		}
	}
	return r
}

func (r *Router) CurrentRoute() apiclient.Route {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Push navigates to a named route, following guard redirects.
func (r *Router) Push(ctx context.Context, to apiclient.Location) error {
	for hop := 0; hop <= maxRedirects; hop++ {
		def, ok := r.byName[to.Name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownRoute, to.Name)
		}
		fullPath := FullPath(def.Path, to.Query)

		redirect := r.guard(ctx, def, fullPath)
		if redirect == nil {
			r.mu.Lock()
			r.current = apiclient.Route{Name: def.Name, FullPath: fullPath}
			r.mu.Unlock()
			r.logger.Debug("navigated", "route", def.Name, "path", fullPath)
			return nil
		}

		r.logger.Debug("navigation redirected", "from", fullPath, "to", redirect.Name)
		to = *redirect
	}
	return ErrTooManyRedirects
}

// PushPath navigates by path. Unknown paths land on "/".
func (r *Router) PushPath(ctx context.Context, path string) error {
	u, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("invalid path %q: %w", path, err)
	}

	name, ok := r.byPath[u.Path]
	if !ok {
		name = r.byPath["/"]
	}

	query := map[string]string{}
	for key, values := range u.Query() {
		if len(values) > 0 {
			query[key] = values[0]
		}
	}
	return r.Push(ctx, apiclient.Location{Name: name, Query: query})
}

// guard returns where to go instead of def, or nil to allow it.
func (r *Router) guard(ctx context.Context, def Definition, fullPath string) *apiclient.Location {
	if !r.session.Hydrated() {
		if err := r.session.Hydrate(ctx); err != nil {
			r.logger.Error("failed to hydrate session", "error", err)
		}
	}

	authenticated := r.session.IsAuthenticated()

	if def.Meta.RequiresAuth && !authenticated {
		r.session.SetRedirectPath(fullPath)
		if r.session.StatusMessage() == "" {
			r.session.SetStatusMessage(internal.MsgSessionExpired)
		}
		return &apiclient.Location{Name: RouteLogin, Query: map[string]string{"reason": apiclient.ReasonExpired}}
	}

	if def.Meta.RequiresGuest && authenticated {
		return &apiclient.Location{Name: RouteDashboard}
	}

	return nil
}

// FullPath renders path with its query in stable key order.
func FullPath(path string, query map[string]string) string {
	if len(query) == 0 {
		return path
	}
	values := url.Values{}
	for key, value := range query {
		values.Set(key, value)
	}
	return path + "?" + values.Encode()
}
