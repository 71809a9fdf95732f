package apiclient

import (
	"context"
	"net/http"

	"github.com/frahmantamala/travel-requests/internal"
)

const (
	RouteLogin     = "login"
	RouteDashboard = "dashboard"

	ReasonExpired = "expired"
)

// SessionAdapter is the slice of the session store the interceptor mutates.
type SessionAdapter interface {
	ClearSession(message string)
	SetRedirectPath(path string)
	SetStatusMessage(message string)
}

type Route struct {
	Name     string
	FullPath string
}

type Location struct {
	Name  string
	Query map[string]string
}

type Navigator interface {
	CurrentRoute() Route
	Push(ctx context.Context, to Location) error
}

// SetupInterceptors installs the session interceptor once per client. It
// reports whether this call performed the installation.
func (c *Client) SetupInterceptors(session SessionAdapter, nav Navigator) bool {
	installed := false
	c.interceptorsOnce.Do(func() {
		c.Use(c.sessionInterceptor(session, nav))
		installed = true
	})
	return installed
}

func (c *Client) sessionInterceptor(session SessionAdapter, nav Navigator) ErrorInterceptor {
	return func(ctx context.Context, apiErr *internal.APIError) *internal.APIError {
		switch apiErr.Status {
		case http.StatusUnauthorized:
			current := nav.CurrentRoute()
			onLogin := current.Name == RouteLogin

			if onLogin {
				session.ClearSession("")
			} else {
				session.ClearSession(internal.MsgSessionExpired)
				session.SetRedirectPath(current.FullPath)
			}

			session.SetStatusMessage(orDefault(apiErr.ServerMessage, internal.MsgSessionExpired))

			if !onLogin {
				to := Location{Name: RouteLogin, Query: map[string]string{"reason": ReasonExpired}}
				if err := nav.Push(ctx, to); err != nil {
					c.logger.Warn("redirect to login failed", "from", current.FullPath, "error", err)
				}
			}

			c.logger.Info("session expired by server", "status", apiErr.Status, "route", current.Name)

		case http.StatusForbidden:
			session.SetStatusMessage(orDefault(apiErr.ServerMessage, internal.MsgForbidden))
			c.logger.Info("request forbidden by server", "status", apiErr.Status)
		}

		return apiErr
	}
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
