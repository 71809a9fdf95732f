package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/travel-requests/internal"
	"github.com/frahmantamala/travel-requests/internal/apiclient"
	"github.com/frahmantamala/travel-requests/internal/router"
)

var (
	loginEmail    string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and keep the session cookie",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDependencies(cmd.Context(), func(ctx context.Context, deps *Dependencies) error {
			if err := deps.Router.Push(ctx, apiclient.Location{Name: router.RouteLogin}); err != nil {
				return err
			}
			if deps.Router.CurrentRoute().Name != router.RouteLogin {
				user := deps.Session.State().User
				fmt.Fprintf(cmd.OutOrStdout(), "Sessão ativa como %s <%s>.\n", user.Name, user.Email)
				return nil
			}

			password := loginPassword
			if password == "" {
				read, err := readPassword(cmd.InOrStdin())
				if err != nil {
					return err
				}
				password = read
			}

			if _, err := deps.Session.Login(ctx, loginEmail, password); err != nil {
				return sessionError(deps, err)
			}

			target := deps.Session.TakeRedirectPath()
			if target == "" {
				target = "/dashboard"
			}
			if err := deps.Router.PushPath(ctx, target); err != nil {
				return err
			}

			user := deps.Session.State().User
			fmt.Fprintf(cmd.OutOrStdout(), "Bem-vindo, %s.\n", user.Name)
			fmt.Fprintf(cmd.OutOrStdout(), "Próxima página: %s\n", deps.Router.CurrentRoute().FullPath)
			return nil
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Drop the session and its cookie",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDependencies(cmd.Context(), func(ctx context.Context, deps *Dependencies) error {
			deps.Session.Logout("")
			fmt.Fprintln(cmd.OutOrStdout(), "Sessão encerrada.")
			return nil
		})
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed in user",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDependencies(cmd.Context(), func(ctx context.Context, deps *Dependencies) error {
			if err := requireRoute(ctx, deps, router.RouteDashboard); err != nil {
				return err
			}

			state := deps.Session.State()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s <%s>\n", state.User.Name, state.User.Email)
			if state.User.Role != nil {
				fmt.Fprintf(out, "Perfil: %s\n", *state.User.Role)
			}
			if expiry, ok := deps.Session.TokenExpiry(); ok {
				fmt.Fprintf(out, "Token expira em: %s\n", expiry.Local().Format(time.DateTime))
			}
			return nil
		})
	},
}

// requireRoute navigates to name and fails when the guard sent us elsewhere.
func requireRoute(ctx context.Context, deps *Dependencies, name string) error {
	if err := deps.Router.Push(ctx, apiclient.Location{Name: name}); err != nil {
		return err
	}
	if deps.Router.CurrentRoute().Name == name {
		return nil
	}

	message := deps.Session.StatusMessage()
	if message == "" {
		message = internal.MsgSessionExpired
	}
	return errors.New(message + " (travel login)")
}

// sessionError prefers the status message the session store surfaced.
func sessionError(deps *Dependencies, err error) error {
	if message := deps.Session.StatusMessage(); message != "" {
		return errors.New(message)
	}
	if apiErr, ok := internal.AsAPIError(err); ok {
		return errors.New(apiErr.Message)
	}
	return err
}

func readPassword(in io.Reader) (string, error) {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("password is required (--password or stdin)")
	}
	return password, nil
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account e-mail")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "account password, read from stdin when empty")
	_ = loginCmd.MarkFlagRequired("email")
}
