package router_test

import (
	"context"
	"errors"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/travel-requests/internal"
	"github.com/frahmantamala/travel-requests/internal/apiclient"
	"github.com/frahmantamala/travel-requests/internal/apitest"
	"github.com/frahmantamala/travel-requests/internal/router"
	"github.com/frahmantamala/travel-requests/internal/session"
	"github.com/frahmantamala/travel-requests/internal/storage/memory"
	"github.com/frahmantamala/travel-requests/pkg/logger"
)

type fakeSession struct {
	hydrated      bool
	hydrateCalls  int
	hydrateErr    error
	authenticated bool
	statusMessage string
	redirectPath  string
}

func (f *fakeSession) Hydrated() bool { return f.hydrated }

func (f *fakeSession) Hydrate(context.Context) error {
	f.hydrateCalls++
	f.hydrated = true
	return f.hydrateErr
}

func (f *fakeSession) IsAuthenticated() bool { return f.authenticated }

func (f *fakeSession) StatusMessage() string { return f.statusMessage }

func (f *fakeSession) SetStatusMessage(message string) { f.statusMessage = message }

func (f *fakeSession) SetRedirectPath(path string) { f.redirectPath = path }

var _ = Describe("Router", func() {
	var (
		sess *fakeSession
		r    *router.Router
		ctx  context.Context
	)

	BeforeEach(func() {
		sess = &fakeSession{}
		r = router.New(sess, logger.Discard())
		ctx = context.Background()
	})

	It("hydrates once before the first navigation", func() {
		Expect(r.Push(ctx, apiclient.Location{Name: router.RouteLogin})).To(Succeed())
		Expect(r.Push(ctx, apiclient.Location{Name: router.RouteLogin})).To(Succeed())
		Expect(sess.hydrateCalls).To(Equal(1))
	})

	It("does not fail navigation when hydration fails", func() {
		sess.hydrateErr = errors.New("cookie store offline")

		Expect(r.Push(ctx, apiclient.Location{Name: router.RouteLogin})).To(Succeed())
		Expect(r.CurrentRoute().Name).To(Equal(router.RouteLogin))
	})

	It("sends anonymous users to login and remembers the target", func() {
		Expect(r.Push(ctx, apiclient.Location{Name: router.RouteCadastrar, Query: map[string]string{"from": "menu"}})).To(Succeed())

		Expect(r.CurrentRoute()).To(Equal(apiclient.Route{Name: router.RouteLogin, FullPath: "/login?reason=expired"}))
		Expect(sess.redirectPath).To(Equal("/cadastrar?from=menu"))
		Expect(sess.statusMessage).To(Equal(internal.MsgSessionExpired))
	})

	It("keeps an existing status message", func() {
		sess.statusMessage = "Credenciais inválidas."

		Expect(r.Push(ctx, apiclient.Location{Name: router.RouteDashboard})).To(Succeed())
		Expect(sess.statusMessage).To(Equal("Credenciais inválidas."))
	})

	It("sends authenticated users away from guest pages", func() {
		sess.authenticated = true

		Expect(r.PushPath(ctx, "/")).To(Succeed())
		Expect(r.CurrentRoute()).To(Equal(apiclient.Route{Name: router.RouteDashboard, FullPath: "/dashboard"}))
	})

	It("lets authenticated users through", func() {
		sess.authenticated = true

		Expect(r.PushPath(ctx, "/cadastrar")).To(Succeed())
		Expect(r.CurrentRoute().Name).To(Equal(router.RouteCadastrar))
		Expect(sess.redirectPath).To(BeEmpty())
	})

	It("sends unknown paths to the root", func() {
		Expect(r.PushPath(ctx, "/nowhere")).To(Succeed())
		Expect(r.CurrentRoute().Name).To(Equal(router.RouteLogin))
	})

	It("rejects unknown route names", func() {
		Expect(r.Push(ctx, apiclient.Location{Name: "perfil"})).To(MatchError(router.ErrUnknownRoute))
	})
})

var _ = Describe("session expiry", func() {
	var (
		server  *apitest.Server
		client  *apiclient.Client
		cookies *session.CookieJar
		sess    *session.Store
		r       *router.Router
		ctx     context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		server = apitest.NewServer()
		client = apiclient.NewClient(apiclient.Config{BaseURL: server.URL(), Timeout: 5 * time.Second}, logger.Discard())
		cookies = session.NewCookieJar(memory.New(), logger.Discard())
		sess = session.NewStore(client, cookies, nil, logger.Discard(), session.Options{})
		r = router.New(sess, logger.Discard())
		Expect(client.SetupInterceptors(sess, r)).To(BeTrue())
	})

	AfterEach(func() {
		server.Close()
	})

	It("redirects to login when the server answers 401 on the dashboard", func() {
		_, err := sess.Login(ctx, apitest.DefaultEmail, apitest.DefaultPassword)
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Push(ctx, apiclient.Location{Name: router.RouteDashboard})).To(Succeed())
		Expect(r.CurrentRoute().FullPath).To(Equal("/dashboard"))

		server.Fail(http.MethodGet, "/travel-requests", http.StatusUnauthorized, map[string]any{})
		err = client.Get(ctx, "/travel-requests", nil, nil)
		Expect(internal.StatusOf(err)).To(Equal(http.StatusUnauthorized))

		state := sess.State()
		Expect(state.IsAuthenticated()).To(BeFalse())
		Expect(state.RedirectPath).To(Equal("/dashboard"))
		Expect(state.StatusMessage).To(Equal(internal.MsgSessionExpired))
		Expect(r.CurrentRoute()).To(Equal(apiclient.Route{Name: router.RouteLogin, FullPath: "/login?reason=expired"}))
	})

	It("uses the server message when one is given", func() {
		_, err := sess.Login(ctx, apitest.DefaultEmail, apitest.DefaultPassword)
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Push(ctx, apiclient.Location{Name: router.RouteDashboard})).To(Succeed())

		server.Fail(http.MethodGet, "/travel-requests", http.StatusUnauthorized, map[string]any{"message": "Token revogado."})
		_ = client.Get(ctx, "/travel-requests", nil, nil)

		Expect(sess.State().StatusMessage).To(Equal("Token revogado."))
	})

	It("survives a 401 raised while hydrating from the guard", func() {
		Expect(cookies.Set(ctx, "jwt", "stale-token", time.Hour)).To(Succeed())

		Expect(r.Push(ctx, apiclient.Location{Name: router.RouteDashboard})).To(Succeed())

		state := sess.State()
		Expect(state.Hydrated).To(BeTrue())
		Expect(state.IsAuthenticated()).To(BeFalse())
		Expect(state.RedirectPath).To(Equal("/dashboard"))
		Expect(state.StatusMessage).To(Equal(internal.MsgSessionExpired))
		Expect(r.CurrentRoute().Name).To(Equal(router.RouteLogin))
	})
})
