package session_test

import (
	"context"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/travel-requests/internal"
	"github.com/frahmantamala/travel-requests/internal/apiclient"
	"github.com/frahmantamala/travel-requests/internal/apitest"
	"github.com/frahmantamala/travel-requests/internal/core/events"
	"github.com/frahmantamala/travel-requests/internal/session"
	"github.com/frahmantamala/travel-requests/internal/storage"
	"github.com/frahmantamala/travel-requests/internal/storage/memory"
	"github.com/frahmantamala/travel-requests/pkg/logger"
)

// hookedAPI runs afterGet once the response is in but before the caller sees
// it, to simulate work that happens while a request is in flight.
type hookedAPI struct {
	session.API
	afterGet func()
}

func (h *hookedAPI) Get(ctx context.Context, path string, query url.Values, out any) error {
	err := h.API.Get(ctx, path, query, out)
	if h.afterGet != nil {
		h.afterGet()
	}
	return err
}

var _ = Describe("Store", func() {
	var (
		server  *apitest.Server
		client  *apiclient.Client
		backing *memory.Store
		cookies *session.CookieJar
		bus     *events.EventBus
		store   *session.Store
		ctx     context.Context
	)

	newStore := func(api session.API) *session.Store {
		return session.NewStore(api, cookies, bus, logger.Discard(), session.Options{})
	}

	BeforeEach(func() {
		server = apitest.NewServer()
		client = apiclient.NewClient(apiclient.Config{BaseURL: server.URL(), Timeout: 5 * time.Second}, logger.Discard())
		backing = memory.New()
		cookies = session.NewCookieJar(backing, logger.Discard())
		bus = events.NewEventBus(logger.Discard())
		store = newStore(client)
		ctx = context.Background()
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("Login", func() {
		It("authenticates and stores the cookie with the default max-age", func() {
			token, err := store.Login(ctx, apitest.DefaultEmail, apitest.DefaultPassword)
			Expect(err).NotTo(HaveOccurred())
			Expect(token).NotTo(BeEmpty())

			state := store.State()
			Expect(state.IsAuthenticated()).To(BeTrue())
			Expect(state.StatusMessage).To(BeEmpty())
			Expect(state.Loading).To(BeFalse())
			Expect(state.User.Name).To(Equal("Ana Souza"))
			Expect(*state.User.Role).To(Equal("manager"))
			Expect(client.DefaultHeader("Authorization")).To(Equal("Bearer " + token))

			cookie, err := cookies.Cookie(ctx, "jwt")
			Expect(err).NotTo(HaveOccurred())
			Expect(cookie.MaxAge).To(Equal(900))
			Expect(cookie.Path).To(Equal("/"))
			Expect(cookie.SameSite).To(Equal(http.SameSiteLaxMode))
			Expect(backing.TTL("cookie:jwt")).To(BeNumerically("~", 900*time.Second, time.Second))
		})

		It("uses expires_in from the server for the cookie and later refreshes", func() {
			seconds := 120
			server.SetExpiresIn(&seconds)

			_, err := store.Login(ctx, apitest.DefaultEmail, apitest.DefaultPassword)
			Expect(err).NotTo(HaveOccurred())

			_, err = store.FetchUser(ctx, "", session.FetchOptions{})
			Expect(err).NotTo(HaveOccurred())

			cookie, err := cookies.Cookie(ctx, "jwt")
			Expect(err).NotTo(HaveOccurred())
			Expect(cookie.MaxAge).To(Equal(120))
		})

		It("clears a previous session and propagates invalid credentials", func() {
			_, err := store.Login(ctx, apitest.DefaultEmail, apitest.DefaultPassword)
			Expect(err).NotTo(HaveOccurred())

			_, err = store.Login(ctx, apitest.DefaultEmail, "wrong")
			Expect(internal.StatusOf(err)).To(Equal(http.StatusUnauthorized))

			state := store.State()
			Expect(state.IsAuthenticated()).To(BeFalse())
			Expect(state.Loading).To(BeFalse())
			Expect(client.DefaultHeader("Authorization")).To(BeEmpty())

			value, err := cookies.Get(ctx, "jwt")
			Expect(err).NotTo(HaveOccurred())
			Expect(value).To(BeEmpty())
		})

		It("exposes the token expiry", func() {
			_, err := store.Login(ctx, apitest.DefaultEmail, apitest.DefaultPassword)
			Expect(err).NotTo(HaveOccurred())

			expiry, ok := store.TokenExpiry()
			Expect(ok).To(BeTrue())
			Expect(expiry).To(BeTemporally("~", time.Now().Add(15*time.Minute), 5*time.Second))
		})
	})

	Describe("FetchUser", func() {
		It("requires a token", func() {
			_, err := store.FetchUser(ctx, "", session.FetchOptions{})
			Expect(err).To(MatchError(session.ErrMissingToken))
		})

		It("clears the session with the expired message on 401", func() {
			_, err := store.FetchUser(ctx, "not-a-token", session.FetchOptions{})
			Expect(internal.StatusOf(err)).To(Equal(http.StatusUnauthorized))

			state := store.State()
			Expect(state.IsAuthenticated()).To(BeFalse())
			Expect(state.StatusMessage).To(Equal(internal.MsgSessionExpired))
		})

		It("surfaces other failures unless silent", func() {
			token := server.IssueToken(apitest.DefaultEmail, time.Minute)
			server.Fail(http.MethodGet, "/user", http.StatusInternalServerError, map[string]any{"message": "Falha interna."})

			_, err := store.FetchUser(ctx, token, session.FetchOptions{Silent: true})
			Expect(internal.StatusOf(err)).To(Equal(http.StatusInternalServerError))
			Expect(store.State().StatusMessage).To(BeEmpty())

			_, err = store.FetchUser(ctx, token, session.FetchOptions{})
			Expect(err).To(HaveOccurred())
			Expect(store.State().StatusMessage).To(Equal("Falha interna."))
		})

		It("clears the status message on a non-silent success", func() {
			store.SetStatusMessage("antiga")

			user, err := store.FetchUser(ctx, server.IssueToken(apitest.DefaultEmail, time.Minute), session.FetchOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(user.Email).To(Equal(apitest.DefaultEmail))
			Expect(store.State().StatusMessage).To(BeEmpty())
		})

		It("drops a result that arrives after the session was cleared", func() {
			hooked := &hookedAPI{API: client}
			store = newStore(hooked)
			hooked.afterGet = func() { store.Logout("") }

			_, err := store.FetchUser(ctx, server.IssueToken(apitest.DefaultEmail, time.Minute), session.FetchOptions{})
			Expect(err).To(MatchError(session.ErrStaleSession))
			Expect(store.IsAuthenticated()).To(BeFalse())
		})
	})

	Describe("Hydrate", func() {
		It("restores the session from the cookie", func() {
			token := server.IssueToken(apitest.DefaultEmail, time.Hour)
			Expect(cookies.Set(ctx, "jwt", token, time.Minute)).To(Succeed())

			Expect(store.Hydrate(ctx)).To(Succeed())

			state := store.State()
			Expect(state.Hydrated).To(BeTrue())
			Expect(state.IsAuthenticated()).To(BeTrue())
			Expect(state.Token).To(Equal(token))

			cookie, err := cookies.Cookie(ctx, "jwt")
			Expect(err).NotTo(HaveOccurred())
			Expect(cookie.MaxAge).To(Equal(int((6 * time.Hour).Seconds())))
		})

		It("runs once", func() {
			Expect(cookies.Set(ctx, "jwt", server.IssueToken(apitest.DefaultEmail, time.Hour), time.Minute)).To(Succeed())

			Expect(store.Hydrate(ctx)).To(Succeed())
			Expect(store.Hydrate(ctx)).To(Succeed())
			Expect(server.Calls(http.MethodGet, "/user")).To(Equal(1))
		})

		It("marks an anonymous session hydrated when there is no cookie", func() {
			Expect(store.Hydrate(ctx)).To(Succeed())

			state := store.State()
			Expect(state.Hydrated).To(BeTrue())
			Expect(state.IsAuthenticated()).To(BeFalse())
			Expect(server.Calls(http.MethodGet, "/user")).To(BeZero())
		})

		It("clears an expired session", func() {
			Expect(cookies.Set(ctx, "jwt", "expired-token", time.Minute)).To(Succeed())

			Expect(store.Hydrate(ctx)).To(Succeed())

			state := store.State()
			Expect(state.Hydrated).To(BeTrue())
			Expect(state.IsAuthenticated()).To(BeFalse())
			Expect(state.StatusMessage).To(Equal(internal.MsgSessionExpired))

			value, err := cookies.Get(ctx, "jwt")
			Expect(err).NotTo(HaveOccurred())
			Expect(value).To(BeEmpty())
		})

		It("reports a generic message when validation fails for other reasons", func() {
			Expect(cookies.Set(ctx, "jwt", server.IssueToken(apitest.DefaultEmail, time.Hour), time.Minute)).To(Succeed())
			server.Fail(http.MethodGet, "/user", http.StatusServiceUnavailable, map[string]any{"message": "Indisponível."})

			Expect(store.Hydrate(ctx)).To(Succeed())

			state := store.State()
			Expect(state.Hydrated).To(BeTrue())
			Expect(state.IsAuthenticated()).To(BeFalse())
			Expect(state.StatusMessage).To(Equal(internal.MsgSessionValidation))
		})

		It("still completes when the cookie store cannot be read", func() {
			failing := session.NewStore(client, session.NewCookieJar(brokenStore{}, logger.Discard()), nil, logger.Discard(), session.Options{})

			Expect(failing.Hydrate(ctx)).To(MatchError(ContainSubstring("read cookie")))
			Expect(failing.Hydrated()).To(BeTrue())
		})
	})

	Describe("Logout", func() {
		It("clears the session, cookie and redirect path", func() {
			_, err := store.Login(ctx, apitest.DefaultEmail, apitest.DefaultPassword)
			Expect(err).NotTo(HaveOccurred())
			store.SetRedirectPath("/cadastrar")

			store.Logout("Até logo.")

			state := store.State()
			Expect(state.IsAuthenticated()).To(BeFalse())
			Expect(state.RedirectPath).To(BeEmpty())
			Expect(state.StatusMessage).To(Equal("Até logo."))
			Expect(client.DefaultHeader("Authorization")).To(BeEmpty())

			_, err = cookies.Cookie(ctx, "jwt")
			Expect(err).To(MatchError(storage.ErrNotFound))
		})
	})

	It("publishes a change event on mutations", func() {
		var changes atomic.Int32
		unsubscribe := bus.Subscribe(events.SessionChanged, func(context.Context, events.Event) error {
			changes.Add(1)
			return nil
		})
		defer unsubscribe()

		store.ClearSession("")
		store.SetStatusMessage("olá")
		Expect(changes.Load()).To(BeNumerically("==", 2))
	})
})

var _ = Describe("CookieJar", func() {
	It("treats an expired cookie as absent", func() {
		now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
		backing := memory.New()
		jar := session.NewCookieJar(backing, logger.Discard()).WithClock(func() time.Time { return now })
		ctx := context.Background()

		Expect(jar.Set(ctx, "jwt", "a.b.c", time.Minute)).To(Succeed())
		value, err := jar.Get(ctx, "jwt")
		Expect(err).NotTo(HaveOccurred())
		Expect(value).To(Equal("a.b.c"))

		now = now.Add(2 * time.Minute)
		value, err = jar.Get(ctx, "jwt")
		Expect(err).NotTo(HaveOccurred())
		Expect(value).To(BeEmpty())
	})

	It("deletes the cookie for a non-positive max-age", func() {
		ctx := context.Background()
		jar := session.NewCookieJar(memory.New(), logger.Discard())

		Expect(jar.Set(ctx, "jwt", "token", time.Minute)).To(Succeed())
		Expect(jar.Set(ctx, "jwt", "token", 0)).To(Succeed())

		_, err := jar.Cookie(ctx, "jwt")
		Expect(err).To(MatchError(storage.ErrNotFound))
	})
})

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, error) {
	return nil, errBroken
}

func (brokenStore) Set(context.Context, string, []byte, time.Duration) error { return errBroken }
func (brokenStore) Delete(context.Context, string) error                    { return errBroken }
func (brokenStore) Close() error                                            { return nil }

var errBroken = storageError("storage offline")

type storageError string

func (e storageError) Error() string { return string(e) }
