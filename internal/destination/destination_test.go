package destination_test

import (
	"context"
	"fmt"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/travel-requests/internal"
	"github.com/frahmantamala/travel-requests/internal/apiclient"
	"github.com/frahmantamala/travel-requests/internal/apitest"
	"github.com/frahmantamala/travel-requests/internal/destination"
	"github.com/frahmantamala/travel-requests/internal/storage/memory"
	"github.com/frahmantamala/travel-requests/pkg/logger"
)

var _ = Describe("Store", func() {
	var (
		server  *apitest.Server
		client  *apiclient.Client
		durable *memory.Store
		now     time.Time
		store   *destination.Store
		ctx     context.Context
	)

	clock := func() time.Time { return now }

	newStore := func() *destination.Store {
		return destination.NewStore(ctx, client, durable, nil, logger.Discard(), destination.Options{Now: clock})
	}

	calls := func() int {
		return server.Calls(http.MethodGet, "/destinations")
	}

	BeforeEach(func() {
		ctx = context.Background()
		server = apitest.NewServer()
		server.AddDestination(map[string]any{
			"id": 1, "slug": "sao-paulo-sp", "city_id": 10, "city": "São Paulo",
			"state": "São Paulo", "state_code": "SP", "country": "Brasil", "label": "São Paulo, SP, Brasil",
		})
		server.AddDestination(map[string]any{
			"id": 2, "slug": "salvador-ba", "city_id": 11, "city": "Salvador",
			"state": "Bahia", "state_code": "BA", "country": "Brasil", "label": "Salvador, BA, Brasil",
		})
		client = apiclient.NewClient(apiclient.Config{BaseURL: server.URL(), Timeout: 5 * time.Second}, logger.Discard())
		durable = memory.New()
		now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		store = newStore()
	})

	AfterEach(func() {
		server.Close()
	})

	It("returns nothing for a blank query without calling the API", func() {
		results, err := store.Search(ctx, "   ")
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(BeEmpty())
		Expect(calls()).To(BeZero())
	})

	It("sends the raw query with the result limit", func() {
		results, err := store.Search(ctx, " São ")
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(1))
		Expect(results[0].Label).To(Equal("São Paulo, SP, Brasil"))
		Expect(*results[0].StateCode).To(Equal("SP"))
		Expect(server.LastQuery(http.MethodGet, "/destinations")).To(ContainSubstring("limit=10"))
		Expect(server.LastQuery(http.MethodGet, "/destinations")).To(ContainSubstring("q=+S%C3%A3o+"))
	})

	It("serves an unexpired query from the cache", func() {
		_, err := store.Search(ctx, "Salvador")
		Expect(err).NotTo(HaveOccurred())

		now = now.Add(5 * time.Hour)
		results, err := store.Search(ctx, "  salvador ")
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(1))
		Expect(calls()).To(Equal(1))
	})

	It("issues exactly one new call once the entry expires", func() {
		_, err := store.Search(ctx, "salvador")
		Expect(err).NotTo(HaveOccurred())

		now = now.Add(6 * time.Hour)
		_, err = store.Search(ctx, "salvador")
		Expect(err).NotTo(HaveOccurred())
		_, err = store.Search(ctx, "salvador")
		Expect(err).NotTo(HaveOccurred())

		Expect(calls()).To(Equal(2))
	})

	It("evicts exactly the oldest entry when a 21st query is cached", func() {
		for i := 0; i < 21; i++ {
			_, err := store.Search(ctx, fmt.Sprintf("query-%02d", i))
			Expect(err).NotTo(HaveOccurred())
			now = now.Add(time.Minute)
		}

		Expect(store.Len()).To(Equal(20))
		_, ok := store.Cached("query-00")
		Expect(ok).To(BeFalse())
		for i := 1; i < 21; i++ {
			_, ok := store.Cached(fmt.Sprintf("query-%02d", i))
			Expect(ok).To(BeTrue())
		}
	})

	It("restores the cache from durable storage", func() {
		_, err := store.Search(ctx, "paulo")
		Expect(err).NotTo(HaveOccurred())

		reloaded := newStore()
		results, err := reloaded.Search(ctx, "PAULO")
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(1))
		Expect(calls()).To(Equal(1))
	})

	It("ignores persistence failures", func() {
		durable.FailWrites = true

		results, err := store.Search(ctx, "salvador")
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(1))
	})

	It("returns an empty list when the payload has an unexpected shape", func() {
		server.Fail(http.MethodGet, "/destinations", http.StatusOK, map[string]any{"data": "oops"})

		results, err := store.Search(ctx, "salvador")
		Expect(err).NotTo(HaveOccurred())
		Expect(results).NotTo(BeNil())
		Expect(results).To(BeEmpty())
	})

	It("returns API errors unchanged and resets loading", func() {
		server.Fail(http.MethodGet, "/destinations", http.StatusInternalServerError, map[string]any{"message": "Falhou."})

		_, err := store.Search(ctx, "salvador")
		apiErr, ok := internal.AsAPIError(err)
		Expect(ok).To(BeTrue())
		Expect(apiErr.Status).To(Equal(http.StatusInternalServerError))
		Expect(apiErr.Message).To(Equal("Falhou."))
		Expect(store.Loading()).To(BeFalse())

		_, cached := store.Cached("salvador")
		Expect(cached).To(BeFalse())
	})
})
