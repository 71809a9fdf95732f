package internal_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/travel-requests/internal"
)

var _ = Describe("Config", func() {
	var cfg internal.Config

	BeforeEach(func() {
		cfg = internal.DefaultConfig()
		cfg.Storage.Source = "/tmp/state.db"
	})

	It("accepts the defaults", func() {
		Expect(cfg.Validate()).To(Succeed())
	})

	DescribeTable("ResolveBaseURL",
		func(api internal.APIConfig, expected string) {
			Expect(api.ResolveBaseURL()).To(Equal(expected))
		},
		Entry("explicit base url", internal.APIConfig{BaseURL: "https://api.example.com/v1/"}, "https://api.example.com/v1"),
		Entry("origin", internal.APIConfig{Origin: "https://viagens.example.com"}, "https://viagens.example.com/api"),
		Entry("local fallback", internal.APIConfig{}, "http://localhost:91/api"),
	)

	It("rejects relative urls", func() {
		cfg.API.BaseURL = "/api"
		Expect(cfg.Validate()).To(MatchError(ContainSubstring("must be absolute http(s)")))
	})

	It("rejects unknown storage drivers", func() {
		cfg.Storage.Driver = "dynamo"
		Expect(cfg.Validate()).To(MatchError(ContainSubstring("Driver")))
	})

	It("requires an address for redis", func() {
		cfg.Storage.Driver = "redis"
		cfg.Storage.Redis.Addr = ""
		Expect(cfg.Validate()).To(MatchError(ContainSubstring("redis.addr is required")))
	})
})
