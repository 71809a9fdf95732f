package datefmt_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/travel-requests/internal/datefmt"
)

var _ = Describe("ToAPIDate", func() {
	DescribeTable("normalizes accepted shapes",
		func(input, expected string) {
			Expect(datefmt.ToAPIDate(input)).To(Equal(expected))
		},
		Entry("iso date", "2024-03-09", "2024-03-09"),
		Entry("iso date with padding", "  2024-03-09 ", "2024-03-09"),
		Entry("iso datetime", "2024-03-09T22:15:00.000000Z", "2024-03-09"),
		Entry("display date", "09/03/2024", "2024-03-09"),
		Entry("rfc1123", "Sat, 09 Mar 2024 10:00:00 GMT", "2024-03-09"),
		Entry("slashed iso", "2024/03/09", "2024-03-09"),
		Entry("blank", "   ", ""),
		Entry("garbage", "not a date", ""),
	)

	It("converts time values using the UTC calendar day", func() {
		loc := time.FixedZone("BRT", -3*60*60)
		t := time.Date(2024, 3, 9, 23, 30, 0, 0, loc)

		Expect(datefmt.TimeToAPIDate(t)).To(Equal("2024-03-10"))
		Expect(datefmt.TimeToAPIDate(time.Time{})).To(BeEmpty())
	})

	It("is idempotent for every accepted shape", func() {
		inputs := []string{
			"2024-03-09",
			"2024-03-09T10:00:00Z",
			"09/03/2024",
			"Sat, 09 Mar 2024 10:00:00 GMT",
			datefmt.TimeToAPIDate(time.Date(2023, 12, 31, 12, 0, 0, 0, time.UTC)),
		}

		for _, in := range inputs {
			once := datefmt.ToAPIDate(in)
			Expect(datefmt.ToAPIDate(once)).To(Equal(once), "input %q", in)
		}
	})
})

var _ = Describe("FormatForDisplay", func() {
	It("renders dd/MM/yyyy", func() {
		Expect(datefmt.FormatForDisplay("2024-03-09")).To(Equal("09/03/2024"))
		Expect(datefmt.FormatForDisplay("2024-03-09T08:00:00Z")).To(Equal("09/03/2024"))
		Expect(datefmt.FormatTimeForDisplay(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))).To(Equal("02/01/2024"))
	})

	It("returns empty for unparseable input", func() {
		Expect(datefmt.FormatForDisplay("")).To(BeEmpty())
		Expect(datefmt.FormatForDisplay("tomorrow")).To(BeEmpty())
	})

	It("round-trips through ToAPIDate", func() {
		for _, in := range []string{"2024-02-29", "01/12/2025", "2025-07-04T00:00:00-03:00"} {
			Expect(datefmt.ToAPIDate(datefmt.FormatForDisplay(in))).To(Equal(datefmt.ToAPIDate(in)))
		}
	})
})
