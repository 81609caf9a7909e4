package duration_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/monoproxy/internal/duration"
)

var _ = Describe("Seconds", func() {
	It("reports absent for zero, meaning no timeout applied", func() {
		d, present := duration.Seconds(0)
		Expect(present).To(BeFalse())
		Expect(d).To(Equal(time.Duration(0)))
	})

	It("reports absent for negative values", func() {
		_, present := duration.Seconds(-5)
		Expect(present).To(BeFalse())
	})

	It("converts a positive second count to a Duration", func() {
		d, present := duration.Seconds(30)
		Expect(present).To(BeTrue())
		Expect(d).To(Equal(30 * time.Second))
	})
})

var _ = Describe("OrDefault", func() {
	It("returns d when present", func() {
		Expect(duration.OrDefault(5*time.Second, true, time.Minute)).To(Equal(5 * time.Second))
	})

	It("returns def when not present", func() {
		Expect(duration.OrDefault(5*time.Second, false, time.Minute)).To(Equal(time.Minute))
	})
})
