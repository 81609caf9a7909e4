package slot_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/monoproxy/internal/slot"
)

var _ = Describe("Slot", func() {
	It("starts empty when created with no initial value", func() {
		s := slot.New[int](nil)
		Expect(s.Empty()).To(BeTrue())
		Expect(s.Load()).To(BeNil())
	})

	It("seeds Load from the initial value", func() {
		v := 7
		s := slot.New(&v)
		Expect(s.Empty()).To(BeFalse())
		Expect(*s.Load()).To(Equal(7))
	})

	It("Store replaces what Load returns without mutating prior snapshots", func() {
		a := 1
		s := slot.New(&a)
		snapshot := s.Load()

		b := 2
		s.Store(&b)

		Expect(*snapshot).To(Equal(1))
		Expect(*s.Load()).To(Equal(2))
	})

	It("Swap installs the new value and returns the previous one", func() {
		a := 1
		s := slot.New(&a)

		b := 2
		prev := s.Swap(&b)

		Expect(*prev).To(Equal(1))
		Expect(*s.Load()).To(Equal(2))
	})
})
