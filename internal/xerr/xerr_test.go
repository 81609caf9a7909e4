package xerr_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/monoproxy/internal/xerr"
)

var _ = Describe("Error", func() {
	It("renders code and message", func() {
		err := xerr.New(xerr.CodeRouteMiss, "no route matches /x")
		Expect(err.Error()).To(Equal("[404] no route matches /x"))
		Expect(err.Code()).To(Equal(xerr.CodeRouteMiss))
	})

	It("chains the parent's message when wrapped", func() {
		parent := errors.New("dial tcp: connection refused")
		err := xerr.Wrap(xerr.CodeUpstream, "upstream dial failed", parent)
		Expect(err.Error()).To(ContainSubstring("upstream dial failed"))
		Expect(err.Error()).To(ContainSubstring("connection refused"))
		Expect(errors.Unwrap(err)).To(Equal(parent))
	})

	It("Is compares by code, not message", func() {
		a := xerr.New(xerr.CodeSiteNotExist, "site foo missing")
		b := xerr.New(xerr.CodeSiteNotExist, "site bar missing")
		c := xerr.New(xerr.CodeUpstream, "upstream down")

		Expect(a.Is(b)).To(BeTrue())
		Expect(a.Is(c)).To(BeFalse())
	})

	It("tolerates a nil receiver", func() {
		var e *xerr.Error
		Expect(e.Error()).To(Equal(""))
		Expect(e.Code()).To(Equal(xerr.Code(0)))
		Expect(e.Unwrap()).To(BeNil())
	})
})

var _ = Describe("HTTPStatus", func() {
	It("maps boundary codes to their HTTP status", func() {
		Expect(xerr.HTTPStatus(xerr.New(xerr.CodeRequestURI, ""))).To(Equal(400))
		Expect(xerr.HTTPStatus(xerr.New(xerr.CodeRouteMiss, ""))).To(Equal(404))
		Expect(xerr.HTTPStatus(xerr.New(xerr.CodeUpstream, ""))).To(Equal(502))
		Expect(xerr.HTTPStatus(xerr.New(xerr.CodeInternal, ""))).To(Equal(500))
	})

	It("defaults to 500 for non-boundary codes and plain errors", func() {
		Expect(xerr.HTTPStatus(xerr.New(xerr.CodeSiteNotExist, ""))).To(Equal(500))
		Expect(xerr.HTTPStatus(errors.New("plain"))).To(Equal(500))
	})
})
