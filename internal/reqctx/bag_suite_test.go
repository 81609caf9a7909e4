package reqctx_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestBag(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "reqctx suite")
}
