package xerr_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestXerr(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "xerr suite")
}
