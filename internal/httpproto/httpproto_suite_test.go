package httpproto_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestHTTPProto(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "httpproto suite")
}
