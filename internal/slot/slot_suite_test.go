package slot_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestSlot(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "slot suite")
}
