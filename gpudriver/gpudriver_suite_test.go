package gpudriver_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestGpuDriver(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "GpuDriver Suite")
}
