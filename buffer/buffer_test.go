package buffer_test

import (
	"encoding/binary"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/predprey/compute"
	"github.com/sarchlab/predprey/compute/fake"
	"github.com/sarchlab/predprey/buffer"
)

var _ = Describe("Registry", func() {
	var (
		dev *fake.Device
		reg *buffer.Registry
	)

	BeforeEach(func() {
		dev = fake.NewDevice(compute.DeviceInfo{Name: "fake0"}, nil)
		reg = buffer.New(dev)
	})

	It("allocates zero-filled buffers", func() {
		_, err := reg.Alloc(buffer.Statistics, 32)
		Expect(err).NotTo(HaveOccurred())

		err = reg.WithRead(buffer.Statistics, func(data []byte) error {
			for _, b := range data {
				Expect(b).To(Equal(byte(0)))
			}
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("round-trips writes through WithWrite/WithRead", func() {
		_, err := reg.Alloc(buffer.Cells, 8)
		Expect(err).NotTo(HaveOccurred())

		err = reg.WithWrite(buffer.Cells, func(data []byte) error {
			binary.LittleEndian.PutUint32(data, 99)
			return nil
		})
		Expect(err).NotTo(HaveOccurred())

		var got uint32
		err = reg.WithRead(buffer.Cells, func(data []byte) error {
			got = binary.LittleEndian.Uint32(data)
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(uint32(99)))
	})

	It("propagates the callback's error instead of swallowing it", func() {
		_, err := reg.Alloc(buffer.Agents, 4)
		Expect(err).NotTo(HaveOccurred())

		sentinel := errors.New("boom")
		err = reg.WithRead(buffer.Agents, func(data []byte) error {
			return sentinel
		})
		Expect(err).To(MatchError(sentinel))
	})

	It("releases every buffer and forgets them", func() {
		_, err := reg.Alloc(buffer.Statistics, 4)
		Expect(err).NotTo(HaveOccurred())
		_, err = reg.Alloc(buffer.Cells, 4)
		Expect(err).NotTo(HaveOccurred())

		Expect(reg.Release()).To(Succeed())

		_, ok := reg.Get(buffer.Statistics)
		Expect(ok).To(BeFalse())
	})

	It("panics on a duplicate allocation name", func() {
		_, err := reg.Alloc(buffer.Statistics, 4)
		Expect(err).NotTo(HaveOccurred())

		Expect(func() {
			_, _ = reg.Alloc(buffer.Statistics, 8)
		}).To(Panic())
	})
})
