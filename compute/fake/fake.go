// Package fake provides an in-memory compute.Platform used to exercise the
// CPU/GPU drivers and buffer registry deterministically in tests, without a
// real accelerator. Kernel bodies are supplied by the test as plain Go
// functions keyed by name — the kernel bodies themselves remain out of
// scope (spec.md §1); this only fakes the device/queue/buffer plumbing
// around them.
package fake

import (
	"fmt"
	"time"

	"github.com/sarchlab/predprey/compute"
)

// KernelFunc is a test-supplied kernel body. args are the values bound via
// Kernel.SetArg, indexed by position.
type KernelFunc func(args map[int]any, globalSize, localSize []int) error

// Platform is an in-memory compute.Platform exposing a fixed set of
// devices.
type Platform struct {
	devices []compute.Device
}

// NewPlatform creates a Platform with the given devices.
func NewPlatform(devices ...*Device) *Platform {
	p := &Platform{}
	for _, d := range devices {
		p.devices = append(p.devices, d)
	}
	return p
}

// Devices implements compute.Platform.
func (p *Platform) Devices() []compute.Device {
	return p.devices
}

// Device is an in-memory compute.Device. Kernels are resolved by name
// against a registry supplied at construction.
type Device struct {
	info     compute.DeviceInfo
	kernels  map[string]KernelFunc
	released bool
}

// NewDevice creates a fake device with the given info and kernel registry.
func NewDevice(info compute.DeviceInfo, kernels map[string]KernelFunc) *Device {
	return &Device{info: info, kernels: kernels}
}

// Info implements compute.Device.
func (d *Device) Info() compute.DeviceInfo { return d.info }

// BuildProgram implements compute.Device. The fake ignores source/options
// content (kernel bodies are supplied via the registry). The options string
// is kept on the returned program; no accessor exposes it.
func (d *Device) BuildProgram(source string, options string) (compute.Program, error) {
	return &program{device: d, options: options}, nil
}

// NewBuffer implements compute.Device: allocates a zero-filled byte slice.
func (d *Device) NewBuffer(size int) (compute.Buffer, error) {
	return &buffer{data: make([]byte, size)}, nil
}

// NewCommandQueue implements compute.Device.
func (d *Device) NewCommandQueue() compute.CommandQueue {
	return &commandQueue{}
}

// Release implements compute.Device.
func (d *Device) Release() error {
	d.released = true
	return nil
}

type program struct {
	device  *Device
	options string
}

func (p *program) CreateKernel(name string) (compute.Kernel, error) {
	fn, ok := p.device.kernels[name]
	if !ok {
		return compute.Kernel{}, fmt.Errorf("fake: no kernel registered for %q", name)
	}
	return compute.NewKernel(name, &kernel{fn: fn, args: map[int]any{}}), nil
}

func (p *program) Release() error { return nil }

type kernel struct {
	fn   KernelFunc
	args map[int]any
}

func (k *kernel) SetArg(index int, value any) error {
	k.args[index] = value
	return nil
}

func (k *kernel) Run(globalSize, localSize []int) error {
	return k.fn(k.args, globalSize, localSize)
}

type buffer struct {
	data     []byte
	released bool
}

func (b *buffer) Size() int { return len(b.data) }

func (b *buffer) MapRead() ([]byte, func() error, error) {
	if b.released {
		return nil, nil, fmt.Errorf("fake: buffer already released")
	}
	return b.data, func() error { return nil }, nil
}

func (b *buffer) MapWrite() ([]byte, func() error, error) {
	if b.released {
		return nil, nil, fmt.Errorf("fake: buffer already released")
	}
	return b.data, func() error { return nil }, nil
}

func (b *buffer) Release() error {
	b.released = true
	return nil
}

type commandQueue struct {
	profiling bool
}

func (q *commandQueue) Enqueue(
	k compute.Kernel,
	name string,
	globalSize, localSize []int,
	waitList []compute.Event,
) (compute.Event, error) {
	for _, e := range waitList {
		if err := e.Wait(); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	err := k.Run(globalSize, localSize)
	end := time.Now()
	if err != nil {
		return nil, fmt.Errorf("fake: kernel %q: %w", name, err)
	}

	return &event{start: start, end: end, profiling: q.profiling}, nil
}

func (q *commandQueue) Barrier() error { return nil }

func (q *commandQueue) Finish() error { return nil }

func (q *commandQueue) EnableProfiling(enabled bool) { q.profiling = enabled }

type event struct {
	start, end time.Time
	profiling  bool
}

func (e *event) Wait() error { return nil }

func (e *event) Profile() (time.Time, time.Time, bool) {
	if !e.profiling {
		return time.Time{}, time.Time{}, false
	}
	return e.start, e.end, true
}
