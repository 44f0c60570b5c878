// Package compute defines the host-visible interface to an OpenCL-style
// compute device. The kernel bodies themselves are out of scope (spec.md
// §1); this package is the boundary the drivers, planners, and buffer
// registry are built against, mirroring the way the teacher builds its
// core logic against akita's sim.Engine/sim.Port interfaces rather than a
// concrete scheduler.
package compute

import "time"

// VectorWidth is a device-preferred SIMD width; must be 0 (auto) or a
// power of two <= 16 per spec.md §4.F.
type VectorWidth int

// DeviceInfo describes the fixed characteristics of a device relevant to
// planning (spec.md §4.E, §4.F).
type DeviceInfo struct {
	Name                string
	MaxWorkGroupSize    int
	ComputeUnits        int
	PreferredVectorInt  VectorWidth
	PreferredVectorChar VectorWidth
}

// Platform enumerates and selects devices (spec.md §4.C).
type Platform interface {
	// Devices lists the available devices, in a stable enumeration order.
	Devices() []Device
}

// Device is a single compute device capable of building a program and
// allocating buffers.
type Device interface {
	Info() DeviceInfo

	// BuildProgram compiles source against this device with a compiler
	// option string embedding simulation constants (spec.md §4.C, §6).
	BuildProgram(source string, options string) (Program, error)

	// NewBuffer allocates a host-visible, zero-filled buffer of size bytes
	// (spec.md §4.D: "the platform does not guarantee zeroed buffers").
	NewBuffer(size int) (Buffer, error)

	// NewCommandQueue creates an in-order command queue.
	NewCommandQueue() CommandQueue

	// Release frees device-level resources.
	Release() error
}

// Program is a built, linked compute program.
type Program interface {
	CreateKernel(name string) (Kernel, error)
	Release() error
}

// Kernel is a single entry point within a Program.
type Kernel struct {
	Name string
	// impl is bound by the fake/real device implementation; drivers never
	// touch it directly, they set arguments through SetArg.
	impl kernelImpl
}

// kernelImpl is the device-private callable a Kernel wraps. Real device
// backends and the in-memory fake both satisfy it.
type kernelImpl interface {
	SetArg(index int, value any) error
	Run(globalSize, localSize []int) error
}

// SetArg binds a scalar kernel argument by position.
func (k Kernel) SetArg(index int, value any) error {
	return k.impl.SetArg(index, value)
}

// Run executes the kernel body against the given work sizes. Called by
// CommandQueue implementations after resolving any wait list.
func (k Kernel) Run(globalSize, localSize []int) error {
	return k.impl.Run(globalSize, localSize)
}

// NewKernel wraps a kernelImpl as a Kernel; used by Program implementations.
func NewKernel(name string, impl kernelImpl) Kernel {
	return Kernel{Name: name, impl: impl}
}

// KernelImpl exposes the kernelImpl type for implementers outside this
// package (the fake device and any real backend).
type KernelImpl = kernelImpl

// Buffer is a device memory allocation with host-visible scoped mapping
// (spec.md §4.D).
type Buffer interface {
	Size() int

	// MapRead/MapWrite return a byte slice aliasing the buffer's host-visible
	// memory and an unmap function. The unmap function is guaranteed
	// callable exactly once, on every exit path (defer unmap()); unmap
	// failure is itself a LibraryError.
	MapRead() (data []byte, unmap func() error, err error)
	MapWrite() (data []byte, unmap func() error, err error)

	Release() error
}

// Event represents a single enqueued operation's completion signal, usable
// across command queues as a wait-list entry (spec.md §5).
type Event interface {
	Wait() error
	// Profile returns the start/end timestamps if profiling was enabled on
	// the originating queue; zero values otherwise.
	Profile() (start, end time.Time, ok bool)
}

// CommandQueue is an in-order sequence of kernel enqueues, barriers, and
// buffer operations (spec.md §5).
type CommandQueue interface {
	// Enqueue submits a kernel with the given global/local work sizes,
	// waiting on waitList before starting.
	Enqueue(kernel Kernel, name string, globalSize, localSize []int, waitList []Event) (Event, error)

	// Barrier inserts a full barrier: no work submitted after it may start
	// until every previously enqueued operation on this queue completes.
	Barrier() error

	// Finish blocks until every operation on this queue has completed.
	Finish() error

	// EnableProfiling turns on event timestamping for this queue
	// (ProfilerShim wires this; spec.md §4.J).
	EnableProfiling(enabled bool)
}
