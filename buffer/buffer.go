// Package buffer implements BufferRegistry (spec.md §4.D): allocation,
// scoped host mapping, and ordered release of device buffers.
package buffer

import (
	"github.com/sarchlab/predprey/compute"
	"github.com/sarchlab/predprey/ppcerr"
)

// Name identifies one of the registry's buffers.
type Name string

// The fixed set of buffers the registry allocates (spec.md §4.D).
const (
	Statistics    Name = "statistics"
	Cells         Name = "cells"
	Agents        Name = "agents"
	AgentsAlt     Name = "agents_alt" // second agent buffer, GPU double-buffering
	RNGSeeds      Name = "rng_seeds"
	ReduceGrass   Name = "reduce_grass_scratch"
	ReduceAgent   Name = "reduce_agent_scratch"
	CellIndex     Name = "cell_index"
)

// Registry owns every device buffer for a run and releases them in
// reverse allocation order at teardown.
type Registry struct {
	device  compute.Device
	order   []Name
	buffers map[Name]compute.Buffer
}

// New creates an empty Registry bound to a device.
func New(dev compute.Device) *Registry {
	return &Registry{device: dev, buffers: map[Name]compute.Buffer{}}
}

// Alloc creates a zero-filled buffer of size bytes under the given name.
// Allocating the same name twice is a programmer error (panics), matching
// the teacher's builder-arg validation style (core.Builder.WithDirections).
func (r *Registry) Alloc(name Name, size int) (compute.Buffer, error) {
	if _, exists := r.buffers[name]; exists {
		panic("buffer: duplicate allocation of " + string(name))
	}

	buf, err := r.device.NewBuffer(size)
	if err != nil {
		return nil, ppcerr.Wrap(ppcerr.LibraryError, err, "allocating buffer %q (%d bytes)", name, size)
	}

	r.buffers[name] = buf
	r.order = append(r.order, name)
	return buf, nil
}

// Get returns a previously allocated buffer.
func (r *Registry) Get(name Name) (compute.Buffer, bool) {
	b, ok := r.buffers[name]
	return b, ok
}

// WithRead maps name for reading, calls fn with the host-visible bytes, and
// guarantees the unmap runs exactly once on every exit path (spec.md §4.D).
func (r *Registry) WithRead(name Name, fn func([]byte) error) (err error) {
	buf, ok := r.buffers[name]
	if !ok {
		return ppcerr.New(ppcerr.LibraryError, "no such buffer %q", name)
	}

	data, unmap, err := buf.MapRead()
	if err != nil {
		return ppcerr.Wrap(ppcerr.LibraryError, err, "mapping buffer %q for read", name)
	}
	defer func() {
		if uerr := unmap(); uerr != nil && err == nil {
			err = ppcerr.Wrap(ppcerr.LibraryError, uerr, "unmapping buffer %q", name)
		}
	}()

	err = fn(data)
	return err
}

// WithWrite maps name for writing, calls fn with the host-visible bytes,
// and guarantees the unmap runs exactly once on every exit path.
func (r *Registry) WithWrite(name Name, fn func([]byte) error) (err error) {
	buf, ok := r.buffers[name]
	if !ok {
		return ppcerr.New(ppcerr.LibraryError, "no such buffer %q", name)
	}

	data, unmap, err := buf.MapWrite()
	if err != nil {
		return ppcerr.Wrap(ppcerr.LibraryError, err, "mapping buffer %q for write", name)
	}
	defer func() {
		if uerr := unmap(); uerr != nil && err == nil {
			err = ppcerr.Wrap(ppcerr.LibraryError, uerr, "unmapping buffer %q", name)
		}
	}()

	err = fn(data)
	return err
}

// Release frees every allocated buffer in reverse allocation order
// (spec.md §4.D, §7). The first error encountered is returned after every
// buffer has been given a chance to release.
func (r *Registry) Release() error {
	var firstErr error
	for i := len(r.order) - 1; i >= 0; i-- {
		name := r.order[i]
		buf := r.buffers[name]
		if err := buf.Release(); err != nil && firstErr == nil {
			firstErr = ppcerr.Wrap(ppcerr.LibraryError, err, "releasing buffer %q", name)
		}
	}
	r.order = nil
	r.buffers = map[Name]compute.Buffer{}

	return firstErr
}
