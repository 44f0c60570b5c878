package sort

import (
	"fmt"
	"time"

	"github.com/sarchlab/predprey/compute"
	"github.com/sarchlab/predprey/ppcerr"
)

// simpleBitonic drives a standard bitonic sort network: one
// "bitonic_sort_step" kernel enqueue per (stage, pass) pair, for a total
// of sum_{k=2,4,...<=nPow2} log2(k) passes. The kernel body itself (the
// compare-exchange at a given stage/pass) is out of scope (spec.md §1);
// this variant owns only the host-side loop over stage/pass arguments.
type simpleBitonic struct {
	kernel    compute.Kernel
	hasKernel bool
	keys      compute.Buffer
	enqueues  int
}

func newSimpleBitonic() *simpleBitonic {
	return &simpleBitonic{}
}

func (s *simpleBitonic) CreateKernels(prog compute.Program) error {
	k, err := prog.CreateKernel("bitonic_sort_step")
	if err != nil {
		return ppcerr.Wrap(ppcerr.LibraryError, err, "creating bitonic_sort_step kernel")
	}
	s.kernel = k
	s.hasKernel = true
	return nil
}

func (s *simpleBitonic) SetArgs(keys compute.Buffer) error {
	s.keys = keys
	if !s.hasKernel {
		return errNoKernel
	}
	return s.kernel.SetArg(0, keys)
}

func (s *simpleBitonic) Free() error {
	s.hasKernel = false
	return nil
}

func (s *simpleBitonic) DriveIterations(queue compute.CommandQueue, n int, lws int, waitList []compute.Event) (compute.Event, error) {
	if !s.hasKernel {
		return nil, errNoKernel
	}

	nPow2 := nextPow2(n)
	global := []int{nPow2 / 2}
	local := []int{min(lws, nPow2/2)}
	if local[0] < 1 {
		local[0] = 1
	}

	var last compute.Event
	var err error
	wait := waitList
	s.enqueues = 0

	for k := 2; k <= nPow2; k <<= 1 {
		for j := k / 2; j > 0; j >>= 1 {
			if err = s.kernel.SetArg(1, int32(j)); err != nil {
				return nil, ppcerr.Wrap(ppcerr.LibraryError, err, "setting bitonic stage arg")
			}
			if err = s.kernel.SetArg(2, int32(k)); err != nil {
				return nil, ppcerr.Wrap(ppcerr.LibraryError, err, "setting bitonic pass arg")
			}
			last, err = queue.Enqueue(s.kernel, fmt.Sprintf("bitonic_sort_step[%d,%d]", k, j), global, local, wait)
			if err != nil {
				return nil, ppcerr.Wrap(ppcerr.LibraryError, err, "enqueuing bitonic_sort_step")
			}
			wait = []compute.Event{last}
			s.enqueues++
		}
	}

	if last == nil {
		// n <= 1: already sorted, nothing to enqueue.
		return noOpEvent{}, nil
	}

	return last, nil
}

func (s *simpleBitonic) ReportProfile() []string {
	names := make([]string, s.enqueues)
	for i := range names {
		names[i] = "bitonic_sort_step"
	}
	return names
}

// noOpEvent satisfies compute.Event for the degenerate n <= 1 case, where
// the sort network enqueues nothing.
type noOpEvent struct{}

func (noOpEvent) Wait() error { return nil }
func (noOpEvent) Profile() (time.Time, time.Time, bool) {
	return time.Time{}, time.Time{}, false
}

func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
