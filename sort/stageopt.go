package sort

import (
	"fmt"

	"github.com/sarchlab/predprey/compute"
	"github.com/sarchlab/predprey/ppcerr"
)

// stageOptimisedBitonic drives the same bitonic network as simpleBitonic
// but fuses every pass within a stage whose half-span fits in one
// workgroup's local memory into a single "bitonic_sort_local" kernel
// enqueue, cutting the number of enqueues for stage k from log2(k) to
// max(1, log2(k/lws)) (spec.md §9: the kernel
// body choice between "one pass per enqueue" and "local-memory-staged
// passes" is a performance variant of the same network, not a different
// algorithm).
type stageOptimisedBitonic struct {
	fullKernel  compute.Kernel
	hasFull     bool
	localKernel compute.Kernel
	hasLocal    bool
	keys        compute.Buffer
	enqueued    []string
}

func newStageOptimisedBitonic() *stageOptimisedBitonic {
	return &stageOptimisedBitonic{}
}

func (s *stageOptimisedBitonic) CreateKernels(prog compute.Program) error {
	full, err := prog.CreateKernel("bitonic_sort_step")
	if err != nil {
		return ppcerr.Wrap(ppcerr.LibraryError, err, "creating bitonic_sort_step kernel")
	}
	s.fullKernel = full
	s.hasFull = true

	local, err := prog.CreateKernel("bitonic_sort_local")
	if err != nil {
		return ppcerr.Wrap(ppcerr.LibraryError, err, "creating bitonic_sort_local kernel")
	}
	s.localKernel = local
	s.hasLocal = true

	return nil
}

func (s *stageOptimisedBitonic) SetArgs(keys compute.Buffer) error {
	s.keys = keys
	if !s.hasFull || !s.hasLocal {
		return errNoKernel
	}
	if err := s.fullKernel.SetArg(0, keys); err != nil {
		return err
	}
	return s.localKernel.SetArg(0, keys)
}

func (s *stageOptimisedBitonic) Free() error {
	s.hasFull = false
	s.hasLocal = false
	return nil
}

// DriveIterations walks the same (k, j) pass sequence as simpleBitonic,
// but whenever the remaining passes for a stage k all have j <= lws they
// are issued as one bitonic_sort_local enqueue instead of one enqueue per
// j. Passes with j > lws still require a global barrier between them and
// fall back to bitonic_sort_step.
func (s *stageOptimisedBitonic) DriveIterations(queue compute.CommandQueue, n int, lws int, waitList []compute.Event) (compute.Event, error) {
	if !s.hasFull || !s.hasLocal {
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
	s.enqueued = nil

	for k := 2; k <= nPow2; k <<= 1 {
		j := k / 2
		for j > lws {
			last, err = s.enqueueStep(queue, k, j, global, local, wait)
			if err != nil {
				return nil, err
			}
			wait = []compute.Event{last}
			j >>= 1
		}
		if j > 0 {
			last, err = s.enqueueLocalStage(queue, k, j, global, local, wait)
			if err != nil {
				return nil, err
			}
			wait = []compute.Event{last}
		}
	}

	if last == nil {
		return noOpEvent{}, nil
	}
	return last, nil
}

func (s *stageOptimisedBitonic) enqueueStep(queue compute.CommandQueue, k, j int, global, local []int, wait []compute.Event) (compute.Event, error) {
	if err := s.fullKernel.SetArg(1, int32(j)); err != nil {
		return nil, ppcerr.Wrap(ppcerr.LibraryError, err, "setting bitonic stage arg")
	}
	if err := s.fullKernel.SetArg(2, int32(k)); err != nil {
		return nil, ppcerr.Wrap(ppcerr.LibraryError, err, "setting bitonic pass arg")
	}
	ev, err := queue.Enqueue(s.fullKernel, fmt.Sprintf("bitonic_sort_step[%d,%d]", k, j), global, local, wait)
	if err != nil {
		return nil, ppcerr.Wrap(ppcerr.LibraryError, err, "enqueuing bitonic_sort_step")
	}
	s.enqueued = append(s.enqueued, "bitonic_sort_step")
	return ev, nil
}

// enqueueLocalStage runs every remaining pass of stage k (j down to 1) in
// one kernel, the compare-exchanges staying within a single workgroup's
// local memory for the rest of the stage.
func (s *stageOptimisedBitonic) enqueueLocalStage(queue compute.CommandQueue, k, j int, global, local []int, wait []compute.Event) (compute.Event, error) {
	if err := s.localKernel.SetArg(1, int32(j)); err != nil {
		return nil, ppcerr.Wrap(ppcerr.LibraryError, err, "setting bitonic local stage start arg")
	}
	if err := s.localKernel.SetArg(2, int32(k)); err != nil {
		return nil, ppcerr.Wrap(ppcerr.LibraryError, err, "setting bitonic local pass arg")
	}
	ev, err := queue.Enqueue(s.localKernel, fmt.Sprintf("bitonic_sort_local[%d,%d..1]", k, j), global, local, wait)
	if err != nil {
		return nil, ppcerr.Wrap(ppcerr.LibraryError, err, "enqueuing bitonic_sort_local")
	}
	s.enqueued = append(s.enqueued, "bitonic_sort_local")
	return ev, nil
}

func (s *stageOptimisedBitonic) ReportProfile() []string {
	return s.enqueued
}
