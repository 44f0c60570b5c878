// Package sort implements the pluggable agent-compaction sub-driver
// (spec.md §4.H): a bitonic sort over the agent array's packed keys, so
// that dead-sentinel-keyed records collect at the top and live agents
// group by (x,y).
//
// The capability set — create kernels, set arguments, free, drive
// iterations, report profile — is modeled as a Driver interface with
// variants registered by name in a static table, the way spec.md §9
// directs ("Polymorphism via function-pointer tables... model as a
// trait/interface... variants registered in a static table keyed by
// name").
package sort

import (
	"fmt"

	"github.com/sarchlab/predprey/compute"
	"github.com/sarchlab/predprey/ppcerr"
)

// Driver is the capability set every sort variant implements.
type Driver interface {
	// CreateKernels resolves the kernels this variant needs from prog.
	CreateKernels(prog compute.Program) error

	// SetArgs binds the fixed kernel arguments (the agent-key buffer and
	// any scratch buffers the variant needs).
	SetArgs(keys compute.Buffer) error

	// Free releases any kernel/program handles the variant created.
	Free() error

	// DriveIterations enqueues every pass needed to fully sort n elements,
	// returning the final pass's event.
	DriveIterations(queue compute.CommandQueue, n int, lws int, waitList []compute.Event) (compute.Event, error)

	// ReportProfile returns one label per kernel enqueued, for
	// ProfilerShim to aggregate (spec.md §4.J).
	ReportProfile() []string
}

// Builder constructs a named Driver variant (spec.md §6 --a-sort,
// --a-sort-opts).
type Builder func(opts string) Driver

var registry = map[string]Builder{}

// Register adds a variant constructor to the static table. Called from
// each variant's init().
func Register(name string, b Builder) {
	registry[name] = b
}

// New looks up and constructs the named variant.
func New(name string, opts string) (Driver, error) {
	b, ok := registry[name]
	if !ok {
		return nil, ppcerr.New(ppcerr.InvalidArgs, "unknown sort variant %q", name)
	}
	return b(opts), nil
}

// Names lists the registered variant names, for --help-style listings.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	return names
}

func init() {
	Register("simple-bitonic", func(opts string) Driver {
		return newSimpleBitonic()
	})
	Register("stage-optimised-bitonic", func(opts string) Driver {
		return newStageOptimisedBitonic()
	})
}

var errNoKernel = fmt.Errorf("sort: kernel not created, call CreateKernels first")
