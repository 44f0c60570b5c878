// Package profiler implements ProfilerShim (spec.md §4.J): optional
// per-kernel timing aggregation with overlap-adjusted wall time, plus
// host resource samples taken on each SampleHost call. A no-op variant is selected at
// construction so that a disabled profiler skips event bookkeeping
// entirely (spec.md §9's "no-op variant selected at construction" note),
// the way config.DeviceBuilder only registers a component with its
// monitor if one was actually supplied.
package profiler

import (
	"sort"
	"time"

	"github.com/sarchlab/akita/v4/monitoring"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Sample is one host resource reading, taken by SampleHost while enabled.
// Neither driver calls SampleHost.
type Sample struct {
	Tick       int
	CPUPercent float64
	MemUsedPct float64
}

// span is a single named kernel enqueue's start/end, as reported by
// compute.Event.Profile.
type span struct {
	name       string
	start, end time.Time
}

// Totals is one kernel name's aggregated timing.
type Totals struct {
	Name          string
	Count         int
	WallClock     time.Duration // overlap-adjusted: concurrent spans count once
	SumDuration   time.Duration // naive sum, includes double-counted overlap
}

// Shim is the profiler. The zero value is a working no-op shim: Enabled
// reports false and every Record call is a no-op, matching spec.md §4.J's
// "disabled mode skips event creation entirely".
type Shim struct {
	enabled bool
	spans   []span
	samples []Sample
	runID   string
}

// New constructs a Shim. enabled=false returns a no-op shim.
func New(enabled bool, runID string) *Shim {
	return &Shim{enabled: enabled, runID: runID}
}

// Enabled reports whether this shim records anything.
func (s *Shim) Enabled() bool {
	return s != nil && s.enabled
}

// RegisterComponent attaches a component to an akita monitor, if one is
// configured; a nil monitor is a no-op (spec.md §4.J profiling is purely
// additive, never required for correctness).
func (s *Shim) RegisterComponent(monitor *monitoring.Monitor, c sim.Component) {
	if monitor == nil {
		return
	}
	monitor.RegisterComponent(c)
}

// Record appends one kernel enqueue's timing. A no-op when disabled.
func (s *Shim) Record(name string, start, end time.Time) {
	if !s.Enabled() {
		return
	}
	s.spans = append(s.spans, span{name: name, start: start, end: end})
}

// SampleHost takes one host CPU/memory reading, tagged with the current
// tick number. A no-op when disabled.
func (s *Shim) SampleHost(tick int) error {
	if !s.Enabled() {
		return nil
	}

	percents, err := cpu.Percent(0, false)
	var cpuPct float64
	if err == nil && len(percents) > 0 {
		cpuPct = percents[0]
	}

	var memPct float64
	if vm, err := mem.VirtualMemory(); err == nil {
		memPct = vm.UsedPercent
	}

	s.samples = append(s.samples, Sample{Tick: tick, CPUPercent: cpuPct, MemUsedPct: memPct})
	return nil
}

// Samples returns every host resource sample taken so far.
func (s *Shim) Samples() []Sample {
	return s.samples
}

// RunID returns the run identifier the shim was constructed with (the
// CLI's xid.New() tag).
func (s *Shim) RunID() string {
	return s.runID
}

// Report aggregates every recorded span into per-kernel-name totals, with
// wall-clock time adjusted to not double-count overlapping spans (spec.md
// §4.J: "pairs concurrent START/END timestamps to subtract double-counted
// spans").
func (s *Shim) Report() []Totals {
	if !s.Enabled() || len(s.spans) == 0 {
		return nil
	}

	byName := map[string][]span{}
	for _, sp := range s.spans {
		byName[sp.name] = append(byName[sp.name], sp)
	}

	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	sort.Strings(names)

	totals := make([]Totals, 0, len(names))
	for _, name := range names {
		spans := byName[name]
		var sum time.Duration
		for _, sp := range spans {
			sum += sp.end.Sub(sp.start)
		}
		totals = append(totals, Totals{
			Name:        name,
			Count:       len(spans),
			WallClock:   overlapAdjusted(spans),
			SumDuration: sum,
		})
	}

	return totals
}

// overlapAdjusted merges a kernel's spans into disjoint intervals and
// sums their lengths, so two spans that ran concurrently (as they can on
// the GPU driver's two command queues, spec.md §5) are not counted twice.
func overlapAdjusted(spans []span) time.Duration {
	if len(spans) == 0 {
		return 0
	}

	sorted := make([]span, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].start.Before(sorted[j].start) })

	var total time.Duration
	curStart, curEnd := sorted[0].start, sorted[0].end
	for _, sp := range sorted[1:] {
		if sp.start.After(curEnd) {
			total += curEnd.Sub(curStart)
			curStart, curEnd = sp.start, sp.end
			continue
		}
		if sp.end.After(curEnd) {
			curEnd = sp.end
		}
	}
	total += curEnd.Sub(curStart)

	return total
}
