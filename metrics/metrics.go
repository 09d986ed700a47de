// Package metrics defines the write-only sink the sparse-trie task reports
// batch timings to, plus a github.com/ethereum/go-ethereum/metrics-backed
// implementation, grounded on the corpus's metrics.GetOrRegisterTimer
// convention (e.g. erigon's trie/subtrieloader timer registration).
package metrics

import (
	"time"

	gethmetrics "github.com/ethereum/go-ethereum/metrics"
)

// Sink receives batch timing observations from a sparse-trie task.
// Implementations must tolerate concurrent calls.
type Sink interface {
	// UpdateDuration records how long one coalesced batch took to fold
	// into the trie.
	UpdateDuration(d time.Duration)
	// FinalUpdateDuration records how long the terminal root_with_updates
	// call took once the update channel closed.
	FinalUpdateDuration(d time.Duration)
	// TotalDuration records the task's entire run, from the start of Run
	// (before the first receive) to returning its Outcome.
	TotalDuration(d time.Duration)
}

const (
	updateDurationName      = "sparse_trie_update_duration"
	finalUpdateDurationName = "sparse_trie_final_update_duration"
	totalDurationName       = "sparse_trie_total_duration"
)

// Geth is a Sink backed by github.com/ethereum/go-ethereum/metrics timers,
// registered lazily against the default registry the first time Geth is
// constructed in a process (matching GetOrRegisterTimer's idempotent
// registration).
type Geth struct {
	update      gethmetrics.Timer
	finalUpdate gethmetrics.Timer
	total       gethmetrics.Timer
}

// NewGeth returns a Sink that reports to the named go-ethereum metrics
// timers, registering them against the default registry if this is the
// first instance constructed.
func NewGeth() *Geth {
	return &Geth{
		update:      gethmetrics.GetOrRegisterTimer(updateDurationName, nil),
		finalUpdate: gethmetrics.GetOrRegisterTimer(finalUpdateDurationName, nil),
		total:       gethmetrics.GetOrRegisterTimer(totalDurationName, nil),
	}
}

func (g *Geth) UpdateDuration(d time.Duration)      { g.update.Update(d) }
func (g *Geth) FinalUpdateDuration(d time.Duration) { g.finalUpdate.Update(d) }
func (g *Geth) TotalDuration(d time.Duration)        { g.total.Update(d) }

// Noop discards every observation; the zero value is ready to use and is
// the default Sink when a caller doesn't wire in a Geth sink.
type Noop struct{}

func (Noop) UpdateDuration(time.Duration)      {}
func (Noop) FinalUpdateDuration(time.Duration) {}
func (Noop) TotalDuration(time.Duration)        {}
