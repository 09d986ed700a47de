// Package sparsetrie implements the streaming consumer that folds a
// channel of hashed state updates into a sparse Merkle-Patricia trie and
// produces a final state root, update journal, and reusable account-trie
// shell. The blocking-receive-then-nonblocking-drain coalescing loop is
// the throughput lever the rest of the module exists to support.
package sparsetrie

import (
	"context"
	"runtime"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/go-state-trie/sparsetrie/applier"
	"github.com/go-state-trie/sparsetrie/blinded"
	"github.com/go-state-trie/sparsetrie/hashedstate"
	"github.com/go-state-trie/sparsetrie/metrics"
	"github.com/go-state-trie/sparsetrie/sparseerr"
	"github.com/go-state-trie/sparsetrie/statetrie"
	"github.com/go-state-trie/sparsetrie/tracelog"
	"github.com/go-state-trie/sparsetrie/updates"
)

// IncrementalLevel is the nibble depth below which the applier
// opportunistically hashes dirty subtries during the streaming phase,
// fixed as part of this engine's external contract (spec constant
// SPARSE_TRIE_INCREMENTAL_LEVEL).
const IncrementalLevel = 2

// Config configures a Task's worker pool, metrics sink, and logger.
type Config struct {
	// Workers bounds the applier's parallel storage-root phase. Zero
	// means runtime.GOMAXPROCS(0).
	Workers int
	// Metrics receives batch timing observations. A nil Metrics is
	// replaced with metrics.Noop{}.
	Metrics metrics.Sink
	// Logger receives phase-transition tracing. A nil Logger is replaced
	// with tracelog.Noop{}.
	Logger tracelog.Logger
}

func (c Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (c Config) sink() metrics.Sink {
	if c.Metrics != nil {
		return c.Metrics
	}
	return metrics.Noop{}
}

func (c Config) logger() tracelog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return tracelog.Noop{}
}

// Outcome is what a Task returns once its update channel closes.
type Outcome struct {
	StateRoot        common.Hash
	TrieUpdates      *updates.TrieUpdates
	AccountTrieShell *statetrie.Shell
}

// Task owns one state sparse trie and the receive end of an update
// channel. It is a field on the caller's struct, not a local variable, so
// that dropping it (letting it go out of scope after Run returns) releases
// the trie's node store off the critical path.
type Task struct {
	trie    *statetrie.Trie
	updates <-chan hashedstate.Update
	factory blinded.ProviderFactory
	cfg     Config
}

// NewTask returns a Task that folds updates received from ch into a fresh
// state trie (or one seeded from shell, if non-nil), resolving blinded
// subtrees via factory.
func NewTask(ch <-chan hashedstate.Update, factory blinded.ProviderFactory, shell *statetrie.Shell, cfg Config) *Task {
	trie := statetrie.New(factory)
	if shell != nil {
		trie = statetrie.FromShell(shell, factory)
	}
	return &Task{trie: trie, updates: ch, factory: factory, cfg: cfg}
}

// Run blocks for updates until the channel closes, applying each
// (possibly coalesced) batch in turn, then finalizes and returns the
// outcome. On the first applier error, Run stops immediately and returns a
// *sparseerr.StateRootError with no partial result.
func (t *Task) Run(ctx context.Context) (*Outcome, error) {
	start := time.Now()
	workers := t.cfg.workers()
	sink := t.cfg.sink()
	logger := t.cfg.logger()

	for {
		update, ok := <-t.updates
		if !ok {
			logger.Debug("sparse trie channel closed with no pending update")
			return t.finalize(sink, logger, start)
		}
		coalesced := 1

		for {
			select {
			case next, ok := <-t.updates:
				if !ok {
					logger.Trace("coalesced final batch before channel close", "updates", coalesced)
					if err := t.apply(ctx, update, workers, sink, logger); err != nil {
						return nil, err
					}
					return t.finalize(sink, logger, start)
				}
				update.Extend(next)
				coalesced++
				continue
			default:
			}
			break
		}

		logger.Trace("applying coalesced batch", "updates", coalesced)
		if err := t.apply(ctx, update, workers, sink, logger); err != nil {
			return nil, err
		}
	}
}

func (t *Task) apply(ctx context.Context, update hashedstate.Update, workers int, sink metrics.Sink, logger tracelog.Logger) error {
	d, err := applier.Apply(ctx, t.trie, update, t.factory, workers)
	sink.UpdateDuration(d)
	if err != nil {
		logger.Debug("batch apply failed", "err", err)
		return sparseerr.WrapStateRootError(err)
	}
	logger.Trace("batch applied", "duration", d)
	return nil
}

func (t *Task) finalize(sink metrics.Sink, logger tracelog.Logger, start time.Time) (*Outcome, error) {
	finalStart := time.Now()
	root, trieUpdates, err := t.trie.RootWithUpdates()
	sink.FinalUpdateDuration(time.Since(finalStart))
	if err != nil {
		logger.Debug("final root computation failed", "err", err)
		return nil, sparseerr.WrapStateRootError(err)
	}

	shell := t.trie.TakeClearedAccountTrieState()
	sink.TotalDuration(time.Since(start))
	logger.Debug("sparse trie task finalized", "root", root, "total", time.Since(start))

	return &Outcome{
		StateRoot:        root,
		TrieUpdates:      trieUpdates,
		AccountTrieShell: shell,
	}, nil
}
