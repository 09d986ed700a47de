// Package tracelog defines the leveled logging contract the sparse-trie
// task reports phase transitions through, mirroring the
// teacher's own Logger interface (Trace/Debug gated by IsTrace/IsDebug)
// rather than calling a concrete logging package directly.
package tracelog

import gethlog "github.com/ethereum/go-ethereum/log"

// Logger is a minimal leveled-logging contract: Trace/Debug accept a
// message plus alternating key/value context pairs, and the IsTrace/
// IsDebug guards let a caller skip building expensive context when the
// level is disabled.
type Logger interface {
	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	IsTrace() bool
	IsDebug() bool
}

// Geth is a Logger backed by github.com/ethereum/go-ethereum/log.
type Geth struct{}

func (Geth) Trace(msg string, ctx ...interface{}) { gethlog.Trace(msg, ctx...) }
func (Geth) Debug(msg string, ctx ...interface{}) { gethlog.Debug(msg, ctx...) }

// IsTrace and IsDebug are conservative always-on guards: the underlying
// go-ethereum/log handler does its own level filtering, so these exist
// only to let a caller skip building expensive context, same as the
// teacher's FakeLogger.IsTrace/IsDebug pair.
func (Geth) IsTrace() bool { return true }
func (Geth) IsDebug() bool { return true }

// Noop discards every call; the zero value is ready to use and is the
// default Logger when a caller doesn't wire one in.
type Noop struct{}

func (Noop) Trace(string, ...interface{}) {}
func (Noop) Debug(string, ...interface{}) {}
func (Noop) IsTrace() bool                { return false }
func (Noop) IsDebug() bool                { return false }
