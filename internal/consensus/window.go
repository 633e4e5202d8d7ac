// Package consensus detects agreement between independent strategies: a run
// of consecutive same-direction signals, each from a distinct strategy,
// inside a rolling time window.
package consensus

import (
	"consensus-trading-bot/internal/database"
)

// Consensus is a detected agreement window: the run of signals, in
// chronological order, that completed it.
type Consensus struct {
	Direction string
	Signals   []*database.Signal
}

// Scan walks signals in chronological order and returns the first completed
// consensus run, or nil.
//
// A run is a sequence of consecutive signals sharing one side. A signal of
// the opposite side ends the run and starts a new run of its own; a hold
// signal ends the run without starting one. Each time a run reaches
// runLength, its trailing runLength signals are checked for runLength
// distinct strategies; the first distinct window wins and scanning stops. A
// repeated strategy inside the window does not reset the run, it just means
// that window is not yet distinct; later signals slide the window forward and
// can still complete it.
//
// Callers feed Scan only signals not yet consumed by a group, so one run
// produces exactly one consensus.
func Scan(signals []*database.Signal, runLength int) *Consensus {
	if runLength <= 0 || len(signals) < runLength {
		return nil
	}

	var run []*database.Signal
	var side string

	for _, s := range signals {
		switch s.Side {
		case database.SideHold:
			run, side = nil, ""
			continue
		case side:
			run = append(run, s)
		default:
			run, side = []*database.Signal{s}, s.Side
		}

		if len(run) < runLength {
			continue
		}
		window := run[len(run)-runLength:]
		if distinctStrategies(window) == runLength {
			out := make([]*database.Signal, runLength)
			copy(out, window)
			return &Consensus{Direction: side, Signals: out}
		}
	}
	return nil
}

func distinctStrategies(signals []*database.Signal) int {
	seen := make(map[string]struct{}, len(signals))
	for _, s := range signals {
		seen[s.Strategy] = struct{}{}
	}
	return len(seen)
}
