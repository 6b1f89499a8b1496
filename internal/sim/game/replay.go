package game

import (
	"context"
	"errors"
	"fmt"

	"swarmcore.ai/internal/netadapter"
	tlog "swarmcore.ai/internal/persistence/log"
	"swarmcore.ai/internal/persistence/snapshot"
)

// DigestMismatch reports the first tick whose replayed state differs from
// the recorded one.
type DigestMismatch struct {
	Tick uint64
	Got  string
	Want string
}

func (e *DigestMismatch) Error() string {
	return fmt.Sprintf("digest mismatch at tick %d: got=%s want=%s", e.Tick, e.Got, e.Want)
}

type ReplayResult struct {
	From    uint64
	Last    uint64
	Checked int
}

// TickScanner feeds recorded ticks in order, e.g. tlog.ScanTicks bound to a
// run directory.
type TickScanner func(fn func(tlog.TickEntry) error) error

var errReplayDone = errors.New("replay done")

// Replay rebuilds a game from start (or an empty world when start is nil),
// re-executes every recorded tick from there through to (0 means no limit)
// and compares state digests. Entries before the start tick are skipped.
//
// Commands in the log carry the recorded identifiers, so the snapshot must
// restore onto the same identifiers; a fresh process guarantees that for
// snapshots taken from a world that never destroyed an entity.
func Replay(ctx context.Context, opts Options, start *snapshot.GameSnapshot, scan TickScanner, to uint64) (ReplayResult, error) {
	adapter := netadapter.NewSync()
	opts.Adapter = adapter
	opts.TickSinks = nil
	opts.OnSnapshot = nil
	opts.Present = nil

	g, err := New(opts)
	if err != nil {
		return ReplayResult{}, err
	}
	if err := g.Start(ctx); err != nil {
		return ReplayResult{}, err
	}
	defer g.Close()

	if start != nil {
		remap, err := g.Restore(*start)
		if err != nil {
			return ReplayResult{}, err
		}
		for i, old := range remap.OldIDs {
			if remap.NewIDs[i] != old {
				return ReplayResult{}, fmt.Errorf("replay: entity %d restored as %d; recorded commands would target the wrong entity", old, remap.NewIDs[i])
			}
		}
	}

	res := ReplayResult{From: g.CurrentTick()}
	err = scan(func(e tlog.TickEntry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		cur := g.CurrentTick()
		if e.Tick < cur {
			return nil
		}
		if to != 0 && e.Tick > to {
			return errReplayDone
		}
		if e.Tick != cur {
			return fmt.Errorf("replay: tick log jumps from %d to %d", cur, e.Tick)
		}
		if err := adapter.SendInput(e.Tick, e.Commands); err != nil {
			return err
		}
		ok, err := g.Update()
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("replay: tick %d did not execute", e.Tick)
		}
		if got := g.Bridge.StateDigest(); got != e.Digest {
			return &DigestMismatch{Tick: e.Tick, Got: got, Want: e.Digest}
		}
		res.Last = e.Tick
		res.Checked++
		return nil
	})
	if errors.Is(err, errReplayDone) {
		err = nil
	}
	return res, err
}
