package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"swarmcore.ai/internal/persistence/indexdb"
	tlog "swarmcore.ai/internal/persistence/log"
	"swarmcore.ai/internal/persistence/snapshot"
	"swarmcore.ai/internal/sim/game"
	"swarmcore.ai/internal/sim/tuning"
)

func main() {
	var (
		runDir     = flag.String("run", "", "run directory containing ticks/ (and index/run.sqlite)")
		snapPath   = flag.String("snapshot", "", "path to .snap.zst (default: newest indexed snapshot at or before -from_tick)")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "tuning the run was recorded with")
		fromTick   = flag.Uint64("from_tick", 0, "start from the newest snapshot at or before this tick")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	if *runDir == "" {
		fmt.Fprintln(os.Stderr, "missing -run")
		os.Exit(2)
	}

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		tune = tuning.Defaults()
	}

	ctx := context.Background()
	path := strings.TrimSpace(*snapPath)
	if path == "" {
		rec, err := indexdb.LatestSnapshot(ctx, filepath.Join(*runDir, "index", "run.sqlite"), *fromTick)
		if err != nil {
			fmt.Fprintln(os.Stderr, "find snapshot:", err)
			os.Exit(1)
		}
		path = rec.Path
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("snapshot v%d tick=%d entities=%d engine_bytes=%d\n",
		snap.Header.Version, snap.Header.Tick, len(snap.Entities), len(snap.EngineBlob))

	scan := func(fn func(tlog.TickEntry) error) error { return tlog.ScanTicks(*runDir, fn) }
	res, err := game.Replay(ctx, game.Options{Tuning: tune}, &snap, scan, *toTick)
	if err != nil {
		var mm *game.DigestMismatch
		if errors.As(err, &mm) {
			fmt.Fprintf(os.Stderr, "replay diverged at tick %d\n  recorded %s\n  replayed %s\n", mm.Tick, mm.Want, mm.Got)
		} else {
			fmt.Fprintln(os.Stderr, "replay:", err)
		}
		os.Exit(1)
	}
	if res.Checked == 0 {
		fmt.Fprintln(os.Stderr, "no ticks after snapshot tick", snap.Header.Tick)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d ticks (%d..%d)\n", res.Checked, res.From, res.Last)
}
