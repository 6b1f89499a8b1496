package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"swarmcore.ai/internal/logging"
	"swarmcore.ai/internal/netadapter"
	"swarmcore.ai/internal/persistence/indexdb"
	tlog "swarmcore.ai/internal/persistence/log"
	"swarmcore.ai/internal/persistence/snapshot"
	"swarmcore.ai/internal/sim/game"
	"swarmcore.ai/internal/sim/tuning"
)

func main() {
	var (
		netKind    = flag.String("net", "sync", "network adapter: sync|local|remote")
		relayURL   = flag.String("url", "ws://127.0.0.1:8080/v1/ws", "relay websocket url (remote only)")
		clientName = flag.String("name", "", "client name sent to the relay (default: random)")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		runID      = flag.String("run", "", "run id (default: random)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite tick/snapshot index")

		ticks   = flag.Uint64("ticks", 0, "stop after this many ticks (0: until interrupted)")
		player  = flag.Int("player", 0, "player index this client commands")
		players = flag.Int("players", 2, "players in the shared roster")
		units   = flag.String("units", "soldier:4,worker:2", "per-player roster, kind:count[,kind:count]")
		orders  = flag.Uint64("order_every", 40, "ticks between patrol orders (0: no orders)")
		flow    = flag.Bool("flow", false, "patrol with flow-field steering")

		snapPath   = flag.String("snapshot", "", "snapshot to resume from (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", false, "resume from the newest indexed snapshot of -run")
	)
	logCfg := logging.BindFlags(flag.CommandLine)
	flag.Parse()

	logger, err := logging.New("sim", *logCfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging:", err)
		os.Exit(2)
	}
	defer logger.Sync()

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatal("load tuning", zap.String("path", tp), zap.Error(err))
		}
		logger.Warn("tuning not found; using defaults", zap.String("path", tp))
		tune = tuning.Defaults()
	}
	roster, err := parseRoster(*units)
	if err != nil {
		logger.Fatal("roster", zap.Error(err))
	}

	id := strings.TrimSpace(*runID)
	if id == "" {
		id = uuid.NewString()
	}
	runDir := filepath.Join(*dataDir, "runs", id)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		logger.Fatal("data dir", zap.Error(err))
	}
	logger = logger.With(zap.String("run", id))

	ctx, cancel := signalContext()
	defer cancel()

	var (
		idx      *indexdb.SQLiteIndex
		idxPath  = filepath.Join(runDir, "index", "run.sqlite")
		resumeAt *snapshot.GameSnapshot
	)
	if p := strings.TrimSpace(*snapPath); p != "" || *loadLatest {
		if p == "" {
			rec, err := indexdb.LatestSnapshot(ctx, idxPath, ^uint64(0))
			if err != nil {
				logger.Fatal("find latest snapshot", zap.Error(err))
			}
			p = rec.Path
		}
		snap, err := snapshot.ReadSnapshot(p)
		if err != nil {
			logger.Fatal("read snapshot", zap.String("path", p), zap.Error(err))
		}
		resumeAt = &snap
	}
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(idxPath)
		if err != nil {
			logger.Fatal("open index", zap.Error(err))
		}
		defer idx.Close()
		if err := idx.UpsertTuning(tune); err != nil {
			logger.Warn("index: upsert tuning", zap.Error(err))
		}
	}

	var adapter netadapter.Adapter
	switch *netKind {
	case "sync":
		adapter = netadapter.NewSync()
	case "local":
		adapter = netadapter.NewLocal(netadapter.LocalConfig{
			TickInterval: time.Second / time.Duration(tune.TickRateHz),
			Latency:      time.Duration(tune.LatencyMs) * time.Millisecond,
		})
	case "remote":
		if resumeAt != nil {
			logger.Fatal("resuming from a snapshot is not supported against a remote relay")
		}
		name := strings.TrimSpace(*clientName)
		if name == "" {
			name = "sim-" + id
			if len(name) > 12 {
				name = name[:12]
			}
		}
		adapter = netadapter.NewRemote(netadapter.RemoteConfig{URL: *relayURL, ClientName: name}, logger)
	default:
		logger.Fatal("unknown -net", zap.String("net", *netKind))
	}

	tickLog := tlog.NewTickLogger(runDir)
	defer tickLog.Close()
	sinks := []game.TickSink{tickLog}
	if idx != nil {
		sinks = append(sinks, idx)
	}

	snapCh := make(chan snapshot.GameSnapshot, 2)
	snapDone := make(chan struct{})
	go func() {
		defer close(snapDone)
		for snap := range snapCh {
			writeSnapshot(runDir, snap, idx, logger)
		}
	}()

	stopper := &stopAfter{limit: *ticks, cancel: cancel}
	var drive func()
	g, err := game.New(game.Options{
		Tuning:     tune,
		Adapter:    adapter,
		Logger:     logger,
		Registerer: prometheus.NewRegistry(),
		TickSinks:  append(sinks, stopper),
		OnSnapshot: func(s snapshot.GameSnapshot) {
			select {
			case snapCh <- s:
			default:
				logger.Warn("snapshot writer busy; dropped", zap.Uint64("tick", s.Header.Tick))
			}
		},
		Present: func(float64) error {
			if drive != nil {
				drive()
			}
			return nil
		},
	})
	if err != nil {
		logger.Fatal("game", zap.Error(err))
	}
	if err := g.Start(ctx); err != nil {
		logger.Fatal("start", zap.Error(err))
	}

	w, h := float64(tune.FlowField.Width), float64(tune.FlowField.Height)
	var mine *patrol
	if resumeAt != nil {
		if _, err := g.Restore(*resumeAt); err != nil {
			logger.Fatal("restore", zap.Error(err))
		}
		mine = newPatrol(g.OwnedBy(*player), *orders, w, h, *flow)
		logger.Info("resumed", zap.Uint64("tick", g.CurrentTick()), zap.Int("entities", g.Store.Len()))
	} else {
		owned, err := spawnRoster(g, roster, *players, w, h)
		if err != nil {
			logger.Fatal("spawn roster", zap.Error(err))
		}
		mine = newPatrol(owned[*player], *orders, w, h, *flow)
		// Replays start from this snapshot; spawns are not in the tick log.
		initial, err := g.Snapshots.CreateSnapshot()
		if err != nil {
			logger.Fatal("initial snapshot", zap.Error(err))
		}
		snapCh <- initial
	}
	stopper.from = g.CurrentTick()

	drive = func() {
		for _, cmd := range mine.orders(g.CurrentTick()) {
			if err := g.Command(cmd); err != nil {
				logger.Warn("order rejected", zap.Error(err))
			}
		}
	}

	logger.Info("running",
		zap.String("net", *netKind),
		zap.Int("player", *player),
		zap.Int("entities", g.Store.Len()),
		zap.Uint64("ticks", *ticks),
	)

	var runErr error
	if *netKind == "sync" {
		runErr = runBatch(ctx, g, drive)
	} else {
		runErr = g.Run(ctx)
	}
	_ = g.Close()
	close(snapCh)
	<-snapDone

	logger.Info("stopped",
		zap.Uint64("tick", g.CurrentTick()),
		zap.String("digest", g.Bridge.StateDigest()),
		zap.Uint64("starved_frames", g.Scheduler.Starved()),
	)
	if runErr != nil {
		logger.Fatal("run", zap.Error(runErr))
	}
}

// runBatch steps as fast as possible. The sync adapter never starves.
func runBatch(ctx context.Context, g *game.Game, drive func()) error {
	for ctx.Err() == nil {
		drive()
		if _, err := g.Update(); err != nil {
			return err
		}
	}
	return nil
}

func writeSnapshot(runDir string, snap snapshot.GameSnapshot, idx *indexdb.SQLiteIndex, logger *zap.Logger) {
	path := filepath.Join(runDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		logger.Error("snapshot write", zap.Uint64("tick", snap.Header.Tick), zap.Error(err))
		return
	}
	if idx != nil {
		idx.RecordSnapshot(path, snap)
	}
	logger.Debug("snapshot written", zap.String("path", path))
}

// stopAfter cancels the run once limit ticks past from have executed.
type stopAfter struct {
	limit  uint64
	from   uint64
	cancel context.CancelFunc
}

func (s *stopAfter) WriteTick(e tlog.TickEntry) error {
	if s.limit != 0 && e.Tick+1 >= s.from+s.limit {
		s.cancel()
	}
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
