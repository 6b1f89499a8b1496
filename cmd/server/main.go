package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"swarmcore.ai/internal/logging"
	"swarmcore.ai/internal/persistence/indexdb"
	tlog "swarmcore.ai/internal/persistence/log"
	"swarmcore.ai/internal/sim/tuning"
	"swarmcore.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		relayID    = flag.String("relay", "relay_1", "relay id (names the data subdirectory)")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite session index")
	)
	logCfg := logging.BindFlags(flag.CommandLine)
	flag.Parse()

	logger, err := logging.New("server", *logCfg)
	if err != nil {
		os.Stderr.WriteString("logging: " + err.Error() + "\n")
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

	runDir := filepath.Join(*dataDir, "relays", *relayID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		logger.Fatal("data dir", zap.Error(err))
	}

	audit := tlog.NewAuditLogger(runDir)
	defer audit.Close()
	sinks := []ws.SessionSink{audit}

	if !*disableDB && envBool("SC_INDEX_ENABLED", true) {
		idx, err := indexdb.OpenSQLite(filepath.Join(runDir, "index", "relay.sqlite"))
		if err != nil {
			logger.Fatal("open index", zap.Error(err))
		}
		defer idx.Close()
		if err := idx.UpsertTuning(tune); err != nil {
			logger.Warn("index: upsert tuning", zap.Error(err))
		}
		sinks = append(sinks, idx)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	relay := ws.NewServer(ws.Config{
		TickRateHz:      tune.TickRateHz,
		SendDelayTicks:  tune.SendDelayTicks,
		MaxHistoryTicks: tune.MaxHistoryTicks,
		Registerer:      reg,
	}, logger, sinks...)

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("relay stopped", zap.Error(err))
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if envBool("SC_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", relay.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		relay.Stop()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Info("listening",
		zap.String("addr", *addr),
		zap.Int("tick_rate_hz", tune.TickRateHz),
		zap.Int("send_delay_ticks", tune.SendDelayTicks),
	)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("ListenAndServe", zap.Error(err))
	}
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

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
