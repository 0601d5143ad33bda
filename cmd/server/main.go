package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/JLsquare/voxplace/internal/auth"
	"github.com/JLsquare/voxplace/internal/broadcast"
	"github.com/JLsquare/voxplace/internal/canvas"
	"github.com/JLsquare/voxplace/internal/config"
	"github.com/JLsquare/voxplace/internal/metrics"
	"github.com/JLsquare/voxplace/internal/persistence/export"
	persistlog "github.com/JLsquare/voxplace/internal/persistence/log"
	"github.com/JLsquare/voxplace/internal/persistence/store"
	"github.com/JLsquare/voxplace/internal/persistence/writebehind"
	"github.com/JLsquare/voxplace/internal/place"
	"github.com/JLsquare/voxplace/internal/registry"
	"github.com/JLsquare/voxplace/internal/transport/api"
	"github.com/JLsquare/voxplace/internal/transport/ws"
)

func main() {
	var (
		configPath = flag.String("config", "./configs/voxplace.yaml", "server config path (empty for defaults)")
		addr       = flag.String("addr", "", "http listen address (overrides config)")
		dataDir    = flag.String("data", "", "runtime data directory (overrides config)")
		dbPath     = flag.String("db", "", "sqlite database path (overrides config)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfgFile := strings.TrimSpace(*configPath)
	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); errors.Is(err, os.ErrNotExist) {
			logger.Printf("config not found (%s); using defaults", cfgFile)
			cfgFile = ""
		}
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
		if *dbPath == "" {
			cfg.DBPath = ""
			cfg.Normalize()
		}
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}

	secret := strings.TrimSpace(os.Getenv("VOXPLACE_AUTH_SECRET"))
	if secret == "" {
		logger.Fatalf("VOXPLACE_AUTH_SECRET is required")
	}
	signer, err := auth.NewSigner(secret)
	if err != nil {
		logger.Fatalf("auth: %v", err)
	}

	bootCtx, bootCancel := context.WithTimeout(context.Background(), time.Minute)
	defer bootCancel()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer st.Close()
	if err := st.EnsurePalette(bootCtx, canvas.DefaultPalette()); err != nil {
		logger.Fatalf("default palette: %v", err)
	}

	reg, err := registry.Boot(bootCtx, st, cfg.Mode(), logger)
	if err != nil {
		logger.Fatalf("boot registry: %v", err)
	}
	logger.Printf("loaded places=%d index_mode=%s", len(reg.All()), cfg.Mode())

	mirror, err := buildR2Mirror(cfg.DataDir, logger)
	if err != nil {
		logger.Fatalf("init r2 mirror: %v", err)
	}

	hub := broadcast.NewHub(cfg.ViewerQueueSize, logger)
	wb := writebehind.New(st, reg, writebehind.Config{
		FlushInterval: cfg.FlushInterval(),
		GridFlushAge:  cfg.GridFlushAge(),
	}, logger)
	reg.OnOffline(func(ctx context.Context, p *place.Place) {
		if err := wb.FlushPlace(context.WithoutCancel(ctx), p); err != nil {
			logger.Printf("offline flush place=%d err=%v", p.ID, err)
		}
	})

	sinks := []place.EventSink{wb}
	var paintLog *persistlog.PaintLogger
	if cfg.AuditLog {
		paintLog = persistlog.NewPaintLogger(cfg.DataDir, mirror.Enqueue, logger)
		sinks = append(sinks, paintLog)
	}

	var cooldowns place.CooldownStore = st
	if cfg.CachedCooldowns {
		cooldowns = place.NewCachedCooldowns(st)
	}
	gate := place.NewGate(place.GateConfig{
		Cooldowns: cooldowns,
		Publisher: hub,
		Sinks:     sinks,
		Logger:    logger,
	})

	var exporter *export.Exporter
	if cfg.ExportEvery() > 0 {
		exporter = export.NewExporter(cfg.DataDir, reg, mirror, cfg.ExportEvery(), logger)
	}

	// Runtime stats live on their own registry; request metrics and the Go
	// collectors stay on the default one.
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		metrics.NewCollector(metrics.Sources{
			Hub:         hub.Stats,
			WriteBehind: wb.Stats,
			Mirror:      mirror.Stats,
			Places:      func() int { return len(reg.All()) },
			PaintLogDropped: func() uint64 {
				if paintLog == nil {
					return 0
				}
				return paintLog.Dropped()
			},
		}),
	)
	metricsHandler := promhttp.HandlerFor(prometheus.Gatherers{promReg, prometheus.DefaultGatherer}, promhttp.HandlerOpts{})

	handler := api.NewServer(api.Deps{
		Places:        reg,
		Users:         st,
		Gate:          gate,
		Viewers:       hub,
		Auth:          signer,
		Logger:        logger,
		Stream:        ws.NewServer(reg, hub, logger).Handler(),
		Metrics:       metricsHandler,
		MaxCanvasSide: cfg.MaxCanvasSide,

		DefaultCooldown: cfg.DefaultCooldown(),
	})
	if envBool("VOXPLACE_ENABLE_PPROF_HTTP", false) {
		mux := http.NewServeMux()
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
		mux.Handle("/", handler)
		handler = mux
	} else {
		logger.Printf("pprof endpoints disabled (VOXPLACE_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signalContext()
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return wb.Run(gctx) })
	if exporter != nil {
		g.Go(func() error { return exporter.Run(gctx) })
	}
	g.Go(func() error {
		logger.Printf("listening on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shCtx, shCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer shCancel()
		return srv.Shutdown(shCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Printf("server stopped: %v", err)
	}

	// Viewers go first so no frame races the final flush; the registry
	// closes last because the flush still reads its places.
	hub.Close()
	flushCtx, flushCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	if err := wb.Close(flushCtx); err != nil {
		logger.Printf("final flush: %v", err)
	}
	flushCancel()
	if exporter != nil {
		if n, err := exporter.ExportChanged(time.Now()); err != nil {
			logger.Printf("final export: %v", err)
		} else if n > 0 {
			logger.Printf("final export places=%d", n)
		}
	}
	if paintLog != nil {
		_ = paintLog.Close()
	}
	mirror.Close()
	reg.Close()
	logger.Printf("shutdown complete")
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
