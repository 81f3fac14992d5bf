package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/joho/godotenv"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"bookreplay/internal/backtest"
	"bookreplay/internal/obs"
	"bookreplay/internal/ops"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == backtest.WorkerCommand {
		if err := runWorker(os.Args[2:]); err != nil {
			log.Fatalf("worker failed: %+v", err)
		}
		return
	}

	configPath := flag.String("config", "config.yaml", "Path to YAML config")
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before the config")
	workers := flag.Int("workers", 0, "Override the configured worker count (0=keep)")
	executor := flag.String("executor", "", "Override the configured executor: inprocess or process")
	flag.Parse()

	loadEnv(*envFile)
	cfg, err := ops.LoadAndValidate(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %+v", err)
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}
	if *executor != "" {
		cfg.Executor = ops.Executor(*executor)
		if err := cfg.Validate(); err != nil {
			log.Fatalf("config invalid: %+v", err)
		}
	}

	ctx, cancel := shutdownContext()
	defer cancel()

	if cfg.Pyroscope.Enabled {
		profiler, err := startProfiler(cfg.Pyroscope)
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	metrics := obs.NewMetrics()
	if cfg.Metrics.Addr != "" {
		srv, err := obs.Serve(cfg.Metrics.Addr, metrics)
		if err != nil {
			log.Fatalf("metrics serve failed: %v", err)
		}
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logs.Infof("metrics on %s/metrics", cfg.Metrics.Addr)
	}

	if err := run(ctx, *configPath, cfg, metrics); err != nil {
		log.Fatalf("backtest failed: %+v", err)
	}
}

func run(ctx context.Context, configPath string, cfg *ops.Config, metrics *obs.Metrics) error {
	src, err := backtest.OpenSource(cfg)
	if err != nil {
		return err
	}
	cat, closeCatalog, err := backtest.OpenCatalog(cfg)
	if err != nil {
		return err
	}
	ids, err := backtest.Universe(ctx, src, cat)
	_ = closeCatalog()
	if err != nil {
		return err
	}

	var exec backtest.Executor
	switch cfg.Executor {
	case ops.ExecutorProcess:
		exec, err = backtest.NewProcessExecutor(configPath)
		if err != nil {
			return err
		}
	default:
		scorers, err := backtest.LoadScorers(cfg)
		if err != nil {
			return err
		}
		exec = backtest.InProcessExecutor{Env: backtest.Env{
			Config:  cfg,
			Source:  src,
			Scorers: scorers,
			Metrics: metrics,
		}}
	}

	orch := &backtest.Orchestrator{
		Workers:         cfg.Workers,
		MarketsPerChunk: cfg.MarketsPerChunk,
		ResultPattern:   cfg.Results.Pattern,
		MergedPath:      cfg.Results.Merged,
		Executor:        exec,
		Metrics:         metrics,
	}
	report, err := orch.Run(ctx, ids)
	if err != nil {
		return err
	}

	snap := metrics.Snapshot()
	logs.Infof("replayed %d markets in %d chunks (%d failed) in %s, merged %d rows into %s",
		report.Markets, report.Chunks, len(report.Failed), report.Elapsed, report.Merge.Rows, cfg.Results.Merged)
	for c, v := range snap.Counters {
		logs.Infof("  %s=%d", c, v)
	}
	return nil
}

// runWorker replays one chunk in a child process. The market ids arrive on
// stdin, one per line.
func runWorker(args []string) error {
	fs := flag.NewFlagSet(backtest.WorkerCommand, flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to YAML config")
	chunk := fs.Int("chunk", 0, "Chunk index")
	out := fs.String("out", "", "Result file of the chunk")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := ops.LoadAndValidate(*configPath)
	if err != nil {
		return err
	}
	ids, err := backtest.ReadMarkets(os.Stdin)
	if err != nil {
		return err
	}
	src, err := backtest.OpenSource(cfg)
	if err != nil {
		return err
	}
	scorers, err := backtest.LoadScorers(cfg)
	if err != nil {
		return err
	}
	r, err := backtest.NewRunner(backtest.Env{Config: cfg, Source: src, Scorers: scorers})
	if err != nil {
		return err
	}

	ctx, cancel := shutdownContext()
	defer cancel()
	res, err := r.RunChunk(ctx, backtest.Chunk{Index: *chunk, Markets: ids}, *out)
	if err != nil {
		return err
	}
	logs.Infof("chunk %d replayed %d markets (%d failed), %d rows", res.Index, res.Markets, len(res.Failed), res.Rows)
	return nil
}

func loadEnv(path string) {
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		logs.Warnf("load %s, err: %+v", path, err)
	}
}

func shutdownContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-sys.Shutdown():
			logs.Warnf("shutdown signal received, stopping replay")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func startProfiler(cfg ops.PyroscopeConfig) (*pyroscope.Profiler, error) {
	return pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.App,
		ServerAddress:   cfg.Server,
		Logger:          profilerLogger{},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
}

type profilerLogger struct{}

func (profilerLogger) Infof(_ string, _ ...interface{})       {}
func (profilerLogger) Debugf(_ string, _ ...interface{})      {}
func (profilerLogger) Errorf(format string, a ...interface{}) { logs.Errorf(format, a...) }
