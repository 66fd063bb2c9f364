package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/vinayprograms/agentkit/logging"

	"github.com/vinayprograms/omnisupply/internal/agent"
	"github.com/vinayprograms/omnisupply/internal/config"
	"github.com/vinayprograms/omnisupply/internal/metrics"
	"github.com/vinayprograms/omnisupply/internal/risk"
	"github.com/vinayprograms/omnisupply/internal/storage"
)

const watchQuery = "Periodic supply chain risk check"

// Run executes the risk agent every Interval until interrupted.
func (c *WatchCmd) Run(g *Globals, out io.Writer) error {
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	}
	cfg, err := loadConfig(g.Config)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	logger := logging.New().WithComponent("watch")
	if err := rt.connectNotifier(); err != nil {
		logger.Warn("alerts will not be published", map[string]interface{}{"error": err.Error()})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := &riskWatch{rt: rt, agent: rt.risk, logger: logger, out: out}

	if c.Once {
		return w.check(ctx)
	}

	addr := cfg.Metrics.Addr
	if c.MetricsAddr != "" {
		addr = c.MetricsAddr
	}
	if addr != "" {
		srv := serveMetrics(addr, logger)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(sctx)
		}()
	}

	if path := configPath(g.Config); path != "" {
		if err := w.watchConfig(ctx, path); err != nil {
			logger.Warn("config reload disabled", map[string]interface{}{"error": err.Error()})
		}
	}

	logger.Info("watch started", map[string]interface{}{"interval": c.Interval.String()})
	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()
	for {
		if err := w.check(ctx); err != nil && ctx.Err() == nil {
			logger.Error("risk check failed", map[string]interface{}{"error": err.Error()})
		}
		select {
		case <-ctx.Done():
			logger.Info("watch stopped", nil)
			return nil
		case <-ticker.C:
		}
	}
}

// riskWatch owns the risk agent used by periodic checks. The agent is
// replaced when the config file changes.
type riskWatch struct {
	rt     *runtime
	logger *logging.Logger
	out    io.Writer

	mu    sync.Mutex
	agent *risk.Agent
}

func (w *riskWatch) current() *risk.Agent {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.agent
}

// check runs one assessment and records its execution and alerts.
func (w *riskWatch) check(ctx context.Context) error {
	a := w.current()
	start := time.Now()
	res := a.Execute(ctx, watchQuery, agent.Prior{})
	d := time.Since(start)
	alerts := w.rt.alerts.drain()

	bg := context.WithoutCancel(ctx)
	var errs []error
	summary := ""
	if len(res.Insights) > 0 {
		summary = res.Insights[0]
	}
	err := w.rt.store.LogExecution(bg, storage.ExecutionRecord{
		AgentName: a.Name(),
		Query:     watchQuery,
		Start:     start.UTC(),
		Duration:  d,
		Success:   res.Success,
		TimedOut:  res.TimedOut,
		Error:     res.Error,
		Summary:   summary,
	})
	if err != nil {
		errs = append(errs, err)
	}
	if err := w.rt.saveAlerts(bg, alerts); err != nil {
		errs = append(errs, err)
	}

	score := res.Metrics["overall_risk_score"]
	fmt.Fprintf(w.out, "%s risk %.2f, %d alerts (%s)\n",
		start.Format("2006-01-02 15:04:05"), score, len(alerts), d.Round(time.Millisecond))
	for _, al := range alerts {
		fmt.Fprintf(w.out, "  [%s] %s\n", al.Severity, al.Title)
	}
	if !res.Success {
		errs = append(errs, errors.New(res.Error))
	}
	return errors.Join(errs...)
}

// reload rebuilds the risk agent from the config file at path.
func (w *riskWatch) reload(path string) error {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return err
	}
	a, err := risk.New(w.rt.store, w.rt.caller, riskConfig(cfg))
	if err != nil {
		return err
	}
	a.OnAlerts = w.rt.alerts.add

	w.mu.Lock()
	w.agent = a
	w.mu.Unlock()
	return nil
}

// watchConfig reloads the risk agent whenever path is written. The parent
// directory is watched so editors that replace the file are seen too.
func (w *riskWatch) watchConfig(ctx context.Context, path string) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return err
	}

	go func() {
		defer fsw.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != path || !ev.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				if err := w.reload(path); err != nil {
					w.logger.Warn("config reload failed", map[string]interface{}{"path": path, "error": err.Error()})
					continue
				}
				w.logger.Info("config reloaded", map[string]interface{}{"path": path})
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				w.logger.Warn("config watcher error", map[string]interface{}{"error": err.Error()})
			}
		}
	}()
	return nil
}

// configPath resolves the config file in use, or "" when running on defaults.
func configPath(flag string) string {
	path := flag
	if path == "" {
		path = config.DefaultFile
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return ""
	}
	if _, err := os.Stat(abs); err != nil {
		return ""
	}
	return filepath.Clean(abs)
}

func serveMetrics(addr string, logger *logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("metrics listening", map[string]interface{}{"addr": addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", map[string]interface{}{"error": err.Error()})
		}
	}()
	return srv
}
