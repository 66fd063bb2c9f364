package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/telemetry"

	"github.com/vinayprograms/omnisupply/internal/agent"
	"github.com/vinayprograms/omnisupply/internal/analyst"
	"github.com/vinayprograms/omnisupply/internal/config"
	"github.com/vinayprograms/omnisupply/internal/finance"
	"github.com/vinayprograms/omnisupply/internal/notify"
	"github.com/vinayprograms/omnisupply/internal/report"
	"github.com/vinayprograms/omnisupply/internal/risk"
	"github.com/vinayprograms/omnisupply/internal/storage"
	"github.com/vinayprograms/omnisupply/internal/structured"
	"github.com/vinayprograms/omnisupply/internal/supervisor"
	"github.com/vinayprograms/omnisupply/internal/workflow"
)

var errNoModel = errors.New("no LLM model configured")

// runtime holds the components shared by the commands.
type runtime struct {
	cfg      *config.Config
	store    *storage.Store
	caller   structured.Caller
	online   bool
	registry *agent.Registry
	risk     *risk.Agent
	alerts   *alertSink
	telem    telemetry.Exporter
	notifier *notify.Publisher

	closers []func()
}

// loadConfig reads path, or ./omnisupply.toml when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.LoadDefault()
}

// newRuntime opens the database and builds the agents. A missing model
// configuration is not an error; calls then fail and agents fall back.
func newRuntime(cfg *config.Config) (*runtime, error) {
	rt := &runtime{cfg: cfg, alerts: &alertSink{}}

	store, err := storage.Open(config.ExpandPath(cfg.Storage.Path))
	if err != nil {
		return nil, err
	}
	rt.store = store
	rt.addCloser(func() { store.Close() })

	if err := rt.createCaller(); err != nil {
		rt.close()
		return nil, err
	}
	if err := rt.setupTelemetry(); err != nil {
		rt.close()
		return nil, err
	}
	rt.registry, rt.risk, err = buildRegistry(cfg, store, rt.caller, hooks{
		onAlerts: rt.alerts.add,
		onReport: rt.archiveMeetingReport,
	})
	if err != nil {
		rt.close()
		return nil, err
	}
	return rt, nil
}

// createCaller creates the structured-output caller on the configured model.
func (rt *runtime) createCaller() error {
	llmProvider := rt.cfg.LLM.Provider
	if llmProvider == "" {
		llmProvider = llm.InferProviderFromModel(rt.cfg.LLM.Model)
	}
	if llmProvider == "" && rt.cfg.LLM.Model == "" {
		rt.caller = offlineCaller{}
		return nil
	}

	provider, err := llm.NewProvider(llm.ProviderConfig{
		Provider:    llmProvider,
		Model:       rt.cfg.LLM.Model,
		APIKey:      apiKey(rt.cfg, llmProvider),
		MaxTokens:   rt.cfg.LLM.MaxTokens,
		BaseURL:     rt.cfg.LLM.BaseURL,
		RetryConfig: parseRetryConfig(rt.cfg.LLM.MaxRetries, rt.cfg.LLM.RetryBackoff),
	})
	if err != nil {
		return fmt.Errorf("creating LLM provider: %w", err)
	}
	rt.caller = structured.NewProviderCaller(provider, rt.cfg.LLM.RequestsPerMinute)
	rt.online = true
	return nil
}

// setupTelemetry creates the telemetry exporter.
func (rt *runtime) setupTelemetry() error {
	var err error
	if rt.cfg.Telemetry.Enabled {
		rt.telem, err = telemetry.NewExporter(rt.cfg.Telemetry.Protocol, rt.cfg.Telemetry.Endpoint)
		if err != nil {
			return fmt.Errorf("creating telemetry exporter: %w", err)
		}
	} else {
		rt.telem = telemetry.NewNoopExporter()
	}
	rt.addCloser(func() { rt.telem.Close() })
	return nil
}

// connectNotifier connects the NATS publisher when [nats] is enabled.
func (rt *runtime) connectNotifier() error {
	if !rt.cfg.NATS.Enabled {
		return nil
	}
	pub, err := notify.Connect(rt.cfg.NATS.URL, rt.cfg.NATS.SubjectPrefix)
	if err != nil {
		return err
	}
	rt.notifier = pub
	rt.addCloser(pub.Close)
	return nil
}

// newSupervisor builds a supervisor over the runtime's registry.
func (rt *runtime) newSupervisor() (*supervisor.Supervisor, error) {
	return supervisor.New(rt.registry, rt.caller, supervisorConfig(rt.cfg))
}

func (rt *runtime) addCloser(f func()) {
	rt.closers = append(rt.closers, f)
}

// close releases resources in reverse order of acquisition.
func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

// hooks receive the side outputs of agent runs. Either may be nil.
type hooks struct {
	onAlerts func([]risk.Alert)
	onReport func(report.Document, string)
}

// buildRegistry registers the data-analyst, risk, finance, meeting report
// and email agents.
func buildRegistry(cfg *config.Config, exec storage.Executor, caller structured.Caller, h hooks) (*agent.Registry, *risk.Agent, error) {
	riskAgent, err := risk.New(exec, caller, riskConfig(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("risk agent: %w", err)
	}
	riskAgent.OnAlerts = h.onAlerts

	analystAgent, err := analyst.New(exec, caller, analystConfig(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("analyst agent: %w", err)
	}
	financeAgent, err := finance.New(exec, caller, financeConfig(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("finance agent: %w", err)
	}
	meetingAgent, err := report.New(exec, caller, reportConfig(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("meeting agent: %w", err)
	}
	meetingAgent.OnReport = h.onReport
	emailAgent, err := workflow.New(caller, workflowConfig(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("email agent: %w", err)
	}

	reg := agent.NewRegistry()
	for _, a := range []agent.Agent{analystAgent, riskAgent, financeAgent, meetingAgent, emailAgent} {
		if err := reg.Register(a); err != nil {
			return nil, nil, err
		}
	}
	return reg, riskAgent, nil
}

func riskConfig(cfg *config.Config) risk.Config {
	rc := risk.DefaultConfig()
	w := cfg.Risk.Weights
	rc.Weights = risk.Weights{
		Delivery:   w.Delivery,
		Inventory:  w.Inventory,
		Quality:    w.Quality,
		Financial:  w.Financial,
		Disruption: w.Disruption,
	}
	rc.Levels = risk.Levels{
		Medium:   cfg.Risk.Levels.Medium,
		High:     cfg.Risk.Levels.High,
		Critical: cfg.Risk.Levels.Critical,
	}
	rc.WindowDays = cfg.Risk.WindowDays
	rc.GatherTimeout = cfg.GatherTimeout()
	rc.Timeout = cfg.AgentTimeout()
	return rc
}

func analystConfig(cfg *config.Config) analyst.Config {
	ac := analyst.DefaultConfig()
	ac.MaxRetries = cfg.Analyst.MaxRetries
	ac.MinConfidence = cfg.Analyst.MinClassifyConfidence
	ac.RowLimit = cfg.Analyst.RowLimit
	ac.Timeout = cfg.AgentTimeout()
	return ac
}

func financeConfig(cfg *config.Config) finance.Config {
	fc := finance.DefaultConfig()
	fc.WindowDays = cfg.Risk.WindowDays
	fc.Timeout = cfg.AgentTimeout()
	return fc
}

func reportConfig(cfg *config.Config) report.Config {
	rc := report.DefaultConfig()
	rc.WindowDays = cfg.Risk.WindowDays
	rc.Timeout = cfg.AgentTimeout()
	return rc
}

func workflowConfig(cfg *config.Config) workflow.Config {
	wc := workflow.DefaultConfig()
	wc.TaskDueDays = cfg.Email.TaskDueDays
	wc.Timeout = cfg.AgentTimeout()
	for _, p := range cfg.Email.Stakeholders {
		level := workflow.Level(p.Level)
		if level == "" {
			level = workflow.LevelAll
		}
		wc.Stakeholders = append(wc.Stakeholders, workflow.Stakeholder{
			Name: p.Name, Role: p.Role, Email: p.Email, Level: level,
		})
	}
	return wc
}

func supervisorConfig(cfg *config.Config) supervisor.Config {
	return supervisor.Config{
		AgentTimeout:  cfg.AgentTimeout(),
		MaxAgents:     cfg.Supervisor.MaxAgents,
		MinConfidence: cfg.Supervisor.MinConfidence,
		DefaultOrder:  supervisor.Order(cfg.Supervisor.DefaultOrder),
	}
}

// apiKey prefers the credentials file over the configured environment variable.
func apiKey(cfg *config.Config, provider string) string {
	if globalCreds != nil {
		if key := globalCreds.GetAPIKey(provider); key != "" {
			return key
		}
	}
	return cfg.GetAPIKey()
}

// parseRetryConfig converts config values to RetryConfig.
func parseRetryConfig(maxRetries int, backoffStr string) llm.RetryConfig {
	cfg := llm.RetryConfig{
		MaxRetries: maxRetries,
	}
	if backoffStr != "" {
		if d, err := time.ParseDuration(backoffStr); err == nil {
			cfg.MaxBackoff = d
		}
	}
	return cfg
}

// offlineCaller stands in when no model is configured. Every call fails, so
// agents produce their deterministic fallback output.
type offlineCaller struct{}

func (offlineCaller) Call(ctx context.Context, prompt string, schema *structured.Schema, out any) error {
	return &structured.CallError{Kind: structured.KindTransport, Schema: schema.Name, Err: errNoModel}
}

// alertSink collects the alerts raised by the risk agent during a run.
type alertSink struct {
	mu     sync.Mutex
	alerts []risk.Alert
}

func (s *alertSink) add(alerts []risk.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alerts...)
}

// drain returns and clears the collected alerts.
func (s *alertSink) drain() []risk.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.alerts
	s.alerts = nil
	return out
}
