// Package analyst answers ad-hoc data questions by generating and running
// read-only SQL against the supply-chain database.
package analyst

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vinayprograms/agentkit/logging"

	"github.com/vinayprograms/omnisupply/internal/agent"
	"github.com/vinayprograms/omnisupply/internal/storage"
	"github.com/vinayprograms/omnisupply/internal/structured"
)

// Name is the registry name of the data analyst.
const Name = "data_analyst"

const (
	nodeClassify  agent.NodeName = "classify"
	nodeGenerate  agent.NodeName = "generate_sql"
	nodeExecute   agent.NodeName = "execute_query"
	nodeAnomalies agent.NodeName = "detect_anomalies"
	nodeAnalyze   agent.NodeName = "analyze"
	nodeVisualize agent.NodeName = "visualize"
)

var keywords = agent.KeywordScorer{
	High:   []string{"data", "query", "sql", "show", "analyze", "calculate", "trend", "compare"},
	Medium: []string{"revenue", "sales", "orders", "products", "kpi", "metrics"},
}

// Config configures the analyst.
type Config struct {
	// MaxRetries bounds failed query executions before giving up.
	MaxRetries int
	// MinConfidence is the classification confidence below which the query is
	// treated as a detail request.
	MinConfidence float64
	RowLimit      int
	Timeout       time.Duration
}

// DefaultConfig returns the default analyst settings.
func DefaultConfig() Config {
	return Config{
		MaxRetries:    2,
		MinConfidence: 0.5,
		RowLimit:      100,
		Timeout:       120 * time.Second,
	}
}

type state struct {
	agent.State

	Classification Classification
	SQL            SQLQuery
	Table          *storage.Table
	LastErr        error
	Retries        int
	Anomalies      []Anomaly
	Analysis       Analysis
	Analyzed       bool
	Charts         []Visualization
}

// Agent is the data analyst.
type Agent struct {
	wf     *agent.Workflow[*state]
	exec   storage.Executor
	caller structured.Caller
	cfg    Config
	logger *logging.Logger
}

// New builds the analyst over exec, using caller for classification, SQL
// generation and analysis.
func New(exec storage.Executor, caller structured.Caller, cfg Config) (*Agent, error) {
	if exec == nil || caller == nil {
		return nil, errors.New("analyst: executor and caller are required")
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.RowLimit <= 0 {
		cfg.RowLimit = 100
	}

	a := &Agent{
		exec:   exec,
		caller: caller,
		cfg:    cfg,
		logger: logging.New().WithComponent(Name),
	}

	g := agent.NewGraph[*state](nodeClassify).
		AddNode(nodeClassify, a.classify).
		AddNode(nodeGenerate, a.generateSQL).
		AddNode(nodeExecute, a.executeQuery).
		AddNode(nodeAnomalies, a.detectAnomalies).
		AddNode(nodeAnalyze, a.analyze).
		AddNode(nodeVisualize, a.visualize).
		AddEdge(nodeClassify, nodeGenerate).
		AddEdge(nodeGenerate, nodeExecute).
		AddRoute(nodeExecute, a.route, nodeAnalyze, nodeAnomalies, nodeGenerate, agent.End).
		AddEdge(nodeAnomalies, nodeAnalyze).
		AddEdge(nodeAnalyze, nodeVisualize).
		AddEdge(nodeVisualize, agent.End)

	var err error
	a.wf, err = agent.NewWorkflow(Name, g, func(string, agent.Prior) *state { return &state{} }, a.format)
	if err != nil {
		return nil, err
	}
	a.wf.Timeout = cfg.Timeout
	return a, nil
}

func (a *Agent) Name() string { return Name }

func (a *Agent) Capabilities() []string {
	return []string{
		"SQL query generation from natural language",
		"Data aggregation and analysis",
		"Trend identification",
		"Anomaly detection",
		"Data visualization recommendations",
		"KPI calculation",
		"Comparative analysis",
	}
}

func (a *Agent) Confidence(query string) float64 {
	return keywords.Score(query)
}

func (a *Agent) Execute(ctx context.Context, query string, prior agent.Prior) agent.Result {
	return a.wf.Execute(ctx, query, prior)
}

func (a *Agent) classify(ctx context.Context, s *state) error {
	c, err := structured.Decode[Classification](ctx, a.caller, classifyPrompt(s.Query), classificationSchema)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.logger.Warn("classification_failed", map[string]interface{}{"error": err.Error()})
		c = Classification{Confidence: 0}
	}
	s.Classification = a.normalize(c)
	s.Record(nodeClassify, "assistant", fmt.Sprintf("%s (%.2f)", s.Classification.Category, s.Classification.Confidence))
	return nil
}

// normalize maps unknown or low-confidence categories to detail.
func (a *Agent) normalize(c Classification) Classification {
	if !c.Category.Valid() || c.Confidence < a.cfg.MinConfidence {
		if c.Category != CategoryDetail {
			a.logger.Debug("classification_defaulted", map[string]interface{}{
				"category":   string(c.Category),
				"confidence": c.Confidence,
			})
		}
		c.Category = CategoryDetail
	}
	return c
}

func (a *Agent) generateSQL(ctx context.Context, s *state) error {
	prompt := sqlPrompt(s.Query, s.Classification, a.cfg.RowLimit, s.Prior, s.LastErr)
	q, err := structured.Decode[SQLQuery](ctx, a.caller, prompt, sqlSchema)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.SQL = SQLQuery{}
		s.LastErr = fmt.Errorf("SQL generation failed: %w", err)
		return nil
	}
	s.SQL = q
	s.Record(nodeGenerate, "assistant", q.SQL)
	return nil
}

func (a *Agent) executeQuery(ctx context.Context, s *state) error {
	if s.SQL.SQL == "" {
		if s.LastErr == nil {
			s.LastErr = errors.New("no SQL query to execute")
		}
		return a.failAttempt(s)
	}

	t, err := a.exec.Query(ctx, s.SQL.SQL)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.LastErr = fmt.Errorf("query execution failed: %w", err)
		return a.failAttempt(s)
	}
	if len(t.Rows) > a.cfg.RowLimit {
		t = &storage.Table{Columns: t.Columns, Rows: t.Rows[:a.cfg.RowLimit]}
	}
	s.Table = t
	s.LastErr = nil
	a.logger.Info("query_executed", map[string]interface{}{"rows": t.Len()})
	return nil
}

// failAttempt counts a failed attempt and, once retries are exhausted, marks
// the run failed.
func (a *Agent) failAttempt(s *state) error {
	s.Retries++
	a.logger.Warn("query_failed", map[string]interface{}{
		"attempt": s.Retries,
		"error":   s.LastErr.Error(),
	})
	if s.Retries >= a.cfg.MaxRetries {
		s.Err = s.LastErr
	}
	return nil
}

func (a *Agent) route(s *state) agent.NodeName {
	switch {
	case s.LastErr != nil && s.Retries < a.cfg.MaxRetries:
		return nodeGenerate
	case s.LastErr != nil:
		return agent.End
	case s.Classification.Category == CategoryAnomaly:
		return nodeAnomalies
	default:
		return nodeAnalyze
	}
}

func (a *Agent) detectAnomalies(ctx context.Context, s *state) error {
	s.Anomalies = DetectAnomalies(s.Table)
	return nil
}

func (a *Agent) analyze(ctx context.Context, s *state) error {
	s.Analyzed = true
	if s.Table.Len() == 0 {
		s.Analysis = noDataAnalysis
		return nil
	}

	an, err := structured.Decode[Analysis](ctx, a.caller, analysisPrompt(s.Query, s.Table, s.Anomalies), analysisSchema)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.logger.Warn("analysis_fallback", map[string]interface{}{"error": err.Error()})
		an = failedAnalysis
	}
	for _, x := range s.Anomalies {
		an.Anomalies = append(an.Anomalies, x.String())
	}
	s.Analysis = an
	return nil
}

func (a *Agent) visualize(ctx context.Context, s *state) error {
	s.Charts = Recommend(s.Classification.Category, s.Table.Len())
	return nil
}

func (a *Agent) format(s *state) agent.Result {
	res := agent.Result{Metrics: map[string]float64{
		"rows_returned":              float64(s.Table.Len()),
		"visualizations_recommended": float64(len(s.Charts)),
		"anomalies_detected":         float64(len(s.Anomalies)),
		"query_attempts":             float64(s.Retries + boolInt(s.Table != nil)),
		"classification_confidence":  s.Classification.Confidence,
	}}

	if s.SQL.Explanation != "" {
		res.Insights = append(res.Insights, "Query: "+s.SQL.Explanation)
	}
	if s.Analyzed {
		res.Insights = append(res.Insights, "Summary: "+s.Analysis.Summary)
		res.Insights = append(res.Insights, s.Analysis.KeyInsights...)
		for _, an := range s.Analysis.Anomalies {
			res.Insights = append(res.Insights, "Anomaly: "+an)
		}
		res.Recommendations = append(res.Recommendations, s.Analysis.Recommendations...)
	}
	for _, c := range s.Charts {
		res.Recommendations = append(res.Recommendations, fmt.Sprintf("Visualize as %s: %s", c.Type, c.Description))
	}
	return res
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
