// Package workflow turns requests and earlier agents' findings into
// stakeholder alerts, task assignments and draft emails. Drafts are never sent.
package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/vinayprograms/agentkit/logging"

	"github.com/vinayprograms/omnisupply/internal/agent"
	"github.com/vinayprograms/omnisupply/internal/structured"
)

// Name is the registry name of the email and workflow agent.
const Name = "email_agent"

// Kind is the type of workflow a request asks for.
type Kind string

const (
	KindAlert   Kind = "alert"
	KindTask    Kind = "task"
	KindEmail   Kind = "email"
	KindMeeting Kind = "meeting_agenda"
)

const (
	nodeClassify     agent.NodeName = "classify_workflow"
	nodeStakeholders agent.NodeName = "load_stakeholders"
	nodeAlerts       agent.NodeName = "generate_alerts"
	nodeTasks        agent.NodeName = "create_tasks"
	nodeDraft        agent.NodeName = "draft_emails"
)

// Upper bounds on generated items. A request asks for more than one only
// when it says so.
const (
	MaxNotices = 3
	MaxTasks   = 5
)

var keywords = agent.KeywordScorer{
	High:   []string{"alert", "notify", "email", "send", "task", "meeting", "agenda"},
	Medium: []string{"stakeholder", "notification", "inform", "schedule", "assign"},
}

// classify maps a request to a workflow kind. Email is the default.
func classify(query string) Kind {
	q := strings.ToLower(query)
	switch {
	case containsAny(q, "alert", "notify", "warn"):
		return KindAlert
	case containsAny(q, "task", "assign"):
		return KindTask
	case containsAny(q, "meeting", "agenda"):
		return KindMeeting
	default:
		return KindEmail
	}
}

// wantsMany reports whether the request asks for several items.
func wantsMany(query string) bool {
	for _, w := range strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		if w == "all" || w == "multiple" || w == "several" {
			return true
		}
	}
	return false
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// Config configures the email and workflow agent.
type Config struct {
	// Stakeholders defaults to DefaultStakeholders.
	Stakeholders []Stakeholder
	// TaskDueDays is the due date offset of generated tasks.
	TaskDueDays int
	Timeout     time.Duration
}

// DefaultConfig uses the default stakeholders and a one week due date.
func DefaultConfig() Config {
	return Config{TaskDueDays: 7, Timeout: 120 * time.Second}
}

type state struct {
	agent.State

	Kind    Kind
	People  []Stakeholder
	Notices []Notice
	Tasks   []Task
	Drafts  []Draft
}

// Agent is the email and workflow agent.
type Agent struct {
	wf     *agent.Workflow[*state]
	caller structured.Caller
	cfg    Config
	logger *logging.Logger

	// Now supplies the clock for IDs and due dates.
	Now func() time.Time
}

// New builds the agent. caller may be nil, in which case notices, tasks and
// drafts are built from templates.
func New(caller structured.Caller, cfg Config) (*Agent, error) {
	if len(cfg.Stakeholders) == 0 {
		cfg.Stakeholders = DefaultStakeholders
	}
	for _, p := range cfg.Stakeholders {
		if p.Email == "" || p.Role == "" {
			return nil, fmt.Errorf("workflow: stakeholder %q needs a role and an email", p.Name)
		}
		if !p.Level.Valid() {
			return nil, fmt.Errorf("workflow: stakeholder %q has unknown level %q", p.Name, p.Level)
		}
	}
	if cfg.TaskDueDays <= 0 {
		cfg.TaskDueDays = 7
	}
	a := &Agent{
		caller: caller,
		cfg:    cfg,
		logger: logging.New().WithComponent(Name),
		Now:    time.Now,
	}

	g := agent.NewGraph[*state](nodeClassify).
		AddNode(nodeClassify, a.classify).
		AddNode(nodeStakeholders, a.loadStakeholders).
		AddNode(nodeAlerts, a.generateAlerts).
		AddNode(nodeTasks, a.createTasks).
		AddNode(nodeDraft, a.draftEmails).
		AddEdge(nodeClassify, nodeStakeholders).
		AddRoute(nodeStakeholders, a.route, nodeDraft, nodeAlerts, nodeTasks).
		AddEdge(nodeAlerts, nodeDraft).
		AddEdge(nodeTasks, nodeDraft).
		AddEdge(nodeDraft, agent.End)

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
		"Alert generation and prioritization",
		"Task creation with assignments",
		"Email notification drafting",
		"Meeting agenda preparation",
		"Stakeholder management",
		"Workflow automation",
	}
}

func (a *Agent) Confidence(query string) float64 {
	return keywords.Score(query)
}

func (a *Agent) Execute(ctx context.Context, query string, prior agent.Prior) agent.Result {
	return a.wf.Execute(ctx, query, prior)
}

func (a *Agent) classify(ctx context.Context, s *state) error {
	s.Kind = classify(s.Query)
	s.Record(nodeClassify, "system", "workflow: "+string(s.Kind))
	return nil
}

func (a *Agent) loadStakeholders(ctx context.Context, s *state) error {
	s.People = a.cfg.Stakeholders
	return nil
}

func (a *Agent) route(s *state) agent.NodeName {
	switch s.Kind {
	case KindAlert:
		return nodeAlerts
	case KindTask:
		return nodeTasks
	default:
		return nodeDraft
	}
}

func (a *Agent) limit(query string, most int) int {
	if wantsMany(query) {
		return most
	}
	return 1
}

func (a *Agent) stamp() string {
	return a.Now().UTC().Format("20060102")
}

func (a *Agent) generateAlerts(ctx context.Context, s *state) error {
	limit := a.limit(s.Query, MaxNotices)
	var notices []Notice
	if a.caller != nil {
		batch, err := structured.Decode[noticeBatch](ctx, a.caller, noticePrompt(s.Query, s.People, s.Prior, limit), noticeSchema)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Warn("alert_fallback", map[string]interface{}{"error": err.Error()})
		} else {
			notices = batch.Alerts
		}
	}
	if len(notices) == 0 {
		notices = []Notice{fallbackNotice(s.Query, s.Prior)}
	}
	notices = notices[:min(limit, len(notices))]
	for i := range notices {
		notices[i].ID = fmt.Sprintf("ALERT-%s-%03d", a.stamp(), i+1)
	}
	s.Notices = notices
	a.logger.Info("alerts_generated", map[string]interface{}{"count": len(notices)})
	return nil
}

func (a *Agent) createTasks(ctx context.Context, s *state) error {
	limit := a.limit(s.Query, MaxTasks)
	due := a.Now().UTC().AddDate(0, 0, a.cfg.TaskDueDays).Format("2006-01-02")
	var tasks []Task
	if a.caller != nil {
		batch, err := structured.Decode[taskBatch](ctx, a.caller, taskPrompt(s.Query, s.People, s.Prior, limit), taskSchema)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Warn("task_fallback", map[string]interface{}{"error": err.Error()})
		} else {
			tasks = batch.Tasks
		}
	}
	if len(tasks) == 0 {
		tasks = fallbackTasks(s.Query, s.Prior, due, limit)
	}
	tasks = tasks[:min(limit, len(tasks))]
	for i := range tasks {
		tasks[i].ID = fmt.Sprintf("TASK-%s-%03d", a.stamp(), i+1)
	}
	s.Tasks = tasks
	a.logger.Info("tasks_created", map[string]interface{}{"count": len(tasks)})
	return nil
}

// draftEmails writes one draft per addressable notice or task. Other
// workflows get a single general draft to the stakeholders who take all mail.
func (a *Agent) draftEmails(ctx context.Context, s *state) error {
	switch {
	case s.Kind == KindAlert:
		for _, n := range s.Notices {
			to := Recipients(n, s.People)
			if len(to) == 0 {
				continue
			}
			d, err := a.draft(ctx, noticeDraftPrompt(n, to), func() Draft { return fallbackNoticeDraft(n) })
			if err != nil {
				return err
			}
			d.To = to
			s.Drafts = append(s.Drafts, d)
		}
	case s.Kind == KindTask:
		for _, t := range s.Tasks {
			to, ok := Assignee(t, s.People)
			if !ok {
				a.logger.Warn("task_unassignable", map[string]interface{}{"task": t.ID, "assignee": t.Assignee})
				continue
			}
			d, err := a.draft(ctx, taskDraftPrompt(t, to), func() Draft { return fallbackTaskDraft(t) })
			if err != nil {
				return err
			}
			d.To = []string{to}
			s.Drafts = append(s.Drafts, d)
		}
	default:
		var to []string
		for _, p := range s.People {
			if p.Level == LevelAll {
				to = append(to, p.Email)
			}
		}
		d, err := a.draft(ctx, generalDraftPrompt(s.Query, s.Kind, s.People, s.Prior),
			func() Draft { return fallbackGeneralDraft(s.Query, s.Kind, s.Prior) })
		if err != nil {
			return err
		}
		d.To = to
		s.Drafts = append(s.Drafts, d)
	}
	return nil
}

// draft asks the model for an email and falls back to a template. Only a
// finished context is an error.
func (a *Agent) draft(ctx context.Context, prompt string, fallback func() Draft) (Draft, error) {
	if a.caller == nil {
		return fallback(), nil
	}
	d, err := structured.Decode[Draft](ctx, a.caller, prompt, draftSchema)
	if err != nil {
		if ctx.Err() != nil {
			return Draft{}, ctx.Err()
		}
		a.logger.Warn("draft_fallback", map[string]interface{}{"error": err.Error()})
		return fallback(), nil
	}
	return d, nil
}

func (a *Agent) format(s *state) agent.Result {
	res := agent.Result{Metrics: map[string]float64{}}
	for _, n := range s.Notices {
		res.Insights = append(res.Insights,
			fmt.Sprintf("Alert %s [%s] %s: %s (%s)", n.ID, n.Severity, n.Title, n.Message, n.AffectedArea))
		if n.RecommendedAction != "" {
			res.Recommendations = append(res.Recommendations, fmt.Sprintf("[%s] %s", n.Severity, n.RecommendedAction))
		}
	}
	for _, t := range s.Tasks {
		res.Insights = append(res.Insights,
			fmt.Sprintf("Task %s [%s] %s, assigned to %s, due %s", t.ID, t.Priority, t.Title, t.Assignee, t.DueDate))
	}
	if len(s.Tasks) > 0 {
		res.Recommendations = append(res.Recommendations, fmt.Sprintf("Review and confirm %d task assignments", len(s.Tasks)))
	}

	notified := map[string]bool{}
	for _, d := range s.Drafts {
		res.Insights = append(res.Insights, fmt.Sprintf("Draft email to %s: %s", strings.Join(d.To, ", "), d.Subject))
		for _, addr := range d.To {
			notified[addr] = true
		}
	}
	res.Metrics["alerts_generated"] = float64(len(s.Notices))
	res.Metrics["tasks_created"] = float64(len(s.Tasks))
	res.Metrics["emails_drafted"] = float64(len(s.Drafts))
	res.Metrics["stakeholders_notified"] = float64(len(notified))
	return res
}
