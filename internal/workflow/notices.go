package workflow

import (
	"fmt"
	"strings"

	"github.com/vinayprograms/omnisupply/internal/agent"
	"github.com/vinayprograms/omnisupply/internal/structured"
)

// Level is how much mail a stakeholder wants.
type Level string

const (
	LevelAll      Level = "all"
	LevelCritical Level = "critical_only"
	LevelDigest   Level = "digest"
)

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	return l == LevelAll || l == LevelCritical || l == LevelDigest
}

// Stakeholder is a person who can receive notices and tasks.
type Stakeholder struct {
	Name  string
	Role  string
	Email string
	Level Level
}

// DefaultStakeholders is used when none are configured.
var DefaultStakeholders = []Stakeholder{
	{Name: "Sarah Chen", Role: "VP Operations", Email: "sarah.chen@omnisupply.com", Level: LevelAll},
	{Name: "Michael Torres", Role: "CFO", Email: "michael.torres@omnisupply.com", Level: LevelCritical},
	{Name: "Jessica Park", Role: "Supply Chain Manager", Email: "jessica.park@omnisupply.com", Level: LevelAll},
	{Name: "David Kim", Role: "Data Analyst", Email: "david.kim@omnisupply.com", Level: LevelDigest},
	{Name: "Emily Rodriguez", Role: "CEO", Email: "emily.rodriguez@omnisupply.com", Level: LevelCritical},
}

// Notice severities.
const (
	SeverityInfo     = "INFO"
	SeverityWarning  = "WARNING"
	SeverityCritical = "CRITICAL"
)

// Notice is an alert addressed to stakeholder roles.
type Notice struct {
	ID                string   `json:"-"`
	Severity          string   `json:"severity"`
	Title             string   `json:"title"`
	Message           string   `json:"message"`
	AffectedArea      string   `json:"affected_area"`
	Stakeholders      []string `json:"stakeholders"`
	RecommendedAction string   `json:"recommended_action,omitempty"`
}

// Task is an assignment to a stakeholder role.
type Task struct {
	ID          string   `json:"-"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    string   `json:"priority"`
	Assignee    string   `json:"assignee"`
	DueDate     string   `json:"due_date"`
	Tags        []string `json:"tags,omitempty"`
}

// Draft is an email ready for review. Nothing is sent.
type Draft struct {
	To       []string `json:"-"`
	Subject  string   `json:"subject"`
	Body     string   `json:"body"`
	Priority string   `json:"priority"`
}

// Recipients returns the emails of stakeholders whose role the notice names
// and who take either every notice or, for critical ones, critical notices.
func Recipients(n Notice, people []Stakeholder) []string {
	var out []string
	for _, p := range people {
		if !containsFold(n.Stakeholders, p.Role) {
			continue
		}
		if n.Severity == SeverityCritical || p.Level == LevelAll {
			out = append(out, p.Email)
		}
	}
	return out
}

// Assignee returns the email of the first stakeholder holding the task's role.
func Assignee(t Task, people []Stakeholder) (string, bool) {
	for _, p := range people {
		if strings.EqualFold(p.Role, t.Assignee) {
			return p.Email, true
		}
	}
	return "", false
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), s) {
			return true
		}
	}
	return false
}

func roles(people []Stakeholder) string {
	out := make([]string, len(people))
	for i, p := range people {
		out[i] = p.Role
	}
	return strings.Join(out, ", ")
}

type noticeBatch struct {
	Alerts []Notice `json:"alerts"`
}

type taskBatch struct {
	Tasks []Task `json:"tasks"`
}

var noticeSchema = structured.MustSchema("alert_batch",
	"supply chain alerts addressed to stakeholder roles", `{
	"type": "object",
	"required": ["alerts"],
	"properties": {
		"alerts": {
			"type": "array",
			"minItems": 1,
			"maxItems": 3,
			"items": {
				"type": "object",
				"required": ["severity", "title", "message", "affected_area", "stakeholders"],
				"properties": {
					"severity": {"enum": ["INFO", "WARNING", "CRITICAL"]},
					"title": {"type": "string", "minLength": 1},
					"message": {"type": "string"},
					"affected_area": {"type": "string"},
					"stakeholders": {"type": "array", "items": {"type": "string"}},
					"recommended_action": {"type": "string"}
				}
			}
		}
	}
}`)

var taskSchema = structured.MustSchema("task_batch",
	"actionable tasks assigned to stakeholder roles", `{
	"type": "object",
	"required": ["tasks"],
	"properties": {
		"tasks": {
			"type": "array",
			"minItems": 1,
			"maxItems": 5,
			"items": {
				"type": "object",
				"required": ["title", "description", "priority", "assignee", "due_date"],
				"properties": {
					"title": {"type": "string", "minLength": 1},
					"description": {"type": "string"},
					"priority": {"enum": ["HIGH", "MEDIUM", "LOW"]},
					"assignee": {"type": "string"},
					"due_date": {"type": "string"},
					"tags": {"type": "array", "items": {"type": "string"}}
				}
			}
		}
	}
}`)

var draftSchema = structured.MustSchema("email_draft",
	"a professional email with subject, markdown body and priority", `{
	"type": "object",
	"required": ["subject", "body", "priority"],
	"properties": {
		"subject": {"type": "string", "minLength": 1},
		"body": {"type": "string"},
		"priority": {"enum": ["HIGH", "NORMAL", "LOW"]}
	}
}`)

func noticePrompt(query string, people []Stakeholder, prior agent.Prior, limit int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Generate supply chain alerts based on this request.\n\nUser request: %s\n\n", query)
	fmt.Fprintf(&sb, "Available stakeholder roles: %s\n", roles(people))
	writeFindings(&sb, prior)
	fmt.Fprintf(&sb, "\nGenerate 1-%d alerts. Each needs a severity (INFO, WARNING, CRITICAL), a title and message, the affected business area, the stakeholder roles to notify and a recommended action.", limit)
	return sb.String()
}

func taskPrompt(query string, people []Stakeholder, prior agent.Prior, limit int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Create actionable tasks based on this request.\n\nUser request: %s\n\n", query)
	fmt.Fprintf(&sb, "Available teams and roles for assignment: %s\n", roles(people))
	writeFindings(&sb, prior)
	fmt.Fprintf(&sb, "\nGenerate 1-%d tasks. Each needs a title and description, a priority (HIGH, MEDIUM, LOW), an assignee role from the list, a due date (YYYY-MM-DD) and tags.", limit)
	return sb.String()
}

func noticeDraftPrompt(n Notice, to []string) string {
	return fmt.Sprintf(`Draft an email notification for this alert.

Alert:
- ID: %s
- Severity: %s
- Title: %s
- Message: %s
- Affected area: %s
- Recommended action: %s

Recipients: %s

Write a clear subject line, a concise markdown body with a call to action, and an appropriate priority.`,
		n.ID, n.Severity, n.Title, n.Message, n.AffectedArea, n.RecommendedAction, strings.Join(to, ", "))
}

func taskDraftPrompt(t Task, to string) string {
	return fmt.Sprintf(`Draft a task assignment email.

Task:
- ID: %s
- Title: %s
- Description: %s
- Priority: %s
- Due date: %s
- Tags: %s

Recipient: %s

Include the task details and expectations.`,
		t.ID, t.Title, t.Description, t.Priority, t.DueDate, strings.Join(t.Tags, ", "), to)
}

func generalDraftPrompt(query string, kind Kind, people []Stakeholder, prior agent.Prior) string {
	var sb strings.Builder
	if kind == KindMeeting {
		sb.WriteString("Draft a meeting invitation with an agenda, discussion points and any preparation required.\n\n")
	} else {
		sb.WriteString("Draft an email based on this request.\n\n")
	}
	fmt.Fprintf(&sb, "User request: %s\n\nRecipients:\n", query)
	for _, p := range people {
		fmt.Fprintf(&sb, "- %s (%s): %s\n", p.Name, p.Role, p.Email)
	}
	writeFindings(&sb, prior)
	return sb.String()
}

// writeFindings adds the insights and recommendations of earlier agents.
func writeFindings(sb *strings.Builder, prior agent.Prior) {
	results := prior.Results()
	if len(results) == 0 {
		return
	}
	sb.WriteString("\nFindings from other agents:\n")
	for _, r := range results {
		for _, in := range r.Insights[:min(3, len(r.Insights))] {
			fmt.Fprintf(sb, "- [%s] %s\n", r.AgentName, in)
		}
		for _, rec := range r.Recommendations {
			fmt.Fprintf(sb, "- [%s] recommends: %s\n", r.AgentName, rec)
		}
	}
}

// riskSeverity maps the risk agent's overall level ordinal to a notice severity.
func riskSeverity(level float64) string {
	switch {
	case level >= 3:
		return SeverityCritical
	case level >= 2:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

var levelNames = []string{"LOW", "MEDIUM", "HIGH", "CRITICAL"}

// fallbackNotice builds a notice from the risk agent's result when there is
// one, otherwise from the request itself.
func fallbackNotice(query string, prior agent.Prior) Notice {
	r, ok := prior.Lookup("risk_agent")
	if !ok || !r.Success || len(r.Insights) == 0 {
		return Notice{
			Severity:     SeverityInfo,
			Title:        "Operations notice",
			Message:      query,
			AffectedArea: "operations",
			Stakeholders: []string{"VP Operations", "Supply Chain Manager"},
		}
	}
	level := r.Metrics["overall_level"]
	n := Notice{
		Severity:     riskSeverity(level),
		Title:        "Supply chain risk " + levelNames[min(max(int(level), 0), 3)],
		Message:      r.Insights[0],
		AffectedArea: "supply chain",
		Stakeholders: []string{"VP Operations", "Supply Chain Manager"},
	}
	if n.Severity == SeverityCritical {
		n.Stakeholders = append(n.Stakeholders, "CFO", "CEO")
	}
	if len(r.Recommendations) > 0 {
		n.RecommendedAction = r.Recommendations[0]
	}
	return n
}

// ownerOf maps an agent to the role that usually acts on its findings.
func ownerOf(source string) string {
	switch source {
	case "risk_agent":
		return "Supply Chain Manager"
	case "finance_agent":
		return "CFO"
	case "data_analyst":
		return "Data Analyst"
	default:
		return "VP Operations"
	}
}

// fallbackTasks turns earlier agents' recommendations into tasks, or the
// request into a single task when there are none.
func fallbackTasks(query string, prior agent.Prior, due string, limit int) []Task {
	var out []Task
	for _, r := range prior.Results() {
		for _, rec := range r.Recommendations {
			if len(out) == limit {
				return out
			}
			out = append(out, Task{
				Title:       rec,
				Description: fmt.Sprintf("Follow up on %s: %s", r.AgentName, rec),
				Priority:    "MEDIUM",
				Assignee:    ownerOf(r.AgentName),
				DueDate:     due,
				Tags:        []string{r.AgentName},
			})
		}
	}
	if len(out) == 0 {
		out = append(out, Task{
			Title:       query,
			Description: query,
			Priority:    "MEDIUM",
			Assignee:    "VP Operations",
			DueDate:     due,
		})
	}
	return out
}

func fallbackNoticeDraft(n Notice) Draft {
	body := fmt.Sprintf("**%s** (%s)\n\n%s\n\nAffected area: %s\n", n.Title, n.Severity, n.Message, n.AffectedArea)
	if n.RecommendedAction != "" {
		body += "\nRecommended action: " + n.RecommendedAction + "\n"
	}
	priority := "NORMAL"
	if n.Severity == SeverityCritical {
		priority = "HIGH"
	}
	return Draft{Subject: fmt.Sprintf("[%s] %s", n.Severity, n.Title), Body: body, Priority: priority}
}

func fallbackTaskDraft(t Task) Draft {
	body := fmt.Sprintf("You have been assigned %s: **%s**\n\n%s\n\nPriority: %s\nDue: %s\n", t.ID, t.Title, t.Description, t.Priority, t.DueDate)
	priority := "NORMAL"
	if t.Priority == "HIGH" {
		priority = "HIGH"
	}
	return Draft{Subject: fmt.Sprintf("Task assigned: %s", t.Title), Body: body, Priority: priority}
}

func fallbackGeneralDraft(query string, kind Kind, prior agent.Prior) Draft {
	var sb strings.Builder
	sb.WriteString(query + "\n")
	for _, r := range prior.Results() {
		for _, in := range r.Insights[:min(3, len(r.Insights))] {
			fmt.Fprintf(&sb, "\n- %s", in)
		}
	}
	subject := "OmniSupply update"
	if kind == KindMeeting {
		subject = "Meeting agenda"
	}
	return Draft{Subject: subject, Body: sb.String(), Priority: "NORMAL"}
}
