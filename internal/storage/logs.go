package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ExecutionRecord is one row of agent_execution_log.
type ExecutionRecord struct {
	SessionID string
	AgentName string
	Query     string
	Start     time.Time
	Duration  time.Duration
	Success   bool
	TimedOut  bool
	Error     string
	Summary   string
}

// AlertRecord is one row of alert_log.
type AlertRecord struct {
	ID                 string
	Category           string
	Severity           string
	Title              string
	Description        string
	AffectedEntities   []string
	RiskScore          float64
	RecommendedActions []string
	CreatedAt          time.Time
}

// ReportRecord is one row of report_archive.
type ReportRecord struct {
	ID                   string
	Query                string
	GeneratedAt          time.Time
	AgentsUsed           []string
	Content              string
	InsightsCount        int
	RecommendationsCount int
}

// TimeLayout is the text form of every DATETIME column.
const TimeLayout = "2006-01-02 15:04:05"

// LogExecution appends rec to agent_execution_log.
func (s *Store) LogExecution(ctx context.Context, rec ExecutionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_execution_log
		 (session_id, agent_name, query, execution_start, duration_ms, success, timed_out, error_message, result_summary)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.AgentName, rec.Query, rec.Start.UTC().Format(TimeLayout),
		rec.Duration.Milliseconds(), boolInt(rec.Success), boolInt(rec.TimedOut), rec.Error, rec.Summary,
	)
	if err != nil {
		return fmt.Errorf("log execution: %w", err)
	}
	return nil
}

// SaveAlerts stores alerts in one transaction. Alerts already stored are skipped.
func (s *Store) SaveAlerts(ctx context.Context, alerts []AlertRecord) error {
	if len(alerts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO alert_log
		 (alert_id, category, severity, title, description, affected_entities, risk_score, recommended_actions, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, a := range alerts {
		entities, _ := json.Marshal(a.AffectedEntities)
		actions, _ := json.Marshal(a.RecommendedActions)
		if _, err := stmt.ExecContext(ctx,
			a.ID, a.Category, a.Severity, a.Title, a.Description,
			string(entities), a.RiskScore, string(actions), a.CreatedAt.UTC().Format(TimeLayout),
		); err != nil {
			return fmt.Errorf("insert alert %s: %w", a.ID, err)
		}
	}
	return tx.Commit()
}

// RecentAlerts returns up to limit alerts, newest first.
func (s *Store) RecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT alert_id, category, severity, title, description, affected_entities, risk_score, recommended_actions, created_at
		 FROM alert_log ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []AlertRecord
	for rows.Next() {
		var a AlertRecord
		var entities, actions string
		var created any
		if err := rows.Scan(&a.ID, &a.Category, &a.Severity, &a.Title, &a.Description,
			&entities, &a.RiskScore, &actions, &created); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		json.Unmarshal([]byte(entities), &a.AffectedEntities)
		json.Unmarshal([]byte(actions), &a.RecommendedActions)
		a.CreatedAt = asTime(created)
		out = append(out, a)
	}
	return out, rows.Err()
}

// ArchiveReport stores a rendered report.
func (s *Store) ArchiveReport(ctx context.Context, rec ReportRecord) error {
	agents, _ := json.Marshal(rec.AgentsUsed)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO report_archive
		 (report_id, query, generated_at, agents_used, report_content, insights_count, recommendations_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Query, rec.GeneratedAt.UTC().Format(TimeLayout), string(agents),
		rec.Content, rec.InsightsCount, rec.RecommendationsCount,
	)
	if err != nil {
		return fmt.Errorf("archive report: %w", err)
	}
	return nil
}

// asTime accepts either a driver-parsed time or its text form.
func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if parsed, err := time.Parse(TimeLayout, t); err == nil {
			return parsed
		}
		parsed, _ := time.Parse(time.RFC3339Nano, t)
		return parsed
	case []byte:
		return asTime(string(t))
	}
	return time.Time{}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
