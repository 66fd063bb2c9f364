package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vinayprograms/agentkit/logging"

	"github.com/vinayprograms/omnisupply/internal/report"
	"github.com/vinayprograms/omnisupply/internal/risk"
	"github.com/vinayprograms/omnisupply/internal/storage"
	"github.com/vinayprograms/omnisupply/internal/supervisor"
)

func alertRecords(alerts []risk.Alert) []storage.AlertRecord {
	out := make([]storage.AlertRecord, len(alerts))
	for i, a := range alerts {
		out[i] = storage.AlertRecord{
			ID:                 a.ID,
			Category:           a.Category,
			Severity:           string(a.Severity),
			Title:              a.Title,
			Description:        a.Description,
			AffectedEntities:   a.AffectedEntities,
			RiskScore:          a.RiskScore,
			RecommendedActions: a.RecommendedActions,
			CreatedAt:          a.Timestamp,
		}
	}
	return out
}

// saveAlerts writes alerts to alert_log and publishes them when a notifier
// is connected.
func (rt *runtime) saveAlerts(ctx context.Context, alerts []risk.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	var errs []error
	if err := rt.store.SaveAlerts(ctx, alertRecords(alerts)); err != nil {
		errs = append(errs, err)
	}
	if rt.notifier != nil {
		if err := rt.notifier.Publish(ctx, alerts); err != nil {
			errs = append(errs, fmt.Errorf("publish alerts: %w", err))
		}
	}
	return errors.Join(errs...)
}

// persistReport logs every agent execution and archives the rendered report.
func (rt *runtime) persistReport(ctx context.Context, rep *supervisor.Report, sessionID string) error {
	if sessionID == "" {
		sessionID = rep.ID
	}
	var errs []error
	for _, name := range rep.Agents {
		res := rep.Results[name]
		summary := ""
		if len(res.Insights) > 0 {
			summary = res.Insights[0]
		}
		err := rt.store.LogExecution(ctx, storage.ExecutionRecord{
			SessionID: sessionID,
			AgentName: name,
			Query:     rep.Query,
			Start:     rep.GeneratedAt,
			Duration:  rep.Durations[name],
			Success:   res.Success,
			TimedOut:  res.TimedOut,
			Error:     res.Error,
			Summary:   summary,
		})
		if err != nil {
			errs = append(errs, err)
		}
	}

	insights, recs := len(rep.Aggregate.Insights), len(rep.Aggregate.Recommendations)
	if rep.Summary != nil {
		insights, recs = len(rep.Summary.KeyInsights), len(rep.Summary.Recommendations)
	}
	err := rt.store.ArchiveReport(ctx, storage.ReportRecord{
		ID:                   rep.ID,
		Query:                rep.Query,
		GeneratedAt:          rep.GeneratedAt,
		AgentsUsed:           rep.Agents,
		Content:              rep.FinalReport,
		InsightsCount:        insights,
		RecommendationsCount: recs,
	})
	if err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// archiveMeetingReport stores a meeting agent document next to the run
// reports. It runs inside the agent, so failures are only logged.
func (rt *runtime) archiveMeetingReport(doc report.Document, markdown string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := rt.store.ArchiveReport(ctx, storage.ReportRecord{
		ID:                   "meeting-" + uuid.NewString(),
		Query:                doc.Title,
		GeneratedAt:          time.Now(),
		AgentsUsed:           doc.Sources,
		Content:              markdown,
		InsightsCount:        len(doc.KeyHighlights),
		RecommendationsCount: len(doc.RecommendedActions),
	})
	if err != nil {
		logging.New().WithComponent("persist").Warn("meeting report not archived", map[string]interface{}{"error": err.Error()})
	}
}
