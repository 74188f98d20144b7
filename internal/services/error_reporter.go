package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/modgate/backend/internal/models"
	"go.uber.org/zap"
)

const reportQueueSize = 64

// ErrorReporter forwards handler failures to an operator webhook. Report never
// blocks: when the queue is full the report is dropped and only logged.
type ErrorReporter struct {
	webhookURL string
	httpClient *http.Client
	queue      chan models.ErrorReport
	log        *zap.Logger
}

func NewErrorReporter(webhookURL string, log *zap.Logger) *ErrorReporter {
	return &ErrorReporter{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		queue:      make(chan models.ErrorReport, reportQueueSize),
		log:        log,
	}
}

func (r *ErrorReporter) Report(_ context.Context, rep models.ErrorReport) {
	if r.webhookURL == "" {
		return
	}
	select {
	case r.queue <- rep:
	default:
		r.log.Warn("error report dropped, queue full", zap.String("command", rep.Command))
	}
}

// Run delivers queued reports until ctx is done.
func (r *ErrorReporter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rep := <-r.queue:
			if err := r.send(ctx, rep); err != nil {
				r.log.Warn("error webhook failed", zap.String("command", rep.Command), zap.Error(err))
			}
		}
	}
}

func (r *ErrorReporter) send(ctx context.Context, rep models.ErrorReport) error {
	title := "❗ Command error: /" + rep.Command
	if rep.Panic {
		title = "💥 Command panic: /" + rep.Command
	}
	fields := []map[string]any{
		{"name": "Kind", "value": string(rep.Kind), "inline": true},
		{"name": "Actor", "value": rep.ActorID, "inline": true},
	}
	if rep.CommunityID != "" {
		fields = append(fields, map[string]any{"name": "Community", "value": rep.CommunityID, "inline": true})
	}
	if rep.CaseID != "" {
		fields = append(fields, map[string]any{"name": "Case ID", "value": rep.CaseID, "inline": true})
	}
	body, err := json.Marshal(map[string]any{
		"embeds": []map[string]any{{
			"title":       title,
			"description": "```" + truncate(rep.Error, 1800) + "```",
			"color":       0xE74C3C,
			"fields":      fields,
			"timestamp":   rep.OccurredAt.Format(time.RFC3339),
		}},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
