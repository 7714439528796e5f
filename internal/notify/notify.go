// Package notify reports pipeline run outcomes to the console and an
// optional webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/deckhaven/cardsync/internal/etl"
)

// Notifier delivers run summaries. An empty webhook URL means log-only.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// payload is the webhook body. Elapsed times are flattened to seconds so
// receivers don't have to parse Go duration encoding.
type payload struct {
	RunID       string         `json:"run_id"`
	Status      string         `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	ElapsedSecs float64        `json:"elapsed_secs"`
	Stages      []stagePayload `json:"stages"`
}

type stagePayload struct {
	Name        string  `json:"name"`
	Status      string  `json:"status"`
	Rows        int64   `json:"rows"`
	Skipped     int64   `json:"skipped"`
	Error       string  `json:"error,omitempty"`
	ElapsedSecs float64 `json:"elapsed_secs"`
}

// Send logs the run outcome and, when a webhook is configured, posts it as
// JSON. Delivery failure is logged but never fails the run that produced the
// summary.
func (n *Notifier) Send(ctx context.Context, summary etl.RunSummary) {
	log := zap.L().With(
		zap.String("component", "notify"),
		zap.String("run_id", summary.RunID),
	)

	fields := []zap.Field{
		zap.String("status", summary.Status),
		zap.Duration("elapsed", summary.Elapsed),
		zap.Int("stages", len(summary.Stages)),
	}
	if summary.Status == "complete" {
		log.Info("pipeline run complete", fields...)
	} else {
		log.Warn("pipeline run did not complete", fields...)
	}

	if n.webhookURL == "" {
		return
	}
	if err := n.post(ctx, summary); err != nil {
		log.Error("webhook delivery failed", zap.Error(err))
		return
	}
	log.Info("webhook delivered")
}

func (n *Notifier) post(ctx context.Context, summary etl.RunSummary) error {
	body := payload{
		RunID:       summary.RunID,
		Status:      summary.Status,
		StartedAt:   summary.StartedAt,
		ElapsedSecs: summary.Elapsed.Seconds(),
	}
	for _, st := range summary.Stages {
		body.Stages = append(body.Stages, stagePayload{
			Name:        st.Name,
			Status:      st.Status,
			Rows:        st.Rows,
			Skipped:     st.Skipped,
			Error:       st.Error,
			ElapsedSecs: st.Elapsed.Seconds(),
		})
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "notify: marshal summary")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(raw))
	if err != nil {
		return eris.Wrap(err, "notify: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "notify: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("notify: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
