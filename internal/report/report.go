// Package report pushes server-error notifications to a team webhook.
// Delivery is best effort: a failed report is logged and dropped, never
// surfaced to the request that triggered it.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// sendTimeout bounds one webhook delivery. Reporting runs off the
// request path, so it gets a short leash.
const sendTimeout = 5 * time.Second

// Reporter posts error payloads to a webhook URL. A Reporter with an
// empty URL is valid and does nothing.
type Reporter struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// New builds a Reporter. url may be empty to disable reporting.
func New(url string, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		url:    url,
		client: &http.Client{Timeout: sendTimeout},
		logger: logger,
	}
}

// payload mirrors the webhook's expected JSON body.
type payload struct {
	Content string `json:"content"`
	Path    string `json:"path,omitempty"`
	Status  int    `json:"status,omitempty"`
	Time    string `json:"time"`
}

// ServerError reports a 5xx-class failure. It returns immediately; the
// POST runs on its own goroutine with its own timeout, detached from
// the caller's context so an aborted request still gets reported.
func (r *Reporter) ServerError(path string, status int, msg string) {
	if r.url == "" {
		return
	}
	go r.send(payload{
		Content: msg,
		Path:    path,
		Status:  status,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

func (r *Reporter) send(p payload) {
	body, err := json.Marshal(p)
	if err != nil {
		r.logger.Warn("encode report payload", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		r.logger.Warn("build report request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warn("deliver error report", "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		r.logger.Warn("error report rejected", "status", resp.StatusCode)
	}
}
