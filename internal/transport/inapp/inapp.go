// Package inapp is a client for the in-app notification provider's bulk
// trigger endpoint (Novu-style: one POST covering the whole recipient batch).
package inapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"taskpulse/internal/transport"
	"taskpulse/pkg/logx"
)

type Config struct {
	BaseURL  string
	APIKey   string
	Workflow string        // provider workflow identifier (default "task-status-change")
	Timeout  time.Duration // per-request (default 15s)
}

type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
}

var _ transport.InAppNotifier = (*Client)(nil)

func New(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("inapp: base url is required")
	}
	if strings.TrimSpace(cfg.Workflow) == "" {
		cfg.Workflow = "task-status-change"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, log: log}, nil
}

type triggerEvent struct {
	Name          string                 `json:"name"`
	To            map[string]string      `json:"to"`
	Payload       transport.InAppPayload `json:"payload"`
	TransactionID string                 `json:"transactionId,omitempty"`
}

type triggerBulkRequest struct {
	Events []triggerEvent `json:"events"`
}

func (c *Client) TriggerBulk(ctx context.Context, events []transport.InAppEvent) error {
	if len(events) == 0 {
		return nil
	}

	req := triggerBulkRequest{Events: make([]triggerEvent, 0, len(events))}
	for _, e := range events {
		req.Events = append(req.Events, triggerEvent{
			Name:          c.cfg.Workflow,
			To:            map[string]string{"subscriberId": e.RecipientKey},
			Payload:       e.Payload,
			TransactionID: e.TransactionID,
		})
	}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/v1/events/trigger/bulk", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "ApiKey "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("inapp: provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}
