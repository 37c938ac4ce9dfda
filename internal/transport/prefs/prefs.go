// Package prefs looks up unsubscribe preferences on the preference service.
package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"taskpulse/internal/transport"
	"taskpulse/pkg/logx"
)

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration // per-request (default 5s; this is on the send path)
}

type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
}

var _ transport.UnsubscribeChecker = (*Client)(nil)

func New(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("prefs: base url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, log: log}, nil
}

type lookupResponse struct {
	Unsubscribed bool `json:"unsubscribed"`
}

func (c *Client) IsUnsubscribed(ctx context.Context, email, category, orgID string) (bool, error) {
	q := url.Values{}
	q.Set("email", email)
	q.Set("category", category)
	q.Set("organization_id", orgID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/preferences/unsubscribed?"+q.Encode(), nil)
	if err != nil {
		return false, err
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("prefs: service returned %d", resp.StatusCode)
	}
	var out lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, err
	}
	return out.Unsubscribed, nil
}
