// Package scheduler
package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/leadpilot/pipeline-journey/config"
	"github.com/leadpilot/pipeline-journey/models"
	"github.com/leadpilot/pipeline-journey/utils"
)

// WebhookPayload is the JSON body posted to the messaging webhook for one
// scheduled message. Lead identity comes from the snapshot taken when the
// message was scheduled.
type WebhookPayload struct {
	ScheduleID uint     `json:"schedule_id"`
	LeadID     uint     `json:"lead_id"`
	LeadName   string   `json:"lead_name"`
	LeadPhone  string   `json:"lead_phone"`
	LeadEmail  string   `json:"lead_email"`
	LeadTags   []string `json:"lead_tags,omitempty"`
	StageID    uint     `json:"stage_id"`
	Title      string   `json:"title"`
	Body       string   `json:"body"`
	Type       string   `json:"type"`
	MediaURL   *string  `json:"media_url,omitempty"`
	SentAt     string   `json:"sent_at"`
}

// WebhookClient delivers one scheduled message to its webhook URL.
type WebhookClient interface {
	Deliver(ctx context.Context, msg *models.ScheduledMessage) (statusCode int, err error)
}

type httpWebhookClient struct {
	cfg    config.WebhookConfig
	client *http.Client
}

// NewWebhookClient creates an HTTP webhook client with the configured timeout
func NewWebhookClient(cfg config.WebhookConfig) WebhookClient {
	return &httpWebhookClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Deliver posts the message payload to the row's webhook URL. Any 2xx
// response counts as delivered; other statuses are returned as errors with
// the status code so the caller can record it.
func (c *httpWebhookClient) Deliver(ctx context.Context, msg *models.ScheduledMessage) (int, error) {
	payload := WebhookPayload{
		ScheduleID: msg.ID,
		LeadID:     msg.LeadID,
		LeadName:   msg.LeadName,
		LeadPhone:  msg.LeadPhone,
		LeadEmail:  msg.LeadEmail,
		LeadTags:   msg.LeadTags,
		StageID:    msg.StageID,
		Title:      msg.Title,
		Body:       msg.Body,
		Type:       string(msg.Type),
		MediaURL:   msg.MediaURL,
		SentAt:     utils.UTCNowRFC3339(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, msg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}
