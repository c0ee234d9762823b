package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// WebhookSink posts events to an HTTP endpoint.
type WebhookSink struct {
	url    string
	client *http.Client
}

type webhookPayload struct {
	MsgType string      `json:"msgtype"`
	Text    webhookText `json:"text"`
	Event   Event       `json:"event"`
}

type webhookText struct {
	Content string `json:"content"`
}

// NewWebhookSink constructs a webhook sink.
func NewWebhookSink(url string) (*WebhookSink, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("webhook sink: empty url")
	}
	return &WebhookSink{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Name implements Sink.
func (s *WebhookSink) Name() string { return "webhook" }

// Send implements Sink.
func (s *WebhookSink) Send(ctx context.Context, event Event, content string) error {
	if s == nil || s.url == "" {
		return errors.New("webhook sink: empty url")
	}
	body, err := json.Marshal(webhookPayload{
		MsgType: "text",
		Text:    webhookText{Content: content},
		Event:   event,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook sink: status %d", resp.StatusCode)
	}
	return nil
}
