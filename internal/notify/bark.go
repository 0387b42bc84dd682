package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// BarkNotifier pushes messages to an iOS device through a Bark server.
type BarkNotifier struct {
	endpoint string
	group    string
	client   *http.Client
}

type barkPush struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Group string `json:"group,omitempty"`
}

type barkReply struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewBarkNotifier creates a notifier for endpoint, the Bark server URL ending
// in the device key, e.g. https://api.day.app/<key>.
func NewBarkNotifier(endpoint string) (*BarkNotifier, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("bark url is empty")
	}
	if u, err := url.ParseRequestURI(endpoint); err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid bark url %q", endpoint)
	}
	return &BarkNotifier{
		endpoint: endpoint,
		group:    "browsercron",
		client:   &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (b *BarkNotifier) Send(ctx context.Context, title, body string) error {
	payload, err := json.Marshal(barkPush{Title: title, Body: body, Group: b.group})
	if err != nil {
		return fmt.Errorf("encode bark push: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create bark request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("send bark notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("bark api returned status: %d", resp.StatusCode)
	}
	// Bark answers 200 with its own code on rejected pushes.
	var reply barkReply
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&reply); err == nil && reply.Code >= 400 {
		return fmt.Errorf("bark rejected push: %d %s", reply.Code, reply.Message)
	}
	return nil
}
