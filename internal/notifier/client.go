package notifier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Notification priorities
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Client sends push notifications to an ntfy-compatible endpoint.
// A nil Client is valid and drops notifications after logging them.
type Client struct {
	baseURL string
	topic   string
	client  *http.Client
	logger  *logrus.Entry
}

// Config holds the configuration for the notification client
type Config struct {
	URL        string
	Topic      string
	TimeoutSec int
	Logger     *logrus.Entry
}

// NewClient creates a notification client
func NewClient(cfg *Config) *Client {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		topic:   cfg.Topic,
		client:  &http.Client{Timeout: timeout},
		logger:  cfg.Logger.WithField("component", "notifier"),
	}
}

// Notify sends a notification with the given title and priority
func (c *Client) Notify(ctx context.Context, title, message, priority string) error {
	if c == nil {
		logrus.WithField("component", "notifier").Debugf("Notifier disabled, dropping notification: %s", title)
		return nil
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, c.topic)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Title", title)
	req.Header.Set("Priority", priority)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned status %d", resp.StatusCode)
	}

	c.logger.Debugf("Notification sent: %s", title)
	return nil
}
