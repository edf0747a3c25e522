package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"carousel/internal/catalog"
	"carousel/internal/config"
)

const userAgent = "Carousel-Go/0.1.0"

// Service defines the notification surface exposed to daemon components.
type Service interface {
	NotifySessionImported(ctx context.Context, label string, counts catalog.SessionCounts) error
	NotifySessionFailed(ctx context.Context, label string, counts catalog.SessionCounts) error
	NotifyRetriesExhausted(ctx context.Context, subject string, attempts int) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		sessions: cfg.Notifications.Sessions,
		errors:   cfg.Notifications.Errors,
		retries:  cfg.Notifications.Retries,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	sessions bool
	errors   bool
	retries  bool
}

func (n *ntfyService) NotifySessionImported(ctx context.Context, label string, counts catalog.SessionCounts) error {
	if !n.sessions {
		return nil
	}
	label = displayLabel(label)
	message := fmt.Sprintf("Session imported: %s (%d of %d in library)", label, counts.Succeeded(), counts.Total)
	if counts.Failed > 0 || counts.Expired > 0 {
		message = fmt.Sprintf("%s, %d failed, %d expired", message, counts.Failed, counts.Expired)
	}
	data := payload{
		title:   "Carousel - Session Imported",
		message: message,
		tags:    []string{"carousel", "session", "imported"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySessionFailed(ctx context.Context, label string, counts catalog.SessionCounts) error {
	if !n.sessions {
		return nil
	}
	label = displayLabel(label)
	data := payload{
		title:    "Carousel - Session Failed",
		message:  fmt.Sprintf("Session failed: %s (%d failed, %d expired of %d)", label, counts.Failed, counts.Expired, counts.Total),
		tags:     []string{"carousel", "session", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRetriesExhausted(ctx context.Context, subject string, attempts int) error {
	if !n.retries {
		return nil
	}
	subject = strings.TrimSpace(subject)
	data := payload{
		title:    "Carousel - Retries Exhausted",
		message:  fmt.Sprintf("Gave up on %s after %d attempts", subject, attempts),
		tags:     []string{"carousel", "retry", "exhausted"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Carousel - Error",
		message:  builder.String(),
		tags:     []string{"carousel", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Carousel - Test",
		message:  "Notification system test",
		tags:     []string{"carousel", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func displayLabel(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return "unnamed session"
	}
	return label
}

type noopService struct{}

func (noopService) NotifySessionImported(context.Context, string, catalog.SessionCounts) error {
	return nil
}

func (noopService) NotifySessionFailed(context.Context, string, catalog.SessionCounts) error {
	return nil
}

func (noopService) NotifyRetriesExhausted(context.Context, string, int) error { return nil }

func (noopService) NotifyError(context.Context, error, string) error { return nil }

func (noopService) TestNotification(context.Context) error { return nil }
