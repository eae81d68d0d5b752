package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"MailchimpPublisher/internal/domain"
	"MailchimpPublisher/internal/ports"
)

const defaultAPIBase = "https://api.telegram.org"

// Notifier posts failed publication tasks to a Telegram chat via bot API.
type Notifier struct {
	apiBase  string
	botToken string
	chatID   string
	client   *http.Client
}

var _ ports.FailureNotifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		apiBase:  defaultAPIBase,
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// NotifyFailure sends a short alert naming the task and the failing step.
func (n *Notifier) NotifyFailure(ctx context.Context, task domain.PublicationTask, cause error) error {
	return n.send(ctx, failureMessage(task, cause))
}

func failureMessage(task domain.PublicationTask, cause error) string {
	var b strings.Builder
	b.WriteString("Mailchimp publication failed\n")
	fmt.Fprintf(&b, "Task: %s\n", task.ID)
	if task.PressRelease != "" {
		fmt.Fprintf(&b, "Press release: %s\n", task.PressRelease)
	}

	var perr *domain.PublishError
	if errors.As(cause, &perr) {
		fmt.Fprintf(&b, "Step: %s\n", perr.Step)
		fmt.Fprintf(&b, "Error: %v", perr.Err)
	} else {
		fmt.Fprintf(&b, "Error: %v", cause)
	}
	return b.String()
}

func (n *Notifier) send(ctx context.Context, text string) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", text)
	form.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}
