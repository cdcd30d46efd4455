package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fermenter_controller/internal/models"
)

const DefaultPushoverURL = "https://api.pushover.net/1/messages.json"

// Pushover posts a one-line message per event. It is a no-op without
// credentials.
type Pushover struct {
	token      string
	userKey    string
	endpoint   string
	httpClient *http.Client
}

func NewPushover(token, userKey, endpoint string) *Pushover {
	if endpoint == "" {
		endpoint = DefaultPushoverURL
	}
	return &Pushover{
		token:      token,
		userKey:    userKey,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *Pushover) Enabled() bool {
	return p.token != "" && p.userKey != ""
}

func (p *Pushover) Notify(ctx context.Context, e models.ControlEvent) error {
	if !p.Enabled() {
		return nil
	}

	data := url.Values{}
	data.Set("token", p.token)
	data.Set("user", p.userKey)
	data.Set("title", "Fermenter")
	data.Set("message", Message(e))
	if e.Type == models.EventSafetyShutdownEngaged || e.Type == models.EventCommandFailed {
		data.Set("priority", "1")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pushover error: %s", resp.Status)
	}
	return nil
}
