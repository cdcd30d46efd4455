package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ShellySwitch drives Shelly-style relays over their local HTTP API and
// verifies the relay state reported back.
type ShellySwitch struct {
	relay      int
	httpClient *http.Client
}

func NewShellySwitch() *ShellySwitch {
	return &ShellySwitch{httpClient: &http.Client{Timeout: 5 * time.Second}}
}

func (s *ShellySwitch) Set(ctx context.Context, address string, on bool) error {
	turn := "off"
	if on {
		turn = "on"
	}
	endpoint := fmt.Sprintf("%s/relay/%d?turn=%s", strings.TrimRight(address, "/"), s.relay, turn)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: creating request: %v", ErrPermanent, err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("relay request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("reading relay response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if !isRetryableHTTPStatus(resp.StatusCode) {
			return fmt.Errorf("%w: relay error: %s", ErrPermanent, resp.Status)
		}
		return fmt.Errorf("relay error: %s", resp.Status)
	}

	var state struct {
		IsOn bool `json:"ison"`
	}
	if err := json.Unmarshal(body, &state); err != nil {
		return fmt.Errorf("parsing relay response: %w", err)
	}
	if state.IsOn != on {
		return fmt.Errorf("relay reports ison=%t after turn=%s", state.IsOn, turn)
	}
	return nil
}

func isRetryableHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= 500
}
