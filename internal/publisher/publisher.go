package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"

	"signalcast/api_scheduler/pkg/clients"
	"signalcast/api_scheduler/pkg/logging"
	"signalcast/api_scheduler/pkg/models"
)

// Config holds channel adapter client settings.
type Config struct {
	// BaseURL of the channel adapter gateway, e.g. http://channel-adapter:8080.
	BaseURL string

	// ServiceToken authenticates this service to the adapter.
	ServiceToken string

	// Timeout per publish call. Defaults to 30 seconds.
	Timeout time.Duration
}

// HTTPPublisher posts content to external channels through the channel
// adapter gateway. Transient adapter failures are retried in-process through
// the shared HTTP executor; hard failures surface to the publish state
// machine, which owns attempt accounting across ticks.
type HTTPPublisher struct {
	baseURL      string
	serviceToken string
	timeout      time.Duration
	httpClient   *http.Client
	executor     failsafe.Executor[*http.Response]
	logger       logging.Logger
}

// New creates a channel adapter client.
func New(cfg Config, logger logging.Logger) *HTTPPublisher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &HTTPPublisher{
		baseURL:      cfg.BaseURL,
		serviceToken: cfg.ServiceToken,
		timeout:      cfg.Timeout,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		executor: clients.NewHTTPExecutor(clients.HTTPExecutorConfig{
			MaxRetries: 2,
			BaseDelay:  200 * time.Millisecond,
			MaxDelay:   2 * time.Second,
		}),
		logger: logger,
	}
}

type publishRequest struct {
	ItemID  string      `json:"item_id"`
	OwnerID string      `json:"owner_id"`
	Payload interface{} `json:"payload"`
}

// Publish posts one item to one channel. The channel-specific payload is
// selected from the item's payload map, falling back to the default payload.
func (p *HTTPPublisher) Publish(ctx context.Context, item *models.ContentItem, channel string) error {
	payload, ok := item.Payloads[channel]
	if !ok {
		payload, ok = item.Payloads["default"]
	}
	if !ok {
		return fmt.Errorf("item %s has no payload for channel %s", item.ID, channel)
	}

	body, err := json.Marshal(publishRequest{
		ItemID:  item.ID,
		OwnerID: item.OwnerID,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("failed to encode publish request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/channels/%s/posts", p.baseURL, channel)
	resp, err := clients.ExecuteHTTP(callCtx, p.executor, func() (*http.Response, error) {
		req, reqErr := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(body))
		if reqErr != nil {
			return nil, reqErr
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+p.serviceToken)
		return p.httpClient.Do(req)
	})
	if err != nil {
		return fmt.Errorf("channel adapter call for %s failed: %w", channel, err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("channel adapter rejected publish to %s with status %d", channel, resp.StatusCode)
	}

	p.logger.WithFields(logging.Fields{
		"item_id": item.ID,
		"channel": channel,
	}).Debug("Channel publish accepted")
	return nil
}
