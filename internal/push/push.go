package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Message is the push-delivery contract: a device token plus display
// content and a data payload for the client-side handler.
type Message struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ExpoSender posts messages to an Expo-compatible push endpoint. Transient
// failures (429, 5xx) are retried a few times with exponential backoff;
// anything else fails immediately and is left to the next scanner pass.
type ExpoSender struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

func NewExpoSender(url string, logger *zap.Logger) *ExpoSender {
	return &ExpoSender{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

const maxSendAttempts = 3

func (s *ExpoSender) Send(ctx context.Context, msg Message) error {
	encoded, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(encoded))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		switch {
		case resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("push endpoint returned %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("push endpoint returned %d", resp.StatusCode))
		}
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxSendAttempts-1), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		s.logger.Warn("push delivery failed", zap.String("to", msg.To), zap.Error(err))
		return err
	}
	return nil
}
