package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

type Notifier interface {
	Send(ctx context.Context, recipient string, message string) error
}

// HTTPNotifier posts confirmations to an SMS/voice gateway.
type HTTPNotifier struct {
	BaseURL string
	Client  *http.Client
}

func (h HTTPNotifier) Send(ctx context.Context, recipient string, message string) error {
	if h.Client == nil {
		h.Client = &http.Client{Timeout: 10 * time.Second}
	}

	b, _ := json.Marshal(map[string]string{
		"recipient": recipient,
		"message":   message,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+"/send", bytes.NewBuffer(b))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	resp, err := h.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.New("notify service error")
	}
	return nil
}

// LogNotifier only logs the message. Used when no gateway is configured.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (l LogNotifier) Send(ctx context.Context, recipient string, message string) error {
	l.Logger.Info().Str("recipient", recipient).Str("message", message).Msg("notification")
	return nil
}
