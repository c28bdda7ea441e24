// Package notify delivers notification messages to chat channels.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/simplesurance/stagepromote/internal/logfields"
)

const defHTTPClientTimeout = 30 * time.Second

// maxErrBodyLen is the max. number of bytes of a response body that are
// included in an error.
const maxErrBodyLen = 512

// Slack sends messages to a Slack incoming webhook.
type Slack struct {
	webhookURL string
	clt        *http.Client
	logger     *zap.Logger
}

func NewSlack(webhookURL string) *Slack {
	return &Slack{
		webhookURL: webhookURL,
		clt:        &http.Client{Timeout: defHTTPClientTimeout},
		logger:     zap.L().Named("slack_notifier"),
	}
}

type slackMessage struct {
	Text string `json:"text"`
}

// Notify posts msg to the webhook.
// Slack's mrkdwn link syntax (<URL|TEXT>) can be used in msg.
func (s *Slack) Notify(ctx context.Context, msg string) error {
	body, err := json.Marshal(slackMessage{Text: msg})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.clt.Do(req)
	if err != nil {
		return err
	}

	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBodyLen))
		return fmt.Errorf("slack webhook returned status code %d: %s", resp.StatusCode, string(respBody))
	}

	s.logger.Debug("notification sent", logfields.Event("slack_notification_sent"))

	return nil
}

// Nop discards all messages.
type Nop struct{}

func (Nop) Notify(context.Context, string) error {
	return nil
}
