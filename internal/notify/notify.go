// Package notify delivers alert push notifications. The gateway is an
// external collaborator: this side only fetches the current token list
// and posts title/body; failed tokens are logged, never retried here,
// and a gateway failure never fails the caller's primary response.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// TokenSource yields the registered push tokens.
type TokenSource interface {
	NotificationTokens(ctx context.Context) ([]string, error)
}

type Sender struct {
	gatewayURL string
	client     *http.Client
	tokens     TokenSource
	log        *logrus.Logger
}

func NewSender(gatewayURL string, timeout time.Duration, tokens TokenSource, log *logrus.Logger) *Sender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Sender{
		gatewayURL: gatewayURL,
		client:     &http.Client{Timeout: timeout},
		tokens:     tokens,
		log:        log,
	}
}

type gatewayRequest struct {
	Tokens []string `json:"tokens"`
	Title  string   `json:"title"`
	Body   string   `json:"body"`
}

type gatewayResponse struct {
	Results []struct {
		Token   string `json:"token"`
		Success bool   `json:"success"`
	} `json:"results"`
}

// Send broadcasts title/body to every registered device. Returns false
// when nothing was delivered (no tokens, gateway unreachable, or every
// token failed).
func (s *Sender) Send(ctx context.Context, title, body string) bool {
	tokens, err := s.tokens.NotificationTokens(ctx)
	if err != nil {
		s.log.WithError(err).Error("fetch notification tokens")
		return false
	}
	if len(tokens) == 0 {
		s.log.Info("no registration tokens found, skipping notification")
		return false
	}
	if s.gatewayURL == "" {
		s.log.Warn("notification gateway not configured")
		return false
	}

	payload, err := json.Marshal(gatewayRequest{Tokens: tokens, Title: title, Body: body})
	if err != nil {
		s.log.WithError(err).Error("encode notification payload")
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.gatewayURL, bytes.NewReader(payload))
	if err != nil {
		s.log.WithError(err).Error("build notification request")
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.WithError(err).Error("post to notification gateway")
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.log.WithField("status", resp.StatusCode).Error("notification gateway rejected batch")
		return false
	}

	var gr gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		// Gateway accepted the batch but sent no per-token detail.
		return true
	}
	failed := 0
	for _, r := range gr.Results {
		if !r.Success {
			failed++
			s.log.WithField("token", r.Token).Warn("notification delivery failed")
		}
	}
	if failed > 0 {
		s.log.WithFields(logrus.Fields{"failed": failed, "total": len(tokens)}).Warn("partial notification delivery")
	}
	return failed < len(tokens)
}

// AlertMessage formats the push text for one classified attack.
func AlertMessage(label, hostName, dstIP, timestamp string, score float64) (title, body string) {
	title = fmt.Sprintf("%s attack detected", label)
	body = fmt.Sprintf("%s (%s) was hit by %s at %s with score %.2f; check for abnormal traffic.",
		hostName, dstIP, label, timestamp, score)
	return title, body
}
