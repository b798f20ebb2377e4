package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	apperrors "streamwire/internal/common/errors"
	"streamwire/internal/common/logging"
	"streamwire/internal/storage"
)

// KindSendDiscordMessage posts the rendered content to a Discord webhook.
const KindSendDiscordMessage = "send_discord_message"

// DiscordExecutor delivers content through a Discord webhook. The webhook URL
// is the response credential's token (Discord linking stores the webhook URL
// there, no OAuth token exchange involved). Calls go through a circuit
// breaker so a dead webhook stops consuming tick time quickly.
type DiscordExecutor struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     logging.Logger
}

// discordMessage is the webhook payload. Embeds carry the title; content is
// the plain message line.
type discordMessage struct {
	Content string         `json:"content"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title string `json:"title"`
}

func NewDiscordExecutor(timeout time.Duration) *DiscordExecutor {
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	logger := logging.GetGlobalLogger().WithFields(logging.String("executor", KindSendDiscordMessage))

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    KindSendDiscordMessage,
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				logging.String("breaker", name),
				logging.String("from", from.String()),
				logging.String("to", to.String()),
			)
		},
	})

	return &DiscordExecutor{
		httpClient: &http.Client{Timeout: timeout},
		breaker:    breaker,
		logger:     logger,
	}
}

func (e *DiscordExecutor) Kind() string {
	return KindSendDiscordMessage
}

func (e *DiscordExecutor) Execute(ctx context.Context, content Content, cred *storage.Credential) error {
	webhookURL := cred.Token
	if webhookURL == "" {
		return apperrors.ActionFailedError(KindSendDiscordMessage,
			fmt.Errorf("response credential has no webhook url"))
	}

	payload := discordMessage{
		Content: content.Message,
	}
	if content.Title != "" {
		payload.Embeds = []discordEmbed{{Title: content.Title}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return apperrors.ActionFailedError(KindSendDiscordMessage, err)
	}

	_, err = e.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := e.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("discord webhook returned status %d", resp.StatusCode)
		}
		return nil, nil
	})
	if err != nil {
		return apperrors.ActionFailedError(KindSendDiscordMessage, err)
	}
	return nil
}
