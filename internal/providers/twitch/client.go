// Package twitch implements the provider contract for Twitch: the current
// state of a credential is the set of followed channels that are live,
// fetched from the Helix streams/followed endpoint.
package twitch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	apperrors "streamwire/internal/common/errors"
	"streamwire/internal/providers"
	"streamwire/internal/storage"
)

const ProviderName = "twitch"

type Config struct {
	ClientID string
	BaseURL  string // Helix base URL, override for tests
	Timeout  time.Duration
}

type Client struct {
	config     *Config
	httpClient *http.Client
}

// streamData is one row of the Helix streams response.
type streamData struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	UserName     string `json:"user_name"`
	GameID       string `json:"game_id"`
	Type         string `json:"type"`
	Title        string `json:"title"`
	ViewerCount  int    `json:"viewer_count"`
	StartedAt    string `json:"started_at"`
	Language     string `json:"language"`
	ThumbnailURL string `json:"thumbnail_url"`
}

type streamsResponse struct {
	Data []streamData `json:"data"`
}

func NewClient(config *Config) (*Client, error) {
	if config == nil || config.ClientID == "" {
		return nil, apperrors.ConfigError("twitch client id is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.twitch.tv/helix"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

func (c *Client) Name() string {
	return ProviderName
}

// FetchCurrentState returns the live channels followed by the credential's
// Twitch user, one entity per channel keyed by user name.
func (c *Client) FetchCurrentState(ctx context.Context, cred *storage.Credential) ([]providers.Entity, error) {
	endpoint := fmt.Sprintf("%s/streams/followed?%s", c.config.BaseURL,
		url.Values{"user_id": {cred.ProviderUserID}}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperrors.InternalError("failed to build twitch request", err)
	}
	req.Header.Set("Client-ID", c.config.ClientID)
	req.Header.Set("Authorization", "Bearer "+cred.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.TransientError(ProviderName, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, apperrors.AuthExpiredError(ProviderName, nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, apperrors.RateLimitedError(ProviderName)
	case resp.StatusCode >= 500:
		return nil, apperrors.TransientError(ProviderName,
			fmt.Errorf("twitch returned status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, apperrors.InternalError(
			fmt.Sprintf("twitch returned unexpected status %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.TransientError(ProviderName, err)
	}

	var parsed streamsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, apperrors.InternalError("failed to parse twitch response", err)
	}

	entities := make([]providers.Entity, 0, len(parsed.Data))
	for _, stream := range parsed.Data {
		entities = append(entities, providers.Entity{
			Key: stream.UserName,
			Attributes: map[string]string{
				"title":        stream.Title,
				"user_name":    stream.UserName,
				"game_id":      stream.GameID,
				"viewer_count": strconv.Itoa(stream.ViewerCount),
				"started_at":   stream.StartedAt,
				"language":     stream.Language,
				"url":          "https://www.twitch.tv/" + stream.UserName,
			},
		})
	}
	return entities, nil
}
