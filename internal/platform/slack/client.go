// Package slack implements domain.ChatClient on the Slack Web API.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/listingbot/internal/domain"
)

// DefaultBaseURL is the Slack Web API root.
const DefaultBaseURL = "https://slack.com/api"

// Client posts review messages to one Slack channel.
type Client struct {
	baseURL    string
	token      string
	channel    string
	httpClient *http.Client

	mu        sync.Mutex
	botUserID string
}

// NewClient creates a Slack client. baseURL may be empty for the public API.
func NewClient(baseURL, token, channel string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		channel:    channel,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// apiResponse is the envelope shared by every Web API method.
type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// Post sends msg and returns the message timestamp, which Slack uses as the
// message id within a channel.
func (c *Client) Post(ctx context.Context, msg domain.ChatMessage) (string, error) {
	payload := map[string]any{
		"channel":      c.channel,
		"text":         msg.Text,
		"unfurl_links": false,
		"unfurl_media": false,
	}
	if len(msg.Blocks) > 0 {
		payload["blocks"] = renderBlocks(msg.Blocks)
	}

	var resp struct {
		apiResponse
		TS string `json:"ts"`
	}
	if err := c.call(ctx, "chat.postMessage", payload, &resp); err != nil {
		return "", fmt.Errorf("slack: post message: %w", err)
	}
	return resp.TS, nil
}

// Reactions returns the users behind each reaction on the message, leaving
// out the bot's own reactions.
func (c *Client) Reactions(ctx context.Context, messageID string) (map[string][]string, error) {
	botID, err := c.botUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("slack: reactions: %w", err)
	}

	q := url.Values{}
	q.Set("channel", c.channel)
	q.Set("timestamp", messageID)
	q.Set("full", "true")

	var resp struct {
		apiResponse
		Message struct {
			Reactions []struct {
				Name  string   `json:"name"`
				Users []string `json:"users"`
			} `json:"reactions"`
		} `json:"message"`
	}
	if err := c.get(ctx, "reactions.get", q, &resp); err != nil {
		return nil, fmt.Errorf("slack: get reactions %s: %w", messageID, err)
	}

	out := make(map[string][]string, len(resp.Message.Reactions))
	for _, r := range resp.Message.Reactions {
		// Skin-tone variants ("+1::skin-tone-2") count as the base reaction.
		name, _, _ := strings.Cut(r.Name, "::")
		for _, u := range r.Users {
			if u == botID {
				continue
			}
			out[name] = append(out[name], u)
		}
	}
	return out, nil
}

// React adds a reaction as the bot. Reacting twice is not an error.
func (c *Client) React(ctx context.Context, messageID, name string) error {
	payload := map[string]any{
		"channel":   c.channel,
		"timestamp": messageID,
		"name":      name,
	}
	err := c.call(ctx, "reactions.add", payload, &apiResponse{})
	if err != nil && !strings.Contains(err.Error(), "already_reacted") {
		return fmt.Errorf("slack: add reaction %s: %w", name, err)
	}
	return nil
}

// Delete removes a message posted by the bot.
func (c *Client) Delete(ctx context.Context, messageID string) error {
	payload := map[string]any{"channel": c.channel, "ts": messageID}
	if err := c.call(ctx, "chat.delete", payload, &apiResponse{}); err != nil {
		return fmt.Errorf("slack: delete message %s: %w", messageID, err)
	}
	return nil
}

// botUser resolves and caches the bot's user id via auth.test.
func (c *Client) botUser(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.botUserID != "" {
		return c.botUserID, nil
	}

	var resp struct {
		apiResponse
		UserID string `json:"user_id"`
	}
	if err := c.call(ctx, "auth.test", map[string]any{}, &resp); err != nil {
		return "", fmt.Errorf("auth.test: %w", err)
	}
	c.botUserID = resp.UserID
	return c.botUserID, nil
}

// envelope lets call/get check ok/error on any typed response.
type envelope interface {
	result() apiResponse
}

func (r apiResponse) result() apiResponse { return r }

func (c *Client) call(ctx context.Context, method string, payload any, out envelope) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, method string, q url.Values, out envelope) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+method+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out envelope) error {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if r := out.result(); !r.OK {
		return apiError(r.Error)
	}
	return nil
}

// apiError maps Slack error codes onto domain sentinels.
func apiError(code string) error {
	switch code {
	case "ratelimited":
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, code)
	case "invalid_auth", "not_authed", "account_inactive", "token_revoked", "missing_scope":
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, code)
	case "message_not_found", "channel_not_found":
		return fmt.Errorf("%w: %s", domain.ErrNotFound, code)
	case "":
		return errors.New("slack api error")
	default:
		return fmt.Errorf("slack api error: %s", code)
	}
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}

var _ domain.ChatClient = (*Client)(nil)
