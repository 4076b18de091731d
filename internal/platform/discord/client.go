// Package discord implements domain.ChatClient on the Discord bot API.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/listingbot/internal/domain"
)

// DefaultBaseURL is the Discord REST API root.
const DefaultBaseURL = "https://discord.com/api/v10"

// emojiByName maps the reaction names used by the pipeline to unicode.
var emojiByName = map[string]string{
	domain.ReactionApprove: "✅",
	domain.ReactionReject:  "❌",
}

func emojiFor(name string) string {
	if e, ok := emojiByName[name]; ok {
		return e
	}
	return name
}

func nameFor(emoji string) string {
	for name, e := range emojiByName {
		if e == emoji {
			return name
		}
	}
	return emoji
}

// Client posts review messages to one Discord channel as a bot.
type Client struct {
	baseURL    string
	token      string
	channel    string
	httpClient *http.Client

	mu        sync.Mutex
	botUserID string
}

// NewClient creates a Discord client. baseURL may be empty for the public API.
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

// Post sends msg as content plus embeds and returns the message id.
func (c *Client) Post(ctx context.Context, msg domain.ChatMessage) (string, error) {
	content, embeds := renderEmbeds(msg)
	payload := map[string]any{"content": content}
	if len(embeds) > 0 {
		payload["embeds"] = embeds
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, c.messagesPath(), payload, &resp); err != nil {
		return "", fmt.Errorf("discord: post message: %w", err)
	}
	return resp.ID, nil
}

// Reactions lists the users behind every reaction on the message, leaving
// out the bot itself. Unicode emoji are reported under their pipeline names.
func (c *Client) Reactions(ctx context.Context, messageID string) (map[string][]string, error) {
	botID, err := c.botUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("discord: reactions: %w", err)
	}

	var msg struct {
		Reactions []struct {
			Emoji struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"emoji"`
		} `json:"reactions"`
	}
	if err := c.do(ctx, http.MethodGet, c.messagePath(messageID), nil, &msg); err != nil {
		return nil, fmt.Errorf("discord: get message %s: %w", messageID, err)
	}

	out := make(map[string][]string, len(msg.Reactions))
	for _, r := range msg.Reactions {
		emoji := r.Emoji.Name
		if r.Emoji.ID != "" {
			emoji = r.Emoji.Name + ":" + r.Emoji.ID
		}
		var users []struct {
			ID string `json:"id"`
		}
		path := c.messagePath(messageID) + "/reactions/" + url.PathEscape(emoji) + "?limit=100"
		if err := c.do(ctx, http.MethodGet, path, nil, &users); err != nil {
			return nil, fmt.Errorf("discord: list reaction %s: %w", emoji, err)
		}
		for _, u := range users {
			if u.ID == botID {
				continue
			}
			name := nameFor(r.Emoji.Name)
			out[name] = append(out[name], u.ID)
		}
	}
	return out, nil
}

// React adds a reaction as the bot.
func (c *Client) React(ctx context.Context, messageID, name string) error {
	path := c.messagePath(messageID) + "/reactions/" + url.PathEscape(emojiFor(name)) + "/@me"
	if err := c.do(ctx, http.MethodPut, path, nil, nil); err != nil {
		return fmt.Errorf("discord: add reaction %s: %w", name, err)
	}
	return nil
}

// Delete removes a message.
func (c *Client) Delete(ctx context.Context, messageID string) error {
	if err := c.do(ctx, http.MethodDelete, c.messagePath(messageID), nil, nil); err != nil {
		return fmt.Errorf("discord: delete message %s: %w", messageID, err)
	}
	return nil
}

func (c *Client) botUser(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.botUserID != "" {
		return c.botUserID, nil
	}
	var me struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodGet, "/users/@me", nil, &me); err != nil {
		return "", fmt.Errorf("get bot user: %w", err)
	}
	c.botUserID = me.ID
	return c.botUserID, nil
}

func (c *Client) messagesPath() string {
	return "/channels/" + url.PathEscape(c.channel) + "/messages"
}

func (c *Client) messagePath(id string) string {
	return c.messagesPath() + "/" + url.PathEscape(id)
}

// do sends an authenticated request. A nil payload sends no body and a nil
// out discards the response.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return err
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
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
