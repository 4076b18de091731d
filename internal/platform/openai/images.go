// Package openai generates banner images through the OpenAI Images API.
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/listingbot/internal/domain"
)

// DefaultBaseURL is the OpenAI REST API root.
const DefaultBaseURL = "https://api.openai.com/v1"

// maxImageBytes caps downloads of URL-returned images.
const maxImageBytes = 20 << 20

// ImageConfig configures an ImageClient.
type ImageConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Size    string
	Timeout time.Duration
}

// ImageClient implements domain.ImageGenerator.
type ImageClient struct {
	cfg        ImageConfig
	httpClient *http.Client
}

// NewImageClient creates an ImageClient. Empty fields fall back to
// dall-e-3 at 1024x1024 with a two minute timeout.
func NewImageClient(cfg ImageConfig) *ImageClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "dall-e-3"
	}
	if cfg.Size == "" {
		cfg.Size = "1024x1024"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &ImageClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type generationRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format"`
}

type generationResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Generate renders prompt into an image and returns its bytes. Base64
// payloads are preferred; a returned URL is downloaded instead.
func (c *ImageClient) Generate(ctx context.Context, prompt string) ([]byte, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, errors.New("openai: generate: empty prompt")
	}

	body, err := json.Marshal(generationRequest{
		Model:          c.cfg.Model,
		Prompt:         prompt,
		N:              1,
		Size:           c.cfg.Size,
		ResponseFormat: "b64_json",
	})
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/images/generations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	respBody, err := c.send(req)
	if err != nil {
		return nil, fmt.Errorf("openai: generate image: %w", err)
	}

	var out generationResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}
	if len(out.Data) == 0 {
		return nil, errors.New("openai: generate image: empty response")
	}

	img := out.Data[0]
	switch {
	case img.B64JSON != "":
		data, err := base64.StdEncoding.DecodeString(img.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("openai: decode image: %w", err)
		}
		return data, nil
	case img.URL != "":
		return c.download(ctx, img.URL)
	default:
		return nil, errors.New("openai: generate image: response has neither b64_json nor url")
	}
}

func (c *ImageClient) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("openai: create download request: %w", err)
	}
	data, err := c.send(req)
	if err != nil {
		return nil, fmt.Errorf("openai: download image: %w", err)
	}
	return data, nil
}

func (c *ImageClient) send(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors, surfacing the
// API error message when there is one.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	msg := string(body)
	var apiErr errorResponse
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
	}
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, msg)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, msg)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, msg)
	}
}

var _ domain.ImageGenerator = (*ImageClient)(nil)
