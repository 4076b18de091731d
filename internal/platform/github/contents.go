// Package github publishes banner assets to a repository through the GitHub
// contents API.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/alanyoungcy/listingbot/internal/domain"
)

// DefaultAPIBaseURL is the public GitHub REST API root.
const DefaultAPIBaseURL = "https://api.github.com"

// publicDir is stripped from repository paths when building public URLs,
// since a static site serves public/ at its root.
const publicDir = "public/"

// Config configures a Repository.
type Config struct {
	APIBaseURL    string
	Repo          string // "owner/name"
	Branch        string
	Token         string
	PublicBaseURL string
}

// Repository implements domain.AssetRepository on a GitHub repository.
type Repository struct {
	cfg        Config
	httpClient *http.Client
}

// NewRepository creates a Repository.
func NewRepository(cfg Config) (*Repository, error) {
	if strings.Count(cfg.Repo, "/") != 1 {
		return nil, fmt.Errorf("github: repo %q must be owner/name", cfg.Repo)
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	return &Repository{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

type contentFile struct {
	SHA         string `json:"sha"`
	Path        string `json:"path"`
	DownloadURL string `json:"download_url"`
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

type putResponse struct {
	Content contentFile `json:"content"`
	Commit  struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

// Publish creates or replaces the file at p on the configured branch and
// returns its public URL with the commit sha as revision.
func (r *Repository) Publish(ctx context.Context, p string, data []byte) (domain.Asset, error) {
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if p == "" {
		return domain.Asset{}, errors.New("github: publish: empty path")
	}

	existing, err := r.lookup(ctx, p)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.Asset{}, fmt.Errorf("github: publish %s: %w", p, err)
	}

	verb := "Add"
	if existing.SHA != "" {
		verb = "Update"
	}
	req := putRequest{
		Message: fmt.Sprintf("%s market banner %s", verb, path.Base(p)),
		Content: base64.StdEncoding.EncodeToString(data),
		Branch:  r.cfg.Branch,
		SHA:     existing.SHA,
	}

	var resp putResponse
	if err := r.do(ctx, http.MethodPut, r.contentsURL(p, false), req, &resp); err != nil {
		return domain.Asset{}, fmt.Errorf("github: publish %s: %w", p, err)
	}

	return domain.Asset{URL: r.publicURL(p, resp.Content.DownloadURL), Revision: resp.Commit.SHA}, nil
}

// lookup returns the current file at p, or ErrNotFound.
func (r *Repository) lookup(ctx context.Context, p string) (contentFile, error) {
	var f contentFile
	if err := r.do(ctx, http.MethodGet, r.contentsURL(p, true), nil, &f); err != nil {
		return contentFile{}, err
	}
	return f, nil
}

func (r *Repository) contentsURL(p string, withRef bool) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	u := r.cfg.APIBaseURL + "/repos/" + r.cfg.Repo + "/contents/" + strings.Join(segments, "/")
	if withRef {
		u += "?ref=" + url.QueryEscape(r.cfg.Branch)
	}
	return u
}

// publicURL prefers the configured site root; without one the raw download
// URL from the API is used.
func (r *Repository) publicURL(p, downloadURL string) string {
	if r.cfg.PublicBaseURL == "" {
		return downloadURL
	}
	return strings.TrimRight(r.cfg.PublicBaseURL, "/") + "/" + strings.TrimPrefix(p, publicDir)
}

func (r *Repository) do(ctx context.Context, method, u string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if r.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.Token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.httpClient.Do(req)
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
	if out == nil {
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

var _ domain.AssetRepository = (*Repository)(nil)
