// Package github posts the catalog check comment on a pull request through
// the GitHub REST API.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rendis/catalog/pkg/schema"
)

const (
	DefaultAPIURL          = "https://api.github.com"
	DefaultBotLogin        = "github-actions[bot]"
	defaultTimeout         = 30 * time.Second
	defaultMaxResponseBody = 5 * 1024 * 1024 // 5MB
	perPage                = 100
	maxPages               = 20
)

// Config configures a Client.
type Config struct {
	APIURL          string
	Token           string
	Repository      string // "owner/name"
	Timeout         time.Duration
	MaxResponseBody int64
	UserAgent       string
	// BotLogin is the account whose marker comment Upsert may update.
	BotLogin   string
	HTTPClient *http.Client
}

// User is the author of a comment.
type User struct {
	Login string `json:"login"`
	Type  string `json:"type"`
}

// Comment is an issue comment.
type Comment struct {
	ID      int64  `json:"id"`
	Body    string `json:"body"`
	HTMLURL string `json:"html_url"`
	User    User   `json:"user"`
}

// Client talks to the issues comments API of one repository.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient validates cfg and creates a Client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, schema.NewError(schema.ErrCodeConfig, "github token is required")
	}
	owner, name, ok := strings.Cut(cfg.Repository, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return nil, schema.NewErrorf(schema.ErrCodeConfig, "github repository %q must be owner/name", cfg.Repository)
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = defaultMaxResponseBody
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "catalog-check"
	}
	if cfg.BotLogin == "" {
		cfg.BotLogin = DefaultBotLogin
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: hc}, nil
}

// CreateComment posts a new comment on issue or pull request number.
func (c *Client) CreateComment(ctx context.Context, number int, body string) (*Comment, error) {
	var out Comment
	path := fmt.Sprintf("/repos/%s/issues/%d/comments", c.cfg.Repository, number)
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"body": body}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateComment replaces the body of comment id.
func (c *Client) UpdateComment(ctx context.Context, id int64, body string) (*Comment, error) {
	var out Comment
	path := fmt.Sprintf("/repos/%s/issues/comments/%d", c.cfg.Repository, id)
	if err := c.do(ctx, http.MethodPatch, path, map[string]string{"body": body}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListComments returns the comments on issue or pull request number.
func (c *Client) ListComments(ctx context.Context, number int) ([]Comment, error) {
	var all []Comment
	for page := 1; page <= maxPages; page++ {
		var batch []Comment
		path := fmt.Sprintf("/repos/%s/issues/%d/comments?per_page=%d&page=%d", c.cfg.Repository, number, perPage, page)
		if err := c.do(ctx, http.MethodGet, path, nil, &batch); err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < perPage {
			break
		}
	}
	return all, nil
}

// Upsert updates the check comment, or creates one. Only a comment that
// starts with marker and was posted by the configured bot login counts, so a
// comment quoting the marker is never overwritten. It reports whether a new
// comment was created.
func (c *Client) Upsert(ctx context.Context, number int, marker, body string) (*Comment, bool, error) {
	comments, err := c.ListComments(ctx, number)
	if err != nil {
		return nil, false, err
	}
	for _, existing := range comments {
		if c.ownsComment(existing, marker) {
			updated, err := c.UpdateComment(ctx, existing.ID, body)
			return updated, false, err
		}
	}
	created, err := c.CreateComment(ctx, number, body)
	return created, err == nil, err
}

func (c *Client) ownsComment(cm Comment, marker string) bool {
	return strings.HasPrefix(cm.Body, marker) && strings.EqualFold(cm.User.Login, c.cfg.BotLogin)
}

type apiError struct {
	Message          string `json:"message"`
	DocumentationURL string `json:"documentation_url"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeGitHub, "encode request: %v", err).WithCause(err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.APIURL+path, body)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeGitHub, "create request: %v", err).WithCause(err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeGitHub, "%s %s: %v", method, path, err).WithCause(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxResponseBody))
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeGitHub, "%s %s: read response: %v", method, path, err).WithCause(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		_ = json.Unmarshal(data, &apiErr)
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return schema.NewErrorf(schema.ErrCodeGitHub, "%s %s: %d %s", method, path, resp.StatusCode, msg).
			WithDetails(map[string]any{"status": resp.StatusCode, "documentation_url": apiErr.DocumentationURL})
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return schema.NewErrorf(schema.ErrCodeGitHub, "%s %s: decode response: %v", method, path, err).WithCause(err)
	}
	return nil
}
