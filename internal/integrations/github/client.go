package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

// Repo is the slice of repository metadata the enricher cares about.
type Repo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Language    string `json:"language"`
	Stars       int    `json:"stargazers_count"`
}

// Client fetches a portfolio owner's public repositories. It is thin
// plumbing for the context enricher's projects snapshot.
type Client struct {
	baseURL    string
	httpClient *http.Client
	username   string
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(username string, opts ...Option) (*Client, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("github: username must not be empty")
	}
	c := &Client{
		baseURL:    "https://api.github.com",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		username:   username,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// RecentRepos returns the owner's most recently updated public
// repositories. Transport errors and 5xx responses are retried with
// exponential backoff; 4xx responses are permanent.
func (c *Client) RecentRepos(ctx context.Context) ([]Repo, error) {
	url := strings.TrimRight(c.baseURL, "/") + "/users/" + c.username + "/repos?sort=updated&per_page=10"

	var repos []Repo
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("github: create request: %w", err))
		}
		req.Header.Set("Accept", "application/vnd.github+json")

		res, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("github: request failed: %w", err)
		}
		defer func() { _ = res.Body.Close() }()

		if res.StatusCode >= 400 && res.StatusCode < 500 {
			return backoff.Permanent(fmt.Errorf("github: status %d from %s", res.StatusCode, url))
		}
		if res.StatusCode != http.StatusOK {
			return fmt.Errorf("github: status %d from %s", res.StatusCode, url)
		}

		raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
		if err != nil {
			return fmt.Errorf("github: read response body: %w", err)
		}
		if err := json.Unmarshal(raw, &repos); err != nil {
			return backoff.Permanent(fmt.Errorf("github: decode response: %w", err))
		}
		return nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 500 * time.Millisecond
	expo.MaxElapsedTime = 15 * time.Second
	if err := backoff.Retry(op, backoff.WithContext(expo, ctx)); err != nil {
		return nil, err
	}
	return repos, nil
}
