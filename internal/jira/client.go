// Package jira provides the tracker client used by the poll engine and the rule modules.
package jira

import (
	"context"
	"fmt"
	"net/http"
	"time"

	jira "github.com/andygrunwald/go-jira"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/oauth2"

	"github.com/danielolaszy/arisa/internal/config"
	"github.com/danielolaszy/arisa/internal/logging"
)

// Client handles interactions with the JIRA API
type Client struct {
	client   *jira.Client
	username string
	groups   groupCache
}

// NewClient creates a new JIRA client from the tracker settings in cfg.
// Requests go through a rate limiter shared by every call made by the client.
func NewClient(cfg *config.Config) (*Client, error) {
	if err := config.ValidateJiraConfig(cfg); err != nil {
		return nil, err
	}

	limited := newRateLimitedTransport(http.DefaultTransport, cfg.Issues.RequestsPerSecond)

	// Create JIRA authentication transport
	var httpClient *http.Client
	if cfg.Credentials.PAT != "" {
		httpClient = &http.Client{Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Credentials.PAT}),
			Base:   limited,
		}}
	} else {
		tp := jira.BasicAuthTransport{
			Username:  cfg.Credentials.Username,
			Password:  cfg.Credentials.Password,
			Transport: limited,
		}
		httpClient = tp.Client()
	}

	client, err := jira.NewClient(httpClient, cfg.Issues.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to create JIRA client: %w", err)
	}

	logging.Info("jira configuration",
		"url", cfg.Issues.URL,
		"username", cfg.Credentials.Username,
		"password", logging.MaskSensitive(cfg.Credentials.Password),
		"pat", logging.MaskSensitive(cfg.Credentials.PAT),
		"requests_per_second", cfg.Issues.RequestsPerSecond)

	return &Client{client: client, username: cfg.Credentials.Username}, nil
}

// Username returns the bot account the client acts as.
func (c *Client) Username() string {
	return c.username
}

// Verify fetches the bot's own user, retrying transient failures with exponential backoff.
// Authentication failures are not retried.
func (c *Client) Verify(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("JIRA client not initialized")
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	operation := func() error {
		user, resp, err := c.client.User.GetSelfWithContext(ctx)
		if err == nil {
			logging.Info("jira authentication successful", "username", user.Name)
			return nil
		}
		if code := statusCode(resp); code == http.StatusUnauthorized || code == http.StatusForbidden {
			return backoff.Permanent(fmt.Errorf("jira authentication failed (status: %d): %w", code, err))
		}
		logging.Warn("jira connection check failed, retrying", "error", err)
		return err
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf("failed to verify JIRA connection: %w", err)
	}
	return nil
}

// statusCode returns the HTTP status of a response, or 0 when there is none.
func statusCode(resp *jira.Response) int {
	if resp == nil || resp.Response == nil {
		return 0
	}
	return resp.StatusCode
}
