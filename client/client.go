// Package client reads the progress of a signing batch from a running signer.
package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"FactorSign/internal/api"
)

// Client connects to a signer's progress API.
type Client struct {
	baseURL string       // baseURL is "http://host:port"
	http    *http.Client // http performs the requests
}

// NewClient creates a client for the signer at addr (e.g. "127.0.0.1:8080").
func NewClient(addr string) *Client {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}

	return &Client{
		baseURL: strings.TrimRight(addr, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Health checks the signer is up.
func (c *Client) Health(ctx context.Context) error {
	var resp map[string]string

	if err := c.httpGet(ctx, "/health", &resp); err != nil {
		return err
	}

	if resp["status"] != "ok" {
		return fmt.Errorf("unexpected health status %q", resp["status"])
	}

	return nil
}

// Progress returns the current state of the batch.
func (c *Client) Progress(ctx context.Context) (api.Status, error) {
	var s api.Status

	if err := c.httpGet(ctx, "/progress", &s); err != nil {
		return api.Status{}, fmt.Errorf("get progress:\n%w", err)
	}

	return s, nil
}

// Wait polls the progress every interval until the batch is done or ctx ends.
// onPoll, if set, is called with every polled state.
func (c *Client) Wait(ctx context.Context, interval time.Duration, onPoll func(api.Status)) (api.Status, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s, err := c.Progress(ctx)
		if err != nil {
			return api.Status{}, err
		}

		if onPoll != nil {
			onPoll(s)
		}

		if s.Done {
			return s, nil
		}

		select {
		case <-ctx.Done():
			return s, ctx.Err()
		case <-ticker.C:
		}
	}
}
