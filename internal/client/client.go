package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/devghori1264/aerophoenix/craftd/internal/models"
)

const DefaultBaseURL = "http://127.0.0.1:3000"

// StatusError is returned when craftd answers with anything but 200.
type StatusError struct {
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("GET %s: status %d", e.Path, e.Status)
	}
	return fmt.Sprintf("GET %s: status %d: %s", e.Path, e.Status, e.Body)
}

// Client talks to a craftd HTTP endpoint.
type Client struct {
	base string
	http *http.Client
}

func New(baseURL string, hc *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), http: hc}
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("GET %s: read body: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Path: path, Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// Index returns the raw index page.
func (c *Client) Index(ctx context.Context) (string, error) {
	body, err := c.get(ctx, "/")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) Craft(ctx context.Context) (*models.Craft, error) {
	body, err := c.get(ctx, "/craft")
	if err != nil {
		return nil, err
	}
	var out models.Craft
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode craft: %w", err)
	}
	return &out, nil
}

func (c *Client) Stats(ctx context.Context) (*models.Hardware, error) {
	body, err := c.get(ctx, "/stats")
	if err != nil {
		return nil, err
	}
	var out models.Hardware
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	return &out, nil
}
