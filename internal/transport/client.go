// Package transport sends template messages to the remote messaging API.
//
// A Client performs exactly one HTTP attempt per call and classifies the
// result into a model.Outcome. It never retries.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/unclebandit/bulk-dispatcher/internal/model"
)

const (
	DefaultBaseURL    = "https://graph.facebook.com"
	DefaultAPIVersion = "v23.0"
	DefaultTimeout    = 30 * time.Second

	// maxBodyBytes bounds how much of a response body is kept for the ledger.
	maxBodyBytes = 64 * 1024
)

type Options struct {
	BaseURL    string
	APIVersion string
	ProxyURL   string
	Timeout    time.Duration
}

type Client struct {
	HTTP       *http.Client
	BaseURL    string
	APIVersion string
}

// New builds a client with its own http.Transport. An empty ProxyURL means a
// direct connection; http, https and socks5 proxy URLs are accepted.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.APIVersion == "" {
		opts.APIVersion = DefaultAPIVersion
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.Proxy = nil
	if opts.ProxyURL != "" {
		u, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		switch u.Scheme {
		case "http", "https", "socks5", "socks5h":
		default:
			return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
		}
		if u.Scheme == "socks5h" {
			// net/http resolves through socks5 proxies remotely already
			u.Scheme = "socks5"
		}
		tr.Proxy = http.ProxyURL(u)
	}

	return &Client{
		HTTP:       &http.Client{Transport: tr, Timeout: opts.Timeout},
		BaseURL:    strings.TrimRight(opts.BaseURL, "/"),
		APIVersion: opts.APIVersion,
	}, nil
}

// MessagesURL returns the send endpoint for the given phone number id.
func (c *Client) MessagesURL(endpoint string) string {
	return fmt.Sprintf("%s/%s/%s/messages", c.BaseURL, c.APIVersion, url.PathEscape(endpoint))
}

// Send posts one payload. Only HTTP 200 counts as delivered.
func (c *Client) Send(ctx context.Context, p model.Payload, endpoint, token string) model.Outcome {
	body, err := json.Marshal(p)
	if err != nil {
		return transportError(fmt.Errorf("encode payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.MessagesURL(endpoint), bytes.NewReader(body))
	if err != nil {
		return transportError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return transportError(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode == http.StatusOK {
		return model.Outcome{Kind: model.Delivered, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return model.Outcome{Kind: model.Rejected, StatusCode: resp.StatusCode, Body: string(raw)}
}

func transportError(err error) model.Outcome {
	return model.Outcome{Kind: model.TransportError, Err: err.Error()}
}
