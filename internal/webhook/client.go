// Package webhook implements the remote guardian-API notification channel.
// One JSON POST per attempt; any 2xx acknowledgment is success, everything
// else (including transport errors) is failure.
package webhook

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/sweeney/belt-sentinel/internal/logic"
)

// ChannelName identifies this channel in logs and the dedup ledger.
const ChannelName = "remote"

const (
	probeTimeout = 2 * time.Second
	probeTTL     = 10 * time.Second
)

// Config holds the remote endpoint settings.
type Config struct {
	// URL is the alert endpoint, e.g. https://portal.example.com/api/alerts.
	URL string

	// Timeout bounds the whole request (the dispatcher additionally bounds
	// the attempt via context).
	Timeout time.Duration

	// AuthToken, if set, is sent as a bearer token.
	AuthToken string
}

// Payload is the request body for one alert attempt.
type Payload struct {
	AlertKind string `json:"alertKind"`
	Message   string `json:"message"`
	DeviceID  string `json:"deviceId"`
	EpisodeID string `json:"episodeId"`
	Timestamp string `json:"timestamp"`
}

// Client is the network-dependent notification channel. Session state is
// read-only after construction; availability probing has its own lock.
type Client struct {
	http   *resty.Client
	url    string
	logger *zap.Logger

	// dial is injectable for tests.
	dial func(network, addr string, timeout time.Duration) (net.Conn, error)

	mu        sync.Mutex
	probedAt  time.Time
	probing   bool
	reachable bool
}

// New creates the remote channel client.
func New(cfg Config, logger *zap.Logger) *Client {
	httpClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.AuthToken != "" {
		httpClient.SetAuthToken(cfg.AuthToken)
	}

	return &Client{
		http:   httpClient,
		url:    cfg.URL,
		logger: logger,
		dial:   net.DialTimeout,
		// Optimistic until the first probe answers; a wrong guess costs
		// one failed send and the dispatcher falls back to the modem.
		reachable: true,
	}
}

// Name returns the channel name.
func (c *Client) Name() string { return ChannelName }

// Available reports whether the endpoint host is currently reachable.
// A short TCP dial, cached briefly, so an offline network is skipped
// without burning the send timeout. The dial runs in the background;
// callers always get the cached answer immediately.
func (c *Client) Available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.probing && time.Since(c.probedAt) >= probeTTL {
		c.probing = true
		go c.probe()
	}
	return c.reachable
}

func (c *Client) probe() {
	reachable := false
	if addr, err := dialAddr(c.url); err != nil {
		c.logger.Warn("remote channel: bad endpoint URL", zap.Error(err))
	} else if conn, err := c.dial("tcp", addr, probeTimeout); err == nil {
		conn.Close()
		reachable = true
	}

	c.mu.Lock()
	c.probedAt = time.Now()
	c.probing = false
	c.reachable = reachable
	c.mu.Unlock()
}

// Send posts one alert to the guardian API.
func (c *Client) Send(ctx context.Context, event logic.AlertEvent) error {
	payload := Payload{
		AlertKind: string(event.Kind),
		Message:   event.Message,
		DeviceID:  event.DeviceID,
		EpisodeID: event.EpisodeID,
		Timestamp: event.CreatedAt.UTC().Format(time.RFC3339),
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		Post(c.url)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	// Only a 2xx acknowledgment counts as delivered; a redirect the
	// transport did not follow is still a failure.
	if !resp.IsSuccess() {
		return fmt.Errorf("alert endpoint returned %d", resp.StatusCode())
	}
	return nil
}

func dialAddr(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("no host in %q", raw)
	}
	port := u.Port()
	if port == "" {
		if u.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	return net.JoinHostPort(host, port), nil
}
