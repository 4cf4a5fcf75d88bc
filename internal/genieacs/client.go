// Package genieacs is a thin client for the GenieACS NBI: device queries, tasks and tags.
package genieacs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"genieacs-portal/internal/device/domain"
)

const (
	defaultTimeout   = 15 * time.Second
	maxResponseBytes = 32 << 20
)

var (
	// ErrDeviceNotFound is returned when a device lookup matches nothing.
	ErrDeviceNotFound = errors.New("genieacs: device not found")
	// ErrUpstream wraps non-2xx responses from the platform.
	ErrUpstream = errors.New("genieacs: upstream error")
)

// Client talks to the GenieACS NBI with HTTP basic auth.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient returns a Client for baseURL. timeout <= 0 uses 15s; logger may be nil.
func NewClient(baseURL, username, password string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   username,
		password:   password,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// EncodeDeviceID decodes id once, tolerating ids that are not escaped at all, and re-encodes
// it as a single path segment.
func EncodeDeviceID(id string) string {
	decoded, err := url.PathUnescape(id)
	if err != nil {
		decoded = id
	}
	return url.PathEscape(decoded)
}

// ListDevices returns every device.
func (c *Client) ListDevices(ctx context.Context) ([]domain.Record, error) {
	return c.queryDevices(ctx, nil)
}

// QueryDevices returns devices matching a NBI query document.
func (c *Client) QueryDevices(ctx context.Context, query map[string]any) ([]domain.Record, error) {
	return c.queryDevices(ctx, query)
}

// QueryDeviceByID returns the device with id, or ErrDeviceNotFound.
func (c *Client) QueryDeviceByID(ctx context.Context, id string) (domain.Record, error) {
	devices, err := c.queryDevices(ctx, map[string]any{"_id": id})
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, ErrDeviceNotFound
	}
	return devices[0], nil
}

// GetDevice is QueryDeviceByID for ids that may arrive percent-encoded from a URL.
func (c *Client) GetDevice(ctx context.Context, id string) (domain.Record, error) {
	decoded, err := url.PathUnescape(id)
	if err != nil {
		decoded = id
	}
	return c.QueryDeviceByID(ctx, decoded)
}

// FindByTag returns the first device carrying tag, or ErrDeviceNotFound.
func (c *Client) FindByTag(ctx context.Context, tag string) (domain.Record, error) {
	devices, err := c.queryDevices(ctx, map[string]any{"_tags": tag})
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.HasTag(tag) {
			return d, nil
		}
	}
	return nil, ErrDeviceNotFound
}

// PostTask queues task for the device.
func (c *Client) PostTask(ctx context.Context, deviceID string, task Task, opts TaskOptions) error {
	var q []string
	if opts.Timeout > 0 {
		q = append(q, "timeout="+strconv.FormatInt(opts.Timeout.Milliseconds(), 10))
	}
	if opts.ConnectionRequest {
		q = append(q, "connection_request")
	}
	path := "/devices/" + EncodeDeviceID(deviceID) + "/tasks"
	if len(q) > 0 {
		path += "?" + strings.Join(q, "&")
	}
	raw, err := json.Marshal(task)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPost, path, raw)
	if err != nil {
		return fmt.Errorf("post task %s: %w", task.Name, err)
	}
	return nil
}

// AddTag adds tag to the device.
func (c *Client) AddTag(ctx context.Context, deviceID, tag string) error {
	path := "/devices/" + EncodeDeviceID(deviceID) + "/tags/" + url.PathEscape(tag)
	if _, err := c.do(ctx, http.MethodPost, path, nil); err != nil {
		return fmt.Errorf("add tag: %w", err)
	}
	return nil
}

// DeleteTag removes tag from the device.
func (c *Client) DeleteTag(ctx context.Context, deviceID, tag string) error {
	path := "/devices/" + EncodeDeviceID(deviceID) + "/tags/" + url.PathEscape(tag)
	if _, err := c.do(ctx, http.MethodDelete, path, nil); err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	return nil
}

// Ping checks that the NBI answers a minimal query.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/devices?projection=_id&limit=1", nil)
	return err
}

func (c *Client) queryDevices(ctx context.Context, query map[string]any) ([]domain.Record, error) {
	path := "/devices"
	if query != nil {
		raw, err := json.Marshal(query)
		if err != nil {
			return nil, err
		}
		path += "?query=" + url.QueryEscape(string(raw))
	}
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var devices []domain.Record
	if err := dec.Decode(&devices); err != nil {
		return nil, fmt.Errorf("genieacs: decode devices: %w", err)
	}
	return devices, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("genieacs: upstream response",
			zap.String("method", method), zap.String("path", path),
			zap.Int("status", resp.StatusCode), zap.ByteString("body", b))
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s %s", ErrDeviceNotFound, method, path)
		}
		return nil, fmt.Errorf("%w: %s %s: status %d", ErrUpstream, method, path, resp.StatusCode)
	}
	return b, nil
}
