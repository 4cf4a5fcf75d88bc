// Package loki provides a client to push log entries to Grafana Loki.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Job is the job label on every pushed stream.
const Job = "genieacs-portal"

// PushRequest is the Loki push API request body (v1).
type PushRequest struct {
	Streams []Stream `json:"streams"`
}

// Stream is a single stream with labels and log entries.
type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"` // each entry is [timestamp_ns, log_line]
}

// labelSanitize replaces characters we avoid in Loki label values.
var labelSanitize = regexp.MustCompile(`[^a-zA-Z0-9_\-:.]`)

// eventFields are the low-cardinality event fields promoted to labels. Device ids stay in the line.
type eventFields struct {
	EventType string `json:"eventType"`
	Source    string `json:"source"`
	Role      string `json:"role"`
	Outcome   string `json:"outcome"`
	CreatedAt string `json:"createdAt"`
}

// Client pushes lines to a Loki instance.
type Client struct {
	baseURL string
	http    *http.Client
	nowF    func() time.Time
}

// NewClient returns a client for baseURL (e.g. http://localhost:3100).
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("loki: base URL is empty")
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		nowF:    time.Now,
	}, nil
}

// PushEventJSON parses the event JSON (Kafka message value), extracts timestamp and labels, and pushes to Loki.
// If parsing fails, the raw line is pushed with current time and only the job label.
func (c *Client) PushEventJSON(ctx context.Context, rawJSON []byte) error {
	labels := map[string]string{}
	ts := c.nowF().UTC()
	var fields eventFields
	if err := json.Unmarshal(rawJSON, &fields); err == nil {
		labels["event_type"] = fields.EventType
		labels["source"] = fields.Source
		labels["role"] = fields.Role
		labels["outcome"] = fields.Outcome
		if fields.CreatedAt != "" {
			if t, err := time.Parse(time.RFC3339Nano, fields.CreatedAt); err == nil {
				ts = t
			}
		}
	}
	return c.Push(ctx, ts, string(rawJSON), labels)
}

// Push sends a single log line. Empty label values are dropped.
// Returns an error if the HTTP request fails or Loki returns non-2xx.
func (c *Client) Push(ctx context.Context, timestamp time.Time, line string, labels map[string]string) error {
	streamLabels := make(map[string]string, len(labels)+1)
	streamLabels["job"] = Job
	for k, v := range labels {
		if sanitized := labelSanitize.ReplaceAllString(strings.TrimSpace(v), "_"); sanitized != "" {
			streamLabels[k] = sanitized
		}
	}
	body := PushRequest{
		Streams: []Stream{{
			Stream: streamLabels,
			Values: [][]string{{strconv.FormatInt(timestamp.UnixNano(), 10), line}},
		}},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/loki/api/v1/push", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("loki: push returned %s", resp.Status)
	}
	return nil
}
