// Package loki pushes audit events to Grafana Loki for the audit worker.
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

	"github.com/cenkalti/backoff/v5"
)

// DefaultJob is the job label on every stream.
const DefaultJob = "records-dashboard-audit"

// PushRequest is the Loki push API request body (v1).
type PushRequest struct {
	Streams []Stream `json:"streams"`
}

// Stream is a single stream with labels and log entries.
type Stream struct {
	Stream map[string]string `json:"stream"`
	// Values holds [timestamp_ns, line] pairs.
	Values [][]string `json:"values"`
}

var labelSanitize = regexp.MustCompile(`[^a-zA-Z0-9_\-:.]`)

// eventLabels are the audit event fields promoted to stream labels. Everything else stays in the line.
type eventLabels struct {
	OrgID      string `json:"orgId"`
	Action     string `json:"action"`
	TargetType string `json:"targetType"`
	Outcome    string `json:"outcome"`
	Timestamp  string `json:"timestamp"`
}

// Client pushes lines to one Loki instance, retrying 5xx and transport failures with backoff.
type Client struct {
	baseURL  string
	job      string
	http     *http.Client
	maxTries uint
}

// NewClient returns a Client for baseURL (e.g. http://localhost:3100). job "" selects DefaultJob.
func NewClient(baseURL, job string, timeout time.Duration) (*Client, error) {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("loki: base URL is empty")
	}
	if job == "" {
		job = DefaultJob
	}
	return &Client{baseURL: baseURL, job: job, http: &http.Client{Timeout: timeout}, maxTries: 5}, nil
}

// PushAuditJSON pushes one serialized audit event. Labels and timestamp come from the event;
// a line that does not parse is pushed as-is at the current time.
func (c *Client) PushAuditJSON(ctx context.Context, raw []byte) error {
	labels := map[string]string{}
	ts := time.Now().UTC()
	var ev eventLabels
	if err := json.Unmarshal(raw, &ev); err == nil {
		labels["org_id"] = ev.OrgID
		labels["action"] = ev.Action
		labels["target_type"] = ev.TargetType
		labels["outcome"] = ev.Outcome
		if t, err := time.Parse(time.RFC3339Nano, ev.Timestamp); err == nil {
			ts = t
		}
	}
	return c.Push(ctx, ts, string(raw), labels)
}

// Push sends a single line with the given labels. Empty label values are dropped.
func (c *Client) Push(ctx context.Context, ts time.Time, line string, labels map[string]string) error {
	stream := map[string]string{"job": c.job}
	for k, v := range labels {
		if s := labelSanitize.ReplaceAllString(strings.TrimSpace(v), "_"); s != "" {
			stream[k] = s
		}
	}
	payload, err := json.Marshal(PushRequest{Streams: []Stream{{
		Stream: stream,
		Values: [][]string{{strconv.FormatInt(ts.UnixNano(), 10), line}},
	}}})
	if err != nil {
		return err
	}
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, c.post(ctx, payload)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(c.maxTries))
	return err
}

func (c *Client) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/loki/api/v1/push", bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("loki: push returned %s", resp.Status)
	default:
		return backoff.Permanent(fmt.Errorf("loki: push returned %s", resp.Status))
	}
}
