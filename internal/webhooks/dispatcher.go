package webhooks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hookrelay/hookrelay/internal/apierrors"
	"github.com/hookrelay/hookrelay/internal/db/models"
	"github.com/hookrelay/hookrelay/internal/telemetry"
)

const (
	// DefaultLogLimit is the number of logs returned when no limit is requested
	DefaultLogLimit = 50
	// MaxLogLimit caps the number of logs returned by one listing
	MaxLogLimit = 200
)

// LogStore appends and lists dispatch logs
type LogStore interface {
	CreateWebhookLog(ctx context.Context, l *models.WebhookLog) error
	ListWebhookLogs(ctx context.Context, webhookID string, limit int) ([]models.WebhookLog, error)
}

// Result is the captured response of a dispatch
type Result struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    *string           `json:"body"`
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithHTTPClient replaces the outbound client
func WithHTTPClient(c *http.Client) DispatcherOption {
	return func(d *Dispatcher) { d.client = c }
}

// WithTimeout bounds each outbound exchange. Zero means no limit.
func WithTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// WithMaxResponseBytes truncates captured bodies to n bytes. Zero means no limit.
func WithMaxResponseBytes(n int64) DispatcherOption {
	return func(d *Dispatcher) { d.maxBody = n }
}

// Dispatcher invokes webhooks and records their responses
type Dispatcher struct {
	logs    LogStore
	client  *http.Client
	timeout time.Duration
	maxBody int64

	now   func() time.Time
	newID func() string
}

// NewDispatcher creates a Dispatcher. Without options it uses a client with the
// default redirect policy and no timeout.
func NewDispatcher(logs LogStore, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		logs:  logs,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.client == nil {
		d.client = &http.Client{Timeout: d.timeout}
	}
	return d
}

// Dispatch sends exactly one request for w, logs the response, and returns it.
// Any completed exchange is logged whatever its status; a transport failure writes
// no log and is returned as KindInternal.
func (d *Dispatcher) Dispatch(ctx context.Context, w *models.Webhook) (*Result, error) {
	req, err := d.newRequest(ctx, w)
	if err != nil {
		return nil, apierrors.Internal(fmt.Sprintf("Failed to build request: %v", err), err)
	}

	start := d.now()
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, d.transportFailure(w, err)
	}
	defer resp.Body.Close()

	result := &Result{
		Status:  resp.StatusCode,
		Headers: flattenHeaders(resp.Header),
	}

	if !bodylessResponse(w.Method, resp.StatusCode) {
		body, err := d.readBody(resp.Body)
		if err != nil {
			return nil, d.transportFailure(w, err)
		}
		result.Body = &body
	}

	elapsed := d.now().Sub(start)
	telemetry.WebhookDispatchDuration.Observe(elapsed.Seconds())
	telemetry.WebhookDispatchTotal.WithLabelValues(statusClass(resp.StatusCode)).Inc()

	entry := &models.WebhookLog{
		ID:         d.newID(),
		WebhookID:  w.ID,
		Status:     result.Status,
		Headers:    models.Headers(result.Headers),
		Body:       result.Body,
		DurationMS: elapsed.Milliseconds(),
	}
	if err := d.logs.CreateWebhookLog(ctx, entry); err != nil {
		return nil, apierrors.Internal("Failed to save webhook log.", err)
	}

	slog.Info("webhook dispatched",
		"webhook_id", w.ID,
		"status", result.Status,
		"duration_ms", entry.DurationMS,
	)
	return result, nil
}

// Logs returns the newest logs of a webhook. limit is clamped to [1, MaxLogLimit];
// zero or negative selects DefaultLogLimit.
func (d *Dispatcher) Logs(ctx context.Context, webhookID string, limit int) ([]models.WebhookLog, error) {
	switch {
	case limit <= 0:
		limit = DefaultLogLimit
	case limit > MaxLogLimit:
		limit = MaxLogLimit
	}
	logs, err := d.logs.ListWebhookLogs(ctx, webhookID, limit)
	if err != nil {
		return nil, apierrors.Internal("Failed to load webhook logs.", err)
	}
	return logs, nil
}

func (d *Dispatcher) newRequest(ctx context.Context, w *models.Webhook) (*http.Request, error) {
	var body io.Reader
	if w.Body != nil {
		body = strings.NewReader(*w.Body)
	}

	req, err := http.NewRequestWithContext(ctx, w.Method, w.URL, body)
	if err != nil {
		return nil, err
	}
	for k, v := range w.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func (d *Dispatcher) readBody(r io.Reader) (string, error) {
	if d.maxBody > 0 {
		r = io.LimitReader(r, d.maxBody)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return toText(string(b)), nil
}

// toText decodes captured bytes as text the way a log column can store them:
// invalid UTF-8 sequences and NUL bytes become U+FFFD.
func toText(s string) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	return strings.ReplaceAll(s, "\x00", "\uFFFD")
}

func (d *Dispatcher) transportFailure(w *models.Webhook, err error) error {
	telemetry.WebhookDispatchTotal.WithLabelValues("transport_error").Inc()
	slog.Warn("webhook dispatch failed", "webhook_id", w.ID, "error", err)
	return apierrors.Internal(err.Error(), err)
}

// flattenHeaders keeps canonical header names and joins repeated values with ", "
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = toText(strings.Join(v, ", "))
	}
	return out
}

// bodylessResponse reports whether a response can carry no body at all, as opposed
// to a present but empty one
func bodylessResponse(method string, status int) bool {
	if method == http.MethodHead {
		return true
	}
	switch status {
	case http.StatusSwitchingProtocols, http.StatusEarlyHints,
		http.StatusNoContent, http.StatusResetContent, http.StatusNotModified:
		return true
	}
	return false
}

func statusClass(status int) string {
	return fmt.Sprintf("%dxx", status/100)
}
