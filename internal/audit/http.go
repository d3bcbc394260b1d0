package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hookrelay/hookrelay/internal/config"
	"github.com/hookrelay/hookrelay/internal/safego"
)

const (
	defaultHTTPTimeout   = 10 * time.Second
	defaultFlushInterval = 5 * time.Second
	queueDepth           = 1024
)

// ErrClosed is returned by Ship after Close.
var ErrClosed = errors.New("audit shipper closed")

// HTTPShipper POSTs records as JSON to a collector. With a batch size above zero
// records are queued and sent as a JSON array once the batch fills, the flush
// interval elapses or the shipper is closed. A full queue falls back to a direct send.
type HTTPShipper struct {
	url       string
	headers   map[string]string
	timeout   time.Duration
	client    *http.Client
	batchSize int

	queue     chan *Record
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewHTTPShipper validates cfg and, when batching is on, starts the flush loop.
func NewHTTPShipper(cfg *config.AuditWebhookConfig) (*HTTPShipper, error) {
	if cfg.URL == "" {
		return nil, errors.New("url is required")
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	s := &HTTPShipper{
		url:       cfg.URL,
		headers:   cfg.Headers,
		timeout:   timeout,
		client:    &http.Client{Timeout: timeout},
		batchSize: cfg.BatchSize,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	if s.batchSize <= 0 {
		close(s.done)
		return s, nil
	}

	interval := time.Duration(cfg.FlushInterval) * time.Second
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	s.queue = make(chan *Record, queueDepth)
	safego.Go("audit-http-flush", func() { s.loop(interval) })
	return s, nil
}

// Ship queues rec when batching, otherwise sends it immediately.
func (s *HTTPShipper) Ship(ctx context.Context, rec *Record) error {
	if s.queue != nil {
		select {
		case <-s.stop:
			return ErrClosed
		default:
		}
		select {
		case s.queue <- rec:
			return nil
		default:
		}
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	return s.post(ctx, body)
}

// loop owns the pending batch; nothing else touches it.
func (s *HTTPShipper) loop(interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pending := make([]*Record, 0, s.batchSize)
	flush := func() {
		if len(pending) == 0 {
			return
		}
		s.sendBatch(pending)
		pending = pending[:0]
	}

	for {
		select {
		case rec := <-s.queue:
			pending = append(pending, rec)
			if len(pending) >= s.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-s.stop:
			for {
				select {
				case rec := <-s.queue:
					pending = append(pending, rec)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (s *HTTPShipper) sendBatch(batch []*Record) {
	body, err := json.Marshal(batch)
	if err != nil {
		slog.Error("failed to marshal audit batch", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.post(ctx, body); err != nil {
		slog.Warn("failed to send audit batch", "records", len(batch), "error", err)
	}
}

func (s *HTTPShipper) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build audit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send audit request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("audit collector returned %d", resp.StatusCode)
	}
	return nil
}

// Close stops the flush loop and waits for the final batch to be sent.
func (s *HTTPShipper) Close() error {
	s.closeOnce.Do(func() { close(s.stop) })
	<-s.done
	return nil
}
