// Package audit ships audit records for token issuance, token revocation and webhook
// activity to destinations outside the database. The audit_logs table is written by
// the middleware directly; everything here is optional fan-out configured under
// audit.shippers.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hookrelay/hookrelay/internal/config"
)

// Record is the wire form of one audited request.
type Record struct {
	Timestamp    time.Time              `json:"timestamp"`
	Action       string                 `json:"action"`
	RequestID    string                 `json:"request_id,omitempty"`
	UserID       string                 `json:"user_id,omitempty"`
	ResourceType string                 `json:"resource_type,omitempty"`
	ResourceID   string                 `json:"resource_id,omitempty"`
	IPAddress    string                 `json:"ip_address,omitempty"`
	AuthMethod   string                 `json:"auth_method,omitempty"`
	StatusCode   int                    `json:"status_code,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// Shipper delivers records to one destination.
type Shipper interface {
	Ship(ctx context.Context, rec *Record) error
	Close() error
}

// Fanout delivers every record to each of its shippers in order.
type Fanout struct {
	shippers []Shipper
}

// NewFanout wraps already constructed shippers.
func NewFanout(shippers ...Shipper) *Fanout {
	return &Fanout{shippers: shippers}
}

// New builds a Fanout from the enabled entries of cfg.Shippers. Shippers opened
// before a failing entry are closed again.
func New(cfg *config.AuditConfig) (*Fanout, error) {
	f := &Fanout{}
	for i, sc := range cfg.Shippers {
		if !sc.Enabled {
			continue
		}
		s, err := open(sc)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("audit shipper %d (%s): %w", i, sc.Type, err)
		}
		f.shippers = append(f.shippers, s)
	}
	return f, nil
}

func open(sc config.AuditShipperConfig) (Shipper, error) {
	switch sc.Type {
	case "webhook":
		if sc.Webhook == nil {
			return nil, errors.New("missing webhook section")
		}
		return NewHTTPShipper(sc.Webhook)
	case "file":
		if sc.File == nil {
			return nil, errors.New("missing file section")
		}
		return NewFileShipper(sc.File)
	default:
		return nil, fmt.Errorf("unknown shipper type %q", sc.Type)
	}
}

// Len reports how many shippers are active.
func (f *Fanout) Len() int { return len(f.shippers) }

// Ship hands rec to every shipper. A failing destination does not stop the
// others; all failures are joined into the returned error.
func (f *Fanout) Ship(ctx context.Context, rec *Record) error {
	var errs []error
	for _, s := range f.shippers {
		if err := s.Ship(ctx, rec); err != nil {
			slog.Warn("audit shipper error", "action", rec.Action, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every shipper.
func (f *Fanout) Close() error {
	var errs []error
	for _, s := range f.shippers {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
