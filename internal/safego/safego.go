// Package safego starts background goroutines that cannot take the process down.
// The relay's only fire-and-forget work is audit delivery: the per-request audit
// write and the batching loop of the webhook audit shipper.
package safego

import (
	"log/slog"
	"runtime/debug"

	"github.com/hookrelay/hookrelay/internal/telemetry"
)

// Go runs fn in a new goroutine under the given task name. A panic in fn is
// recovered, logged with its stack, and counted in background_panics_total.
func Go(task string, fn func()) {
	go func() {
		defer Recover(task)
		fn()
	}()
}

// Recover must be deferred directly. It swallows an in-flight panic and reports it.
func Recover(task string) {
	r := recover()
	if r == nil {
		return
	}
	telemetry.BackgroundPanicsTotal.WithLabelValues(task).Inc()
	slog.Error("recovered panic in background goroutine",
		"task", task,
		"panic", r,
		"stack", string(debug.Stack()),
	)
}
