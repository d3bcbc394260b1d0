package safego

import (
	"testing"
	"time"

	"github.com/hookrelay/hookrelay/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("goroutine did not complete within timeout")
	}
}

func TestGo_RunsFunction(t *testing.T) {
	done := make(chan struct{})
	Go("test-run", func() { close(done) })
	waitDone(t, done)
}

func TestGo_RecoversPanic(t *testing.T) {
	counter := telemetry.BackgroundPanicsTotal.WithLabelValues("test-panic")
	before := testutil.ToFloat64(counter)

	done := make(chan struct{})
	// This must not crash the test process
	Go("test-panic", func() {
		defer close(done)
		panic("intentional panic in test")
	})
	waitDone(t, done)

	// The counter is bumped after fn's own deferred close runs
	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(counter) == before && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := testutil.ToFloat64(counter); got != before+1 {
		t.Errorf("background_panics_total{task=test-panic} = %v, want %v", got, before+1)
	}
}

func TestRecover_NoPanic(t *testing.T) {
	counter := telemetry.BackgroundPanicsTotal.WithLabelValues("test-clean")
	func() {
		defer Recover("test-clean")
	}()
	if got := testutil.ToFloat64(counter); got != 0 {
		t.Errorf("counter = %v, want 0", got)
	}
}
