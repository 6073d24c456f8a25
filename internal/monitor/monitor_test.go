package monitor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func collectResults(t *testing.T) (func(Result), <-chan Result) {
	t.Helper()
	ch := make(chan Result, 64)
	return func(res Result) { ch <- res }, ch
}

func waitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for result")
		return Result{}
	}
}

func TestMonitorTicksDeliverTaggedResults(t *testing.T) {
	onResult, results := collectResults(t)
	m := New(20*time.Millisecond, ProberFunc(func(context.Context) bool { return true }), 7, onResult)

	m.Start(context.Background())
	defer m.Stop()

	first := waitResult(t, results)
	second := waitResult(t, results)
	if !first.Reachable || !second.Reachable {
		t.Fatalf("expected reachable results, got %+v %+v", first, second)
	}
	if first.Generation != 7 || second.Generation != 7 {
		t.Fatalf("expected generation tag 7, got %d and %d", first.Generation, second.Generation)
	}
	if first.CheckedAt.IsZero() {
		t.Fatalf("expected checked-at timestamp")
	}
}

func TestMonitorStopHaltsTicker(t *testing.T) {
	onResult, results := collectResults(t)
	m := New(20*time.Millisecond, ProberFunc(func(context.Context) bool { return true }), 1, onResult)

	m.Start(context.Background())
	waitResult(t, results)
	m.Stop()

	drained := len(results)
	for i := 0; i < drained; i++ {
		<-results
	}
	time.Sleep(100 * time.Millisecond)
	if len(results) != 0 {
		t.Fatalf("expected no results after stop, got %d", len(results))
	}
}

func TestMonitorStopIsIdempotentAndRestartable(t *testing.T) {
	onResult, results := collectResults(t)
	m := New(20*time.Millisecond, ProberFunc(func(context.Context) bool { return true }), 1, onResult)

	m.Stop() // idle stop is a no-op
	m.Start(context.Background())
	m.Start(context.Background()) // second start is a no-op
	waitResult(t, results)
	m.Stop()
	m.Stop()

	m.Start(context.Background())
	defer m.Stop()
	waitResult(t, results)
}

func TestCheckNowDeliversWithoutTimer(t *testing.T) {
	onResult, results := collectResults(t)
	var calls atomic.Int64
	m := New(time.Hour, ProberFunc(func(context.Context) bool {
		calls.Add(1)
		return false
	}), 3, onResult)

	res := m.CheckNow(context.Background())
	if res.Reachable {
		t.Fatalf("expected unreachable result")
	}
	if res.Generation != 3 {
		t.Fatalf("expected generation 3, got %d", res.Generation)
	}

	delivered := waitResult(t, results)
	if delivered.Reachable != res.Reachable || delivered.Generation != res.Generation {
		t.Fatalf("expected callback delivery to match return value")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected exactly one probe, got %d", calls.Load())
	}
}

func TestMonitorRecoversProberPanic(t *testing.T) {
	onResult, results := collectResults(t)
	m := New(time.Hour, ProberFunc(func(context.Context) bool { panic("boom") }), 2, onResult)

	res := m.CheckNow(context.Background())
	if res.Err == nil {
		t.Fatalf("expected fault result")
	}
	delivered := waitResult(t, results)
	if delivered.Err == nil {
		t.Fatalf("expected fault to be delivered")
	}
}

func TestStopAbandonsInFlightResult(t *testing.T) {
	onResult, results := collectResults(t)
	m := New(20*time.Millisecond, ProberFunc(func(ctx context.Context) bool {
		<-ctx.Done()
		return true
	}), 1, onResult)

	m.Start(context.Background())
	time.Sleep(50 * time.Millisecond) // let a tick start a probe
	m.Stop()

	select {
	case res := <-results:
		t.Fatalf("expected in-flight result to be abandoned, got %+v", res)
	case <-time.After(100 * time.Millisecond):
	}
}
