package feed

import (
	"testing"
	"time"
)

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for feed value")
		panic("unreachable")
	}
}

func TestSubscribeReplaysLatest(t *testing.T) {
	f := New[int]()
	f.Publish(1)
	f.Publish(2)

	ch, cancel := f.Subscribe()
	defer cancel()
	if got := recv(t, ch); got != 2 {
		t.Fatalf("expected replay of latest value 2, got %d", got)
	}
}

func TestSubscribeBeforeFirstPublish(t *testing.T) {
	f := New[string]()
	ch, cancel := f.Subscribe()
	defer cancel()

	select {
	case v := <-ch:
		t.Fatalf("expected no value before first publish, got %q", v)
	case <-time.After(20 * time.Millisecond):
	}

	f.Publish("hello")
	if got := recv(t, ch); got != "hello" {
		t.Fatalf("expected %q, got %q", "hello", got)
	}
}

func TestSlowConsumerSeesLatest(t *testing.T) {
	f := New[int]()
	ch, cancel := f.Subscribe()
	defer cancel()

	// consumer never drains between publishes; intermediate values drop
	for i := 1; i <= 100; i++ {
		f.Publish(i)
	}
	if got := recv(t, ch); got != 100 {
		t.Fatalf("expected latest value 100, got %d", got)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	f := New[int]()
	_, cancel := f.Subscribe()
	if f.Subscribers() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", f.Subscribers())
	}
	cancel()
	cancel()
	if f.Subscribers() != 0 {
		t.Fatalf("expected 0 subscribers after cancel, got %d", f.Subscribers())
	}
}

func TestLatest(t *testing.T) {
	f := New[int]()
	if _, ok := f.Latest(); ok {
		t.Fatalf("expected no latest value before publish")
	}
	f.Publish(7)
	v, ok := f.Latest()
	if !ok || v != 7 {
		t.Fatalf("expected latest 7, got %d ok=%v", v, ok)
	}
}
