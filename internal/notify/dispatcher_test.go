package notify

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestSubscribeThenDispatchDelivers(t *testing.T) {
	d := NewDispatcher(nil)
	defer d.Close()

	events, cancel := d.Subscribe("user-1")
	defer cancel()

	d.Dispatch(context.Background(), Event{ReceiverID: "user-1", Message: "new estimate"})

	select {
	case ev := <-events:
		if ev.Message != "new estimate" {
			t.Fatalf("unexpected message: %q", ev.Message)
		}
		if ev.CreatedAt.IsZero() {
			t.Fatal("expected CreatedAt to be assigned")
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered to open connection")
	}
}

func TestDispatchWithoutSubscriberIsDropped(t *testing.T) {
	d := NewDispatcher(nil)
	defer d.Close()

	// Must not panic or block.
	d.Dispatch(context.Background(), Event{ReceiverID: "nobody", Message: "late"})

	if d.Connected("nobody") {
		t.Fatal("no connection should be registered")
	}
}

func TestDispatchAfterCancelIsDropped(t *testing.T) {
	d := NewDispatcher(nil)
	defer d.Close()

	_, cancel := d.Subscribe("user-1")
	cancel()
	cancel() // idempotent

	if d.Connected("user-1") {
		t.Fatal("cancel must remove the registry entry")
	}

	d.Dispatch(context.Background(), Event{ReceiverID: "user-1", Message: "late"})
}

func TestNewSubscribeReplacesOldConnection(t *testing.T) {
	d := NewDispatcher(nil)
	defer d.Close()

	oldEvents, oldCancel := d.Subscribe("user-1")
	newEvents, newCancel := d.Subscribe("user-1")
	defer newCancel()

	// The replaced stream is closed so its handler loop terminates.
	select {
	case _, open := <-oldEvents:
		if open {
			t.Fatal("expected old stream to be closed without events")
		}
	case <-time.After(time.Second):
		t.Fatal("old stream was not closed on replacement")
	}

	d.Dispatch(context.Background(), Event{ReceiverID: "user-1", Message: "hello"})
	select {
	case ev := <-newEvents:
		if ev.Message != "hello" {
			t.Fatalf("unexpected message: %q", ev.Message)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered to replacement connection")
	}

	// The old connection's own cleanup must not tear down the new one.
	oldCancel()
	if !d.Connected("user-1") {
		t.Fatal("stale cancel removed the replacement connection")
	}
}

func TestConcurrentSubscribeDispatchCancel(t *testing.T) {
	d := NewDispatcher(nil)
	defer d.Close()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n%8))
			events, cancel := d.Subscribe(id)
			// Drain whatever arrives until the stream closes or we cancel.
			go func() {
				for range events {
				}
			}()
			cancel()
		}(i)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n%8))
			d.Dispatch(context.Background(), Event{ReceiverID: id, Message: "ping"})
		}(i)
	}
	wg.Wait()
}

func TestSlowReceiverDoesNotBlockDispatch(t *testing.T) {
	d := NewDispatcher(nil)
	defer d.Close()

	_, cancel := d.Subscribe("user-1")
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < eventBuffer*2; i++ {
			d.Dispatch(context.Background(), Event{ReceiverID: "user-1", Message: "flood"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch blocked on a receiver that never reads")
	}
}
