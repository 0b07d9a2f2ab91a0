package server

import (
	"context"
	"testing"
	"time"
)

func newTestClient(hub *Hub, id string) *wsClient {
	return &wsClient{
		hub:  hub,
		send: make(chan []byte, 1),
		id:   id,
		subs: map[string]bool{"events": true},
	}
}

func TestHubBroadcastRespectsSubscriptions(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	all := newTestClient(hub, "all")
	trades := newTestClient(hub, "trades")
	trades.subs = map[string]bool{"trade": true}

	if !hub.attach(all) || !hub.attach(trades) {
		t.Fatal("attach failed on a running hub")
	}
	// Wait for both registrations to land.
	deadline := time.Now().Add(time.Second)
	for {
		hub.mu.RLock()
		n := len(hub.clients)
		hub.mu.RUnlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("clients never registered")
		}
		time.Sleep(time.Millisecond)
	}

	hub.Broadcast("trade", []byte("x"))

	select {
	case <-trades.send:
	case <-time.After(time.Second):
		t.Fatal("subscribed client missed the broadcast")
	}
	select {
	case msg := <-all.send:
		t.Fatalf("unsubscribed client received %q", msg)
	default:
	}
}

func TestHubShutdownUnblocksClients(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())

	runDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(runDone)
	}()

	c := newTestClient(hub, "a")
	if !hub.attach(c) {
		t.Fatal("attach failed on a running hub")
	}

	cancel()
	select {
	case <-runDone:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}

	// A client tearing down after the hub stopped must not hang.
	detached := make(chan struct{})
	go func() {
		c.detach()
		close(detached)
	}()
	select {
	case <-detached:
	case <-time.After(time.Second):
		t.Fatal("detach blocked after hub shutdown")
	}

	// A connection arriving during shutdown is turned away, not stranded.
	if hub.attach(newTestClient(hub, "late")) {
		t.Fatal("attach succeeded on a stopped hub")
	}
}
