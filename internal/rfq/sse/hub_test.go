package sse

import (
	"fmt"
	"testing"
)

func TestHub_PublishAndUnsubscribe(t *testing.T) {
	hub := NewHub(nil)
	client, unsubscribe := hub.Subscribe("admin-1")
	if hub.Count() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.Count())
	}

	hub.Publish(EventQuoteUpdate, map[string]string{"id": "q-1"})
	ev := <-client.Events
	if ev.EventType != EventQuoteUpdate || ev.Data != `{"id":"q-1"}` {
		t.Fatalf("unexpected event: %+v", ev)
	}

	unsubscribe()
	unsubscribe()
	if hub.Count() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.Count())
	}
	if _, ok := <-client.Events; ok {
		t.Fatal("expected closed channel")
	}
}

func TestHub_FullBufferDoesNotBlock(t *testing.T) {
	hub := NewHub(nil)
	client, unsubscribe := hub.Subscribe("admin-1")
	defer unsubscribe()

	for i := 0; i < clientBuffer+10; i++ {
		hub.Broadcast(Event{EventType: EventToast, Data: fmt.Sprint(i)})
	}
	if len(client.Events) != clientBuffer {
		t.Fatalf("expected %d buffered events, got %d", clientBuffer, len(client.Events))
	}
}
