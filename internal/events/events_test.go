package events

import (
	"context"
	"errors"
	"testing"
	"time"
)

type failing struct{ err error }

func (f failing) Publish(context.Context, Event) error { return f.err }
func (f failing) Close() error                         { return f.err }

func TestMultiTriesEveryPublisher(t *testing.T) {
	broker := NewBroker()
	events, cancel := broker.Subscribe(1)
	defer cancel()

	errA := errors.New("kafka down")
	m := Multi{failing{errA}, broker}

	err := m.Publish(context.Background(), New(TypeIntakeReady, "s1", nil))
	if !errors.Is(err, errA) {
		t.Errorf("err = %v, want joined kafka error", err)
	}
	select {
	case ev := <-events:
		if ev.SessionID != "s1" || ev.Source != Source || ev.ID == "" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("broker did not receive the event")
	}
}

func TestBrokerCancelAndClose(t *testing.T) {
	b := NewBroker()
	first, cancelFirst := b.Subscribe(1)
	second, _ := b.Subscribe(1)

	cancelFirst()
	cancelFirst()
	if _, open := <-first; open {
		t.Error("cancelled subscription still open")
	}

	if err := b.Publish(context.Background(), New("test", "s", nil)); err != nil {
		t.Fatal(err)
	}
	if ev := <-second; ev.Type != "test" {
		t.Errorf("event = %+v", ev)
	}

	b.Close()
	if _, open := <-second; open {
		t.Error("subscription open after Close")
	}
	late, _ := b.Subscribe(1)
	if _, open := <-late; open {
		t.Error("subscription after Close should be closed")
	}
}

func TestBrokerDropsForSlowSubscriber(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			b.Publish(context.Background(), New("test", "s", nil))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	if len(ch) != 1 {
		t.Errorf("buffered = %d, want 1", len(ch))
	}
}
