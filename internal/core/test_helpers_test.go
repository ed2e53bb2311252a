package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/skillguru/chat-server/internal/store"
)

func testLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// mustNoEvent asserts that no event of the given kind arrives within a short
// window. Events of other kinds are discarded.
func mustNoEvent(t *testing.T, ch <-chan *Event, kind EventKind) {
	t.Helper()

	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected event: %+v", ev)
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// fakeBridge is an in-memory PersistenceBridge with switchable failures.
type fakeBridge struct {
	mu         sync.Mutex
	appendErr  error
	historyErr error
	history    []*store.Message
	appended   []*store.Message
	seq        int
}

func (f *fakeBridge) AppendMessage(_ context.Context, msg *store.Message) (*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.appendErr != nil {
		return nil, f.appendErr
	}
	f.seq++
	msg.ID = fmt.Sprintf("m%d", f.seq)
	f.appended = append(f.appended, msg)
	return msg, nil
}

func (f *fakeBridge) RecentMessages(_ context.Context, _ string, _ int, _ string) ([]*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history, nil
}

func (f *fakeBridge) AddRosterMember(context.Context, string, string) error {
	return nil
}

func (f *fakeBridge) TouchRoomActivity(context.Context, string) error {
	return nil
}

func (f *fakeBridge) appendedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.appended)
}

// startSession connects the client and runs its session until test cleanup.
func startSession(t *testing.T, hub *Hub, bridge PersistenceBridge, c *Client) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub.Connect(c)
	go NewSession(hub, bridge, c, 50, testLogger()).Run(ctx)
}
