package core

import (
	"sync"
	"time"
)

// Client is one live connection as seen by the core layer. There is at most
// one Client per user id registered in the hub at any time; a reconnect
// supersedes the previous Client.
type Client struct {
	ID          string // user id, globally unique per logged-in user
	Name        string // display name, derived and non-authoritative
	ConnectedAt time.Time

	// Commands carries decoded inbound frames from the transport read loop.
	Commands chan *Command
	// Events carries outbound notifications drained by the transport write
	// loop. Delivery is best-effort: a full buffer drops the event.
	Events chan *Event

	// Rooms is the client's joined-room set. Mutated only by the hub while
	// holding its lock.
	Rooms map[string]struct{}

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a client with initialized channels.
func NewClient(id, name string) *Client {
	if name == "" {
		name = id
	}
	return &Client{
		ID:          id,
		Name:        name,
		ConnectedAt: time.Now(),
		Commands:    make(chan *Command, 8),
		Events:      make(chan *Event, 32),
		Rooms:       make(map[string]struct{}),
		done:        make(chan struct{}),
	}
}

// Close marks the client torn down. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Done is closed when the client has been torn down, either by disconnect or
// by a superseding reconnect.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// deliver queues an event without blocking. Undeliverable events are dropped,
// never queued elsewhere or retried.
func (c *Client) deliver(ev *Event) {
	select {
	case <-c.done:
	case c.Events <- ev:
	default:
	}
}
