package core

// roomState holds the session-scoped side of a room: which users are joined
// and who is currently typing. Durable room records live in the store; this
// state exists only while members are connected. Members are tracked by user
// id; the hub resolves each id to its live connection at delivery time, so a
// superseded connection never receives stale traffic.
type roomState struct {
	members map[string]struct{} // user id -> joined
	typing  map[string]bool     // user id -> typing flag
}

func newRoomState() *roomState {
	return &roomState{
		members: make(map[string]struct{}),
		typing:  make(map[string]bool),
	}
}

// empty reports whether the room has no joined members left.
func (r *roomState) empty() bool {
	return len(r.members) == 0
}
