package router

// ring keeps the most recent notifications for the UI layer. Old entries
// fall off the back once capacity is reached.
type ring struct {
	cap   int
	items []Notification // oldest first
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = 50
	}
	return &ring{cap: capacity}
}

func (r *ring) push(n Notification) {
	r.items = append(r.items, n)
	if len(r.items) > r.cap {
		r.items = r.items[len(r.items)-r.cap:]
	}
}

// list returns a newest-first snapshot.
func (r *ring) list() []Notification {
	out := make([]Notification, len(r.items))
	for i, n := range r.items {
		out[len(r.items)-1-i] = n
	}
	return out
}

// markRead flags the notification with the given id. Reports whether it was
// still in the window.
func (r *ring) markRead(id string) bool {
	for i := range r.items {
		if r.items[i].ID == id {
			r.items[i].Read = true
			return true
		}
	}
	return false
}
