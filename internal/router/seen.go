package router

import "container/list"

// seenSet is a bounded, LRU-evicted set of change-record keys. The change
// transport is at-least-once and may redeliver on reconnect, so routing an
// event is gated on first sight of its (kind, record) key.
type seenSet struct {
	cap   int
	order *list.List // front = most recent
	items map[string]*list.Element
}

func newSeenSet(capacity int) *seenSet {
	if capacity <= 0 {
		capacity = 500
	}
	return &seenSet{
		cap:   capacity,
		order: list.New(),
		items: make(map[string]*list.Element, capacity),
	}
}

// Add records the key. It returns false when the key was already present
// (a redelivery), refreshing its recency either way.
func (s *seenSet) Add(key string) bool {
	if el, ok := s.items[key]; ok {
		s.order.MoveToFront(el)
		return false
	}
	s.items[key] = s.order.PushFront(key)
	if s.order.Len() > s.cap {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.items, oldest.Value.(string))
	}
	return true
}

func (s *seenSet) Len() int { return s.order.Len() }
