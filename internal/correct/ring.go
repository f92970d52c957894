package correct

import "sync"

const defaultRingSize = 3

// RecentOutboundRing keeps the last few display texts emitted per session.
// The prompt builder reads them to detect repetitive openings across turns;
// nothing else touches the ring. Session entries are created lazily and live
// for the lifetime of the owning conversation context.
type RecentOutboundRing struct {
	mu      sync.Mutex
	max     int
	entries map[string][]string
}

func NewRecentOutboundRing(max int) *RecentOutboundRing {
	if max <= 0 {
		max = defaultRingSize
	}
	return &RecentOutboundRing{
		max:     max,
		entries: make(map[string][]string),
	}
}

// Push appends text for the session, evicting the oldest entry when full.
func (r *RecentOutboundRing) Push(sessionKey, text string) {
	if sessionKey == "" || text == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	list := append(r.entries[sessionKey], text)
	if len(list) > r.max {
		list = list[len(list)-r.max:]
	}
	r.entries[sessionKey] = list
}

// Recent returns a copy of the session's entries, oldest first.
func (r *RecentOutboundRing) Recent(sessionKey string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.entries[sessionKey]
	out := make([]string, len(list))
	copy(out, list)
	return out
}
