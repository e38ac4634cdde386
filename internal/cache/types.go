package cache

import "time"

// Message is a single conversation message held in the thread cache.
type Message struct {
	ID        int64  `json:"id"`
	Direction string `json:"direction"` // inbound, outbound
	Content   string `json:"content"`
	Metadata  string `json:"metadata,omitempty"`
	Status    string `json:"status,omitempty"`
	SentAt    int64  `json:"sent_at"` // unix millis
}

// CachedThread is the per-thread cache entry: merged message window,
// contact identity and the highest message id seen so far.
type CachedThread struct {
	ThreadID      int64
	ContactName   string
	ContactPhone  string
	Messages      []Message
	LastMessageID int64
	FetchedAt     time.Time
}

// Fresh reports whether the entry was fetched within ttl.
func (t *CachedThread) Fresh(ttl time.Duration, now time.Time) bool {
	return now.Sub(t.FetchedAt) < ttl
}

// PanelEntry is a cached panel snapshot for one channel key.
type PanelEntry struct {
	Channel   string
	Payload   string
	FetchedAt time.Time
}

// Fresh reports whether the snapshot was fetched within ttl.
func (p *PanelEntry) Fresh(ttl time.Duration, now time.Time) bool {
	return now.Sub(p.FetchedAt) < ttl
}
