package auth

import "sync"

// Event types emitted by the auth-state feed.
const (
	// EventResolved is the single terminal event every new subscriber receives
	// immediately, marking the current state as known.
	EventResolved  = "resolved"
	EventSignedIn  = "signed_in"
	EventSignedOut = "signed_out"
)

// Event is one auth-state transition.
type Event struct {
	Type   string `json:"type"`
	UserID string `json:"userId,omitempty"`
	Email  string `json:"email,omitempty"`
}

// StateFeed is the subscribable replacement for callback-based auth-state
// notification: explicit subscribe/unsubscribe, a resolved event up front,
// then sign-in/sign-out transitions.
type StateFeed struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

func NewStateFeed() *StateFeed {
	return &StateFeed{subscribers: make(map[chan Event]struct{})}
}

// Subscribe registers a watcher. The resolved event is already buffered on the
// returned channel. The caller must invoke cancel to avoid leaks.
func (f *StateFeed) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 8)

	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	f.mu.Unlock()

	ch <- Event{Type: EventResolved}

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subscribers[ch]; ok {
			delete(f.subscribers, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

func (f *StateFeed) publish(event Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for ch := range f.subscribers {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			// A concurrent publisher may have refilled the buffer; drop the
			// event rather than block.
			select {
			case ch <- event:
			default:
			}
		}
	}
}
