package app

import (
	"sync"

	"quizforge/internal/domain"
)

// StatsFeed fans fresh QuizStats snapshots out to live analytics watchers.
// Subscribers are per quiz; publishing never blocks the submit path.
type StatsFeed struct {
	mu     sync.RWMutex
	topics map[string]map[chan domain.QuizStats]struct{}
}

func NewStatsFeed() *StatsFeed {
	return &StatsFeed{topics: make(map[string]map[chan domain.QuizStats]struct{})}
}

// Subscribe registers a watcher for one quiz. The caller must invoke the
// returned cancel function to avoid leaks.
func (f *StatsFeed) Subscribe(quizID string) (<-chan domain.QuizStats, func()) {
	ch := make(chan domain.QuizStats, 8)

	f.mu.Lock()
	subs, ok := f.topics[quizID]
	if !ok {
		subs = make(map[chan domain.QuizStats]struct{})
		f.topics[quizID] = subs
	}
	subs[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if subs, ok := f.topics[quizID]; ok {
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(f.topics, quizID)
			}
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

// HasWatchers reports whether anyone is subscribed to the quiz, letting the
// submit path skip a stats recomputation nobody would see.
func (f *StatsFeed) HasWatchers(quizID string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.topics[quizID]) > 0
}

// Publish delivers a snapshot to every watcher of the quiz. A slow watcher has
// its stale snapshot dropped so broadcast never stalls.
func (f *StatsFeed) Publish(quizID string, stats domain.QuizStats) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for ch := range f.topics[quizID] {
		select {
		case ch <- stats:
		default:
			select {
			case <-ch:
			default:
			}
			// A concurrent publisher may have refilled the buffer; drop this
			// snapshot rather than block.
			select {
			case ch <- stats:
			default:
			}
		}
	}
}
