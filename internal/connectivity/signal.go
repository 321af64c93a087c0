package connectivity

import "sync"

// Signal reports whether the backend is believed reachable and announces
// changes. Subscribers get the new state on every transition; the returned
// func unsubscribes.
type Signal interface {
	Online() bool
	Subscribe() (<-chan bool, func())
}

// broadcaster holds the current state and fans transitions out. A slow
// subscriber misses intermediate states but always sees the latest one.
type broadcaster struct {
	mu     sync.Mutex
	online bool
	subs   map[chan bool]struct{}
}

func newBroadcaster(initial bool) *broadcaster {
	return &broadcaster{online: initial, subs: make(map[chan bool]struct{})}
}

func (b *broadcaster) Online() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.online
}

func (b *broadcaster) Subscribe() (<-chan bool, func()) {
	ch := make(chan bool, 1)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// set stores the state and reports whether it changed.
func (b *broadcaster) set(online bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.online == online {
		return false
	}
	b.online = online
	for ch := range b.subs {
		select {
		case <-ch: // drop the stale value
		default:
		}
		ch <- online
	}
	return true
}

// Manual is a Signal driven by explicit calls, for devices that get
// reachability from the platform and for tests.
type Manual struct {
	*broadcaster
}

func NewManual(online bool) *Manual {
	return &Manual{broadcaster: newBroadcaster(online)}
}

func (m *Manual) Set(online bool) {
	m.set(online)
}
