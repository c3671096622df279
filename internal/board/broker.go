package board

import "sync"

// changeBroker fans change signals out to subscribers. Signals coalesce: a
// slow subscriber sees at most one pending signal and reads the latest
// snapshot when it wakes.
type changeBroker struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

func newChangeBroker() *changeBroker {
	return &changeBroker{subs: make(map[chan struct{}]struct{})}
}

func (b *changeBroker) subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *changeBroker) unsubscribe(ch chan struct{}) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *changeBroker) notify() {
	b.mu.Lock()
	for ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	b.mu.Unlock()
}

func (b *changeBroker) closeAll() {
	b.mu.Lock()
	for ch := range b.subs {
		close(ch)
	}
	b.subs = make(map[chan struct{}]struct{})
	b.mu.Unlock()
}
