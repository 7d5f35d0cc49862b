package feed

import "sync"

// Notifier fans a change signal out to every listener. Signals coalesce:
// a listener that has not consumed the previous signal gets no second one.
type Notifier struct {
	mu        sync.Mutex
	next      int
	listeners map[int]chan struct{}
}

// NewNotifier returns an empty notifier
func NewNotifier() *Notifier {
	return &Notifier{listeners: make(map[int]chan struct{})}
}

// Listen registers a listener. The returned func unregisters it and closes
// its channel.
func (n *Notifier) Listen() (<-chan struct{}, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.next
	n.next++
	ch := make(chan struct{}, 1)
	n.listeners[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.listeners, id)
			close(ch)
		})
	}
}

// Notify signals every listener without blocking
func (n *Notifier) Notify() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.listeners {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Len reports the number of registered listeners
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.listeners)
}
