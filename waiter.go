package grove

import "sync"

// waiterQueue holds callers parked until the orchestrator reaches a terminal
// state. Each waiter is a one-shot channel that is closed on release.
type waiterQueue struct {
	mu      sync.Mutex
	waiters map[chan struct{}]struct{}
}

func newWaiterQueue() *waiterQueue {
	return &waiterQueue{waiters: make(map[chan struct{}]struct{})}
}

func (q *waiterQueue) park() chan struct{} {
	ch := make(chan struct{})
	q.mu.Lock()
	q.waiters[ch] = struct{}{}
	q.mu.Unlock()
	return ch
}

// remove drops a waiter that gave up before release. It reports false when
// the waiter was already released.
func (q *waiterQueue) remove(ch chan struct{}) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.waiters[ch]; !ok {
		return false
	}
	delete(q.waiters, ch)
	return true
}

// release wakes every parked waiter and empties the queue. It returns the
// number of waiters released.
func (q *waiterQueue) release() int {
	q.mu.Lock()
	waiters := q.waiters
	q.waiters = make(map[chan struct{}]struct{})
	q.mu.Unlock()

	for ch := range waiters {
		close(ch)
	}
	return len(waiters)
}

func (q *waiterQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiters)
}
