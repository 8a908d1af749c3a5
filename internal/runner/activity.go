package runner

import "sync"

// Activity is the boolean "a turn is in flight" signal. Only the loop writes it.
type Activity struct {
	mu     sync.Mutex
	active bool
	idle   chan struct{}
	subs   map[int]func(bool)
	nextID int
}

func newActivity() *Activity {
	idle := make(chan struct{})
	close(idle)
	return &Activity{idle: idle, subs: make(map[int]func(bool))}
}

func (a *Activity) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Idle returns a channel that is closed while no turn is active.
func (a *Activity) Idle() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.idle
}

// Subscribe registers fn for every transition. The returned func unregisters it.
func (a *Activity) Subscribe(fn func(active bool)) (cancel func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	id := a.nextID
	a.subs[id] = fn
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.subs, id)
	}
}

// begin flips the signal on; false means a turn is already active. prepare runs
// under the lock before the flip and is skipped when the signal is already on.
func (a *Activity) begin(prepare func()) bool {
	a.mu.Lock()
	if a.active {
		a.mu.Unlock()
		return false
	}
	if prepare != nil {
		prepare()
	}
	a.active = true
	a.idle = make(chan struct{})
	subs := a.snapshot()
	a.mu.Unlock()
	for _, fn := range subs {
		fn(true)
	}
	return true
}

func (a *Activity) end() {
	a.mu.Lock()
	if !a.active {
		a.mu.Unlock()
		return
	}
	a.active = false
	close(a.idle)
	subs := a.snapshot()
	a.mu.Unlock()
	for _, fn := range subs {
		fn(false)
	}
}

func (a *Activity) snapshot() []func(bool) {
	out := make([]func(bool), 0, len(a.subs))
	for i := 1; i <= a.nextID; i++ {
		if fn, ok := a.subs[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}
