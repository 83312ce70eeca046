package attempts

import "sync"

// keyGate is a per-key mutex. Entries are reference counted and removed when
// the last holder or waiter leaves.
type keyGate struct {
	mu      sync.Mutex
	entries map[string]*gateEntry
}

type gateEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyGate() *keyGate {
	return &keyGate{entries: make(map[string]*gateEntry)}
}

func (g *keyGate) lock(key string) func() {
	g.mu.Lock()
	e, ok := g.entries[key]
	if !ok {
		e = &gateEntry{}
		g.entries[key] = e
	}
	e.refs++
	g.mu.Unlock()

	e.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			g.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(g.entries, key)
			}
			g.mu.Unlock()
		})
	}
}

func (g *keyGate) len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}
