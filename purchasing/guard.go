package purchasing

import "sync"

// Guard discards superseded async responses. Each outlet-scoped load takes a
// ticket at issue time; the response is applied only while its ticket is
// still the latest for that resource. Close makes every outstanding ticket
// stale, blocking applies after teardown.
type Guard struct {
	mu     sync.Mutex
	gens   map[string]uint64
	closed bool
}

func NewGuard() *Guard {
	return &Guard{gens: map[string]uint64{}}
}

// Begin issues a new ticket for the resource, superseding earlier ones.
func (g *Guard) Begin(resource string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gens[resource]++
	return g.gens[resource]
}

// Current reports whether the ticket is still the latest issued for the
// resource and the guard is still live.
func (g *Guard) Current(resource string, ticket uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	return g.gens[resource] == ticket
}

// Close invalidates all tickets, past and future.
func (g *Guard) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
}
