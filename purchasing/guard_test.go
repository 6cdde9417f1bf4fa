package purchasing

import "testing"

func TestGuardSupersedesOlderTickets(t *testing.T) {
	g := NewGuard()

	t1 := g.Begin("recommendations:1")
	if !g.Current("recommendations:1", t1) {
		t.Fatalf("fresh ticket must be current")
	}

	t2 := g.Begin("recommendations:1")
	if g.Current("recommendations:1", t1) {
		t.Fatalf("older ticket must be superseded")
	}
	if !g.Current("recommendations:1", t2) {
		t.Fatalf("newest ticket must be current")
	}

	// Tickets are per resource.
	t3 := g.Begin("catalog:1")
	if !g.Current("recommendations:1", t2) || !g.Current("catalog:1", t3) {
		t.Fatalf("resources must not invalidate each other")
	}
}

func TestGuardCloseInvalidatesEverything(t *testing.T) {
	g := NewGuard()
	t1 := g.Begin("recommendations:1")
	g.Close()
	if g.Current("recommendations:1", t1) {
		t.Fatalf("closed guard must reject existing tickets")
	}
	t2 := g.Begin("recommendations:1")
	if g.Current("recommendations:1", t2) {
		t.Fatalf("closed guard must reject new tickets")
	}
}
