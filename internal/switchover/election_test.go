package switchover

import (
	"testing"
)

// links — состояние линков для тестов
type links map[string]bool

func (l links) up(iface string) bool { return l[iface] }

func allReady(int) bool { return true }

func TestElection_Select(t *testing.T) {
	primary := &Candidate{Name: "primary", Interface: "wr0", IDRef: 0, Primary: true}
	b1 := Candidate{Name: "b1", Interface: "wr1", IDRef: 1}
	b2 := Candidate{Name: "b2", Interface: "wr2", IDRef: 2}

	t.Run("no candidates", func(t *testing.T) {
		e := NewElection(nil, nil)
		if e.Select(links{}.up, allReady) != nil {
			t.Error("expected nil with no candidates")
		}
	})

	t.Run("primary up", func(t *testing.T) {
		e := NewElection(primary, []Candidate{b1})
		got := e.Select(links{"wr0": true, "wr1": true}.up, allReady)
		if got != primary {
			t.Errorf("expected primary, got %v", got)
		}
		if e.Active() != primary {
			t.Error("Active() should return selected candidate")
		}
	})

	t.Run("primary down fallback to first ready backup", func(t *testing.T) {
		e := NewElection(primary, []Candidate{b1, b2})
		notB1 := func(id int) bool { return id != 1 }
		got := e.Select(links{"wr1": true, "wr2": true}.up, notB1)
		if got == nil || got.Name != "b2" {
			t.Errorf("expected b2, got %v", got)
		}
	})

	t.Run("active backup sticks while its link is up", func(t *testing.T) {
		e := NewElection(primary, []Candidate{b1, b2})
		l := links{"wr2": true}
		if got := e.Select(l.up, allReady); got == nil || got.Name != "b2" {
			t.Fatalf("expected b2, got %v", got)
		}
		l["wr1"] = true
		if got := e.Select(l.up, allReady); got == nil || got.Name != "b2" {
			t.Errorf("expected b2 to stay active, got %v", got)
		}
		l["wr0"] = true
		if got := e.Select(l.up, allReady); got != primary {
			t.Errorf("expected primary to take over, got %v", got)
		}
	})

	t.Run("none usable", func(t *testing.T) {
		e := NewElection(primary, []Candidate{b1})
		got := e.Select(links{"wr1": true}.up, func(int) bool { return false })
		if got != nil {
			t.Errorf("expected nil when none usable, got %v", got)
		}
		if e.Active() != nil {
			t.Error("Active() should be nil")
		}
	})
}

func TestLinkMonitor_Poll(t *testing.T) {
	state := links{"wr0": true}
	m := NewLinkMonitorFunc([]string{"wr0", "wr1", "wr0", ""}, 0, state.up)

	evs := m.Poll()
	if len(evs) != 2 {
		t.Fatalf("first poll must report every interface, got %v", evs)
	}
	if evs[0] != (LinkEvent{"wr0", true}) || evs[1] != (LinkEvent{"wr1", false}) {
		t.Errorf("first poll %v", evs)
	}

	if evs := m.Poll(); len(evs) != 0 {
		t.Errorf("no changes expected, got %v", evs)
	}

	state["wr0"] = false
	state["wr1"] = true
	evs = m.Poll()
	if len(evs) != 2 || evs[0] != (LinkEvent{"wr0", false}) || evs[1] != (LinkEvent{"wr1", true}) {
		t.Errorf("changes %v", evs)
	}
}
