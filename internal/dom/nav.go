package dom

import "slices"

// NavKind says how the location changed.
type NavKind int

const (
	NavPush NavKind = iota
	NavReplace
	NavPop
	NavLoad
)

func (k NavKind) String() string {
	switch k {
	case NavPush:
		return "pushState"
	case NavReplace:
		return "replaceState"
	case NavPop:
		return "popstate"
	case NavLoad:
		return "load"
	}
	return "unknown"
}

// NavEvent is delivered to navigation hooks.
type NavEvent struct {
	Kind     NavKind
	Location string
}

type navHook struct {
	fn func(NavEvent)
}

// OnNavigate registers fn for every history change and document load. The
// returned func unregisters it.
func (t *Tree) OnNavigate(fn func(NavEvent)) (cancel func()) {
	h := &navHook{fn: fn}
	t.navHooks = append(t.navHooks, h)
	return func() {
		t.navHooks = slices.DeleteFunc(t.navHooks, func(x *navHook) bool { return x == h })
	}
}

// PushState appends location to the history and makes it current.
func (t *Tree) PushState(location string) {
	t.history = append(t.history, location)
	t.location = location
	t.notify(NavEvent{Kind: NavPush, Location: location})
}

// ReplaceState swaps the current history entry.
func (t *Tree) ReplaceState(location string) {
	if len(t.history) == 0 {
		t.history = []string{location}
	} else {
		t.history[len(t.history)-1] = location
	}
	t.location = location
	t.notify(NavEvent{Kind: NavReplace, Location: location})
}

// PopState goes back one entry. It reports false at the start of history.
func (t *Tree) PopState() bool {
	if len(t.history) < 2 {
		return false
	}
	t.history = t.history[:len(t.history)-1]
	t.location = t.history[len(t.history)-1]
	t.notify(NavEvent{Kind: NavPop, Location: t.location})
	return true
}

// SetLocation changes the location without any history hook firing, the way
// a host that only exposes its address bar would. Only polling notices it.
func (t *Tree) SetLocation(location string) {
	t.location = location
}

func (t *Tree) notify(ev NavEvent) {
	hooks := slices.Clone(t.navHooks)
	for _, h := range hooks {
		t.dispatch(func() { h.fn(ev) })
	}
}
