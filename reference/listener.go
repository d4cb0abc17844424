package reference

// Listener observes refresh attempts on a Manager.
type Listener interface {
	// BeforeRefresh is called before a refresh attempt starts opening
	// a new snapshot.
	BeforeRefresh()

	// AfterRefresh is called when a refresh attempt finishes.
	// refreshed is true only if a new snapshot was swapped in.
	AfterRefresh(refreshed bool)
}

// ListenerFuncs adapts plain functions to the Listener interface.
// Either field may be nil.
type ListenerFuncs struct {
	Before func()
	After  func(refreshed bool)
}

// BeforeRefresh implements Listener.
func (l ListenerFuncs) BeforeRefresh() {
	if l.Before != nil {
		l.Before()
	}
}

// AfterRefresh implements Listener.
func (l ListenerFuncs) AfterRefresh(refreshed bool) {
	if l.After != nil {
		l.After(refreshed)
	}
}

// AddListener registers a listener for refresh notifications.
// Listeners are invoked in registration order.
func (m *Manager[R]) AddListener(l Listener) {
	if l == nil {
		return
	}
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

func (m *Manager[R]) snapshotListeners() []Listener {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Listener, len(m.listeners))
	copy(out, m.listeners)
	return out
}

func (m *Manager[R]) notifyBefore() {
	for _, l := range m.snapshotListeners() {
		l.BeforeRefresh()
	}
}

func (m *Manager[R]) notifyAfter(refreshed bool) {
	for _, l := range m.snapshotListeners() {
		l.AfterRefresh(refreshed)
	}
}
