package agent

import (
	"sync"
	"time"
)

// Registry is the authoritative store of agent records. It enforces the
// status state machine, keeps the display order (most recent first) and the
// selection pointer, and answers read-only queries with snapshots.
//
// Thread-safe. Writers are short and never perform I/O; read-heavy queries
// take the read lock only.
type Registry struct {
	mu       sync.RWMutex
	agents   map[ID]*record
	order    []ID
	selected ID
	nextID   uint64
}

// NewRegistry creates an empty registry. IDs start at 1.
func NewRegistry() *Registry {
	return &Registry{
		agents: make(map[ID]*record),
	}
}

// Spawn allocates the next id, stores a Pending record, inserts it at the
// head of the display order, and auto-selects it if nothing is selected.
// It does not schedule any work.
func (r *Registry) Spawn(req SpawnRequest) ID {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := ID(r.nextID)
	r.agents[id] = newRecord(id, req)
	r.order = append([]ID{id}, r.order...)

	if r.selected == 0 {
		r.selected = id
	}
	return id
}

// Start transitions an agent to Running. Illegal transitions are no-ops.
func (r *Registry) Start(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.agents[id]; ok {
		a.start()
	}
}

// SetIdle parks a Running agent in Idle (Conductor between turns).
func (r *Registry) SetIdle(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.agents[id]; ok {
		a.idle()
	}
}

// Update applies a status through the state machine. Transitions that the
// state machine forbids (for example Completed after Cancelled) are no-ops.
func (r *Registry) Update(id ID, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return
	}
	switch status.Kind {
	case StatusRunning:
		a.start()
	case StatusIdle:
		a.idle()
	case StatusCompleted:
		a.complete()
	case StatusError:
		a.error(status.Message)
	case StatusCancelled:
		a.cancel()
	}
}

// AppendOutput appends a chunk to an agent's output buffer and refreshes the
// derived line and token counts. Output arriving after cancellation is
// applied leniently; the status never re-transitions.
func (r *Registry) AppendOutput(id ID, chunk string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.agents[id]; ok {
		a.appendOutput(chunk)
	}
}

// Complete marks an agent Completed. No-op on terminal agents.
func (r *Registry) Complete(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.agents[id]; ok {
		a.complete()
	}
}

// Error marks an agent failed with a message. No-op on terminal agents.
func (r *Registry) Error(id ID, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.agents[id]; ok {
		a.error(message)
	}
}

// Cancel marks an agent cancelled. No-op on terminal agents.
func (r *Registry) Cancel(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.agents[id]; ok {
		a.cancel()
	}
}

// Get returns a snapshot of the agent, if present.
func (r *Registry) Get(id ID) (View, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.agents[id]; ok {
		return a.view(), true
	}
	return View{}, false
}

// Output returns the accumulated output text of the agent.
func (r *Registry) Output(id ID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.agents[id]; ok {
		return a.output.String(), true
	}
	return "", false
}

// Agents returns snapshots of all agents in display order (most recent first).
func (r *Registry) Agents() []View {
	r.mu.RLock()
	defer r.mu.RUnlock()
	views := make([]View, 0, len(r.order))
	for _, id := range r.order {
		if a, ok := r.agents[id]; ok {
			views = append(views, a.view())
		}
	}
	return views
}

// Children returns snapshots of all direct children of a parent agent.
func (r *Registry) Children(parentID ID) []View {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var views []View
	for _, id := range r.order {
		if a, ok := r.agents[id]; ok && a.parentID == parentID {
			views = append(views, a.view())
		}
	}
	return views
}

// Selected returns the currently selected agent, if any.
func (r *Registry) Selected() (View, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.agents[r.selected]; ok {
		return a.view(), true
	}
	return View{}, false
}

// SelectedID returns the selected agent id, or zero when nothing is selected.
func (r *Registry) SelectedID() ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selected
}

// Select changes the selection. Unknown ids are ignored.
func (r *Registry) Select(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[id]; ok {
		r.selected = id
	}
}

// RunningCount returns how many agents are currently Running.
func (r *Registry) RunningCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, a := range r.agents {
		if a.status.IsRunning() {
			n++
		}
	}
	return n
}

// Len returns the number of agents in the registry.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// CleanupOld removes terminal agents whose completion is older than maxAge.
// If the selection is evicted, the most recent survivor is selected.
func (r *Registry) CleanupOld(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, a := range r.agents {
		if !a.status.IsTerminal() || a.completedAt.IsZero() {
			continue
		}
		if now.Sub(a.completedAt) <= maxAge {
			continue
		}
		delete(r.agents, id)
		r.dropFromOrder(id)
		removed++
		if r.selected == id {
			r.selected = 0
			if len(r.order) > 0 {
				r.selected = r.order[0]
			}
		}
	}
	return removed
}

// RemoveChildren discards all direct children of a parent agent. Used when
// the Conductor begins a new turn. If a removed child was selected, the
// parent becomes selected.
func (r *Registry) RemoveChildren(parentID ID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, a := range r.agents {
		if a.parentID != parentID {
			continue
		}
		delete(r.agents, id)
		r.dropFromOrder(id)
		if r.selected == id {
			r.selected = parentID
		}
	}
}

func (r *Registry) dropFromOrder(id ID) {
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}
