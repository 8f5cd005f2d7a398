package agents

// Roster is the agent arena: a flat slice for iteration plus an ID index for
// constant-time lookup. Removal swaps the last agent into the freed slot, so
// iteration order is not stable across removals.
type Roster struct {
	list  []*Agent
	index map[AgentID]int
}

// NewRoster creates an empty roster with room for capacity agents.
func NewRoster(capacity int) *Roster {
	return &Roster{
		list:  make([]*Agent, 0, capacity),
		index: make(map[AgentID]int, capacity),
	}
}

// Len returns the number of agents.
func (r *Roster) Len() int {
	return len(r.list)
}

// Add registers a new agent. An agent whose ID is already present replaces
// the existing entry.
func (r *Roster) Add(a *Agent) {
	if i, ok := r.index[a.ID]; ok {
		r.list[i] = a
		return
	}
	r.index[a.ID] = len(r.list)
	r.list = append(r.list, a)
}

// Get looks up an agent by ID.
func (r *Roster) Get(id AgentID) (*Agent, bool) {
	i, ok := r.index[id]
	if !ok {
		return nil, false
	}
	return r.list[i], true
}

// Remove deletes the agent with id and returns it.
func (r *Roster) Remove(id AgentID) (*Agent, bool) {
	i, ok := r.index[id]
	if !ok {
		return nil, false
	}
	a := r.list[i]
	last := len(r.list) - 1
	if i != last {
		moved := r.list[last]
		r.list[i] = moved
		r.index[moved.ID] = i
	}
	r.list[last] = nil
	r.list = r.list[:last]
	delete(r.index, id)
	return a, true
}

// At returns the agent at arena position i.
func (r *Roster) At(i int) *Agent {
	return r.list[i]
}

// All returns the backing slice. Callers must not append to or reorder it.
func (r *Roster) All() []*Agent {
	return r.list
}
