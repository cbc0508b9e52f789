package chat

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
)

// Participant is a connected client with a registered display name.
type Participant struct {
	Conn     Conn
	Name     string
	JoinedAt time.Time

	order uint64
}

// ID returns the identity of the participant's connection handle.
func (p Participant) ID() string {
	return p.Conn.ID()
}

// Registry is the concurrency-safe set of live participants keyed by their
// connection handle.
type Registry struct {
	mu      sync.RWMutex
	members map[string]Participant
	joins   uint64
	clock   func() time.Time
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		members: make(map[string]Participant),
		clock:   time.Now,
	}
}

// Add registers conn under name. It fails with ErrDuplicateHandle when conn
// is already registered.
func (r *Registry) Add(conn Conn, name string) (Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.ID()
	if _, ok := r.members[id]; ok {
		return Participant{}, fmt.Errorf("%w: %s", ErrDuplicateHandle, id)
	}

	r.joins++
	p := Participant{
		Conn:     conn,
		Name:     name,
		JoinedAt: r.clock().UTC(),
		order:    r.joins,
	}
	r.members[id] = p
	return p, nil
}

// Remove unregisters the handle with the given id and returns its
// participant. Removing an absent handle is a no-op reporting false.
func (r *Registry) Remove(id string) (Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.members[id]
	if ok {
		delete(r.members, id)
	}
	return p, ok
}

// Lookup returns the participant registered under id.
func (r *Registry) Lookup(id string) (Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.members[id]
	return p, ok
}

// Snapshot returns a point-in-time copy of all participants in join order.
// The copy is safe to iterate while the Registry is mutated.
func (r *Registry) Snapshot() []Participant {
	r.mu.RLock()
	members := lo.Values(r.members)
	r.mu.RUnlock()

	slices.SortFunc(members, func(a, b Participant) int {
		return cmp.Compare(a.order, b.order)
	})
	return members
}

// Count returns the number of live participants.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
