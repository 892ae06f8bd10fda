// Package roster tracks the live set of admitted chat members.
//
// A Group is not safe for concurrent use; the server's control loop owns the
// roster and serializes every access on a single goroutine.
package roster

import (
	"crypto/rsa"
	"errors"
	"io"
)

// ErrNotFound is returned when a name does not match any live member.
var ErrNotFound = errors.New("member not found")

// Member is the per-connection state of one admitted chat participant.
// Name never changes after admission; IsManager and IsMuted are mutated only
// by command dispatch under permission checks.
type Member struct {
	Name      string
	Color     string
	IsManager bool
	IsMuted   bool
	PublicKey *rsa.PublicKey

	// Conn is the member's owned connection handle; removing the member
	// from the group closes it.
	Conn io.Closer
}

func (m *Member) String() string { return m.Name }

// Group is an insertion-ordered collection of members keyed by unique name.
// Iteration order determines broadcast and listing order.
type Group struct {
	members []*Member
	byName  map[string]*Member
}

func NewGroup() *Group {
	return &Group{byName: make(map[string]*Member)}
}

// Add appends a member. Callers must have validated name uniqueness first;
// Add is append-only and does not guard against collisions.
func (g *Group) Add(m *Member) {
	g.members = append(g.members, m)
	g.byName[m.Name] = m
}

// Contains reports whether a member with the given name is in the group.
func (g *Group) Contains(name string) bool {
	_, ok := g.byName[name]
	return ok
}

// Lookup returns the member with the given name, or ErrNotFound.
func (g *Group) Lookup(name string) (*Member, error) {
	m, ok := g.byName[name]
	if !ok {
		return nil, ErrNotFound
	}
	return m, nil
}

// RemoveByName closes the member's connection and removes it from the group.
func (g *Group) RemoveByName(name string) error {
	m, ok := g.byName[name]
	if !ok {
		return ErrNotFound
	}
	return g.RemoveMember(m)
}

// RemoveMember closes the member's connection and removes it from the group.
func (g *Group) RemoveMember(m *Member) error {
	if _, ok := g.byName[m.Name]; !ok || g.byName[m.Name] != m {
		return ErrNotFound
	}
	if m.Conn != nil {
		m.Conn.Close()
	}
	delete(g.byName, m.Name)
	for i, other := range g.members {
		if other == m {
			g.members = append(g.members[:i], g.members[i+1:]...)
			break
		}
	}
	return nil
}

// Members returns a snapshot of the group in insertion order. The snapshot
// stays valid while members are removed mid-traversal, so a kick issued
// during a broadcast cannot invalidate the iteration.
func (g *Group) Members() []*Member {
	snapshot := make([]*Member, len(g.members))
	copy(snapshot, g.members)
	return snapshot
}

// Managers returns the members holding manager permissions, in insertion
// order.
func (g *Group) Managers() []*Member {
	var managers []*Member
	for _, m := range g.members {
		if m.IsManager {
			managers = append(managers, m)
		}
	}
	return managers
}

func (g *Group) Len() int { return len(g.members) }
