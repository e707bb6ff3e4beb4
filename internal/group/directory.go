// Package group owns every chat group and its membership.
//
// A group exists exactly as long as it has members: Create makes it with the
// creator as sole member and the operation that removes the last member
// deletes it in the same critical section. Every method takes the directory
// lock once and returns copies, never the live member sets.
package group

import (
	"slices"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/Tyrowin/relaychat/internal/chaterr"
	"github.com/Tyrowin/relaychat/internal/transport"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// MaxNameLength bounds group names in characters.
const MaxNameLength = 64

var (
	validate = validator.New()
	nameTag  = "required,printascii,max=" + strconv.Itoa(MaxNameLength)
)

type members map[uuid.UUID]transport.Conn

// Departure describes one group a connection was removed from, with the
// membership as it was before the removal.
type Departure struct {
	Group   string
	Members []transport.Conn
}

// Directory maps group names to member sets. It also indexes the groups of
// each connection so disconnect cleanup does not scan every group.
type Directory struct {
	mu          sync.Mutex
	groups      map[string]members
	memberships map[uuid.UUID]map[string]struct{}
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		groups:      make(map[string]members),
		memberships: make(map[uuid.UUID]map[string]struct{}),
	}
}

// ValidateName reports chaterr.ErrInvalidGroupName for names that are empty,
// too long, non-printable or contain whitespace.
func ValidateName(name string) error {
	if err := validate.Var(name, nameTag); err != nil {
		return chaterr.ErrInvalidGroupName
	}
	if strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return chaterr.ErrInvalidGroupName
	}
	return nil
}

// Create makes a new group whose only member is conn.
func (d *Directory) Create(name string, conn transport.Conn) error {
	id := conn.ID()

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.groups[name]; exists {
		return chaterr.ErrAlreadyExists
	}
	d.groups[name] = members{id: conn}
	d.index(id, name)
	return nil
}

// Join adds conn to an existing group and returns the resulting membership.
// Joining twice is a no-op.
func (d *Directory) Join(name string, conn transport.Conn) ([]transport.Conn, error) {
	id := conn.ID()

	d.mu.Lock()
	defer d.mu.Unlock()

	set, ok := d.groups[name]
	if !ok {
		return nil, chaterr.ErrNoSuchGroup
	}
	set[id] = conn
	d.index(id, name)
	return lo.Values(set), nil
}

// Leave removes conn from the group and returns the membership before the
// removal, conn included. The group is deleted if it became empty.
func (d *Directory) Leave(name string, conn transport.Conn) ([]transport.Conn, error) {
	id := conn.ID()

	d.mu.Lock()
	defer d.mu.Unlock()

	set, ok := d.groups[name]
	if !ok {
		return nil, chaterr.ErrNoSuchGroup
	}
	if _, member := set[id]; !member {
		return nil, chaterr.ErrNotMember
	}

	prior := lo.Values(set)
	d.remove(name, id)
	return prior, nil
}

// MessageIfMember returns the full membership when conn belongs to the group.
// A missing group and a non-member both yield chaterr.ErrNotMember so the
// caller cannot probe for group names.
func (d *Directory) MessageIfMember(name string, conn transport.Conn) ([]transport.Conn, error) {
	id := conn.ID()

	d.mu.Lock()
	defer d.mu.Unlock()

	set, ok := d.groups[name]
	if !ok {
		return nil, chaterr.ErrNotMember
	}
	if _, member := set[id]; !member {
		return nil, chaterr.ErrNotMember
	}
	return lo.Values(set), nil
}

// RemoveEverywhere drops id from all its groups, deleting those left empty.
// Departures are sorted by group name.
func (d *Directory) RemoveEverywhere(id uuid.UUID) []Departure {
	d.mu.Lock()
	defer d.mu.Unlock()

	names := lo.Keys(d.memberships[id])
	slices.Sort(names)

	departures := make([]Departure, 0, len(names))
	for _, name := range names {
		set, ok := d.groups[name]
		if !ok {
			continue
		}
		departures = append(departures, Departure{Group: name, Members: lo.Values(set)})
		d.remove(name, id)
	}
	delete(d.memberships, id)
	return departures
}

// Members returns the current membership, or nil if the group is absent.
func (d *Directory) Members(name string) []transport.Conn {
	d.mu.Lock()
	defer d.mu.Unlock()

	set, ok := d.groups[name]
	if !ok {
		return nil
	}
	return lo.Values(set)
}

// Len reports the number of groups.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.groups)
}

// index and remove must be called with d.mu held.
func (d *Directory) index(id uuid.UUID, name string) {
	names, ok := d.memberships[id]
	if !ok {
		names = make(map[string]struct{})
		d.memberships[id] = names
	}
	names[name] = struct{}{}
}

func (d *Directory) remove(name string, id uuid.UUID) {
	set := d.groups[name]
	delete(set, id)
	if len(set) == 0 {
		delete(d.groups, name)
	}

	if names, ok := d.memberships[id]; ok {
		delete(names, name)
		if len(names) == 0 {
			delete(d.memberships, id)
		}
	}
}
