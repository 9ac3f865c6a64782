package chat

import (
	"sync"

	"github.com/samber/lo"

	"talkio/internal/models"
)

// DefaultGroup is the mandatory group every authenticated connection joins
// on authentication and can never leave.
const DefaultGroup = "General"

type group struct {
	log     []models.ChatMessage
	members map[string]struct{}
}

// GroupDirectory owns group lifecycle: member sets, per-group append-only
// logs, and the legacy unified history. Groups are created lazily and live
// for the lifetime of the process. A connection's membership set and a
// group's member set are maintained as one bidirectional edge; no state can
// record one side without the other.
type GroupDirectory struct {
	mu      sync.RWMutex
	clock   Clock
	groups  map[string]*group
	order   []string                       // catalog, first-creation order
	joined  map[string]map[string]struct{} // connID -> joined group names
	history []models.ChatMessage           // legacy unified log
}

// NewGroupDirectory constructs a directory with the default group
// pre-created.
func NewGroupDirectory(clock Clock) *GroupDirectory {
	d := &GroupDirectory{
		clock:  clock,
		groups: make(map[string]*group),
		joined: make(map[string]map[string]struct{}),
	}
	d.ensureLocked(DefaultGroup)
	return d
}

func (d *GroupDirectory) ensureLocked(name string) (created bool) {
	if _, ok := d.groups[name]; ok {
		return false
	}
	d.groups[name] = &group{members: make(map[string]struct{})}
	d.order = append(d.order, name)
	return true
}

// EnsureGroup creates an empty group if absent. Idempotent; the returned
// flag drives the catalog-changed broadcast.
func (d *GroupDirectory) EnsureGroup(name string) (created bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ensureLocked(name)
}

// Exists reports whether the group is present.
func (d *GroupDirectory) Exists(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.groups[name]
	return ok
}

func (d *GroupDirectory) addMemberLocked(connID, name string) (added bool) {
	d.ensureLocked(name)
	g := d.groups[name]
	if _, ok := g.members[connID]; ok {
		return false
	}
	g.members[connID] = struct{}{}
	if d.joined[connID] == nil {
		d.joined[connID] = make(map[string]struct{})
	}
	d.joined[connID][name] = struct{}{}
	return true
}

// AddMember records the membership edge without logging a system event.
// Used for the automatic joins (General on authentication, creator on
// create-group), which are announced separately or not at all.
func (d *GroupDirectory) AddMember(connID, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addMemberLocked(connID, name)
}

// Join adds the connection to the group. Idempotent: when the connection is
// already a member no system event is appended. Returns the membership
// outcome and the group's log after the join.
func (d *GroupDirectory) Join(connID, username, name string) (alreadyMember bool, log []models.ChatMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.addMemberLocked(connID, name) {
		return true, snapshot(d.groups[name].log)
	}
	g := d.groups[name]
	g.log = append(g.log, models.ChatMessage{
		Type:      models.TypeSystem,
		Event:     models.SystemUserJoinedGroup,
		Username:  username,
		Timestamp: d.clock.Now(),
		Group:     name,
	})
	return false, snapshot(g.log)
}

// Leave removes the connection from the group and appends a left-group
// event. Leaving the default group is a policy error; leaving a group the
// connection is not in is a no-op.
func (d *GroupDirectory) Leave(connID, username, name string) (left bool, err error) {
	if name == DefaultGroup {
		return false, ErrCannotLeaveGeneral
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.joined[connID][name]; !ok {
		return false, nil
	}
	delete(d.joined[connID], name)
	g, ok := d.groups[name]
	if !ok {
		return false, nil
	}
	delete(g.members, connID)
	g.log = append(g.log, models.ChatMessage{
		Type:      models.TypeSystem,
		Event:     models.SystemUserLeftGroup,
		Username:  username,
		Timestamp: d.clock.Now(),
		Group:     name,
	})
	return true, nil
}

// Post appends a user message to the group's log and the unified history.
// Never rejected at this layer; validation is the engine's job.
func (d *GroupDirectory) Post(username, name, text string) models.ChatMessage {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.ensureLocked(name)
	msg := models.ChatMessage{
		Type:      models.TypeMessage,
		Username:  username,
		Message:   text,
		Timestamp: d.clock.Now(),
		Group:     name,
	}
	d.history = append(d.history, msg)
	g := d.groups[name]
	g.log = append(g.log, msg)
	return msg
}

// Announce appends a presence system event (user-joined / user-left) to the
// default group's log and the unified history.
func (d *GroupDirectory) Announce(event, username string) models.ChatMessage {
	d.mu.Lock()
	defer d.mu.Unlock()

	msg := models.ChatMessage{
		Type:      models.TypeSystem,
		Event:     event,
		Username:  username,
		Timestamp: d.clock.Now(),
		Group:     DefaultGroup,
	}
	d.history = append(d.history, msg)
	g := d.groups[DefaultGroup]
	g.log = append(g.log, msg)
	return msg
}

// Catalog returns group names in first-creation order.
func (d *GroupDirectory) Catalog() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return snapshot(d.order)
}

// GroupLog returns a copy of the group's ordered log.
func (d *GroupDirectory) GroupLog(name string) []models.ChatMessage {
	d.mu.RLock()
	defer d.mu.RUnlock()
	g, ok := d.groups[name]
	if !ok {
		return nil
	}
	return snapshot(g.log)
}

// History returns a copy of the legacy unified log.
func (d *GroupDirectory) History() []models.ChatMessage {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return snapshot(d.history)
}

// Members returns the connection ids currently in the group.
func (d *GroupDirectory) Members(name string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	g, ok := d.groups[name]
	if !ok {
		return nil
	}
	return lo.Keys(g.members)
}

// GroupsOf returns the groups the connection belongs to, in catalog order.
func (d *GroupDirectory) GroupsOf(connID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return lo.Filter(d.order, func(name string, _ int) bool {
		_, ok := d.joined[connID][name]
		return ok
	})
}

// RemoveConnection tears down every membership edge of the connection
// without logging per-group events, and returns the groups it was in.
func (d *GroupDirectory) RemoveConnection(connID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	names := lo.Keys(d.joined[connID])
	for _, name := range names {
		if g, ok := d.groups[name]; ok {
			delete(g.members, connID)
		}
	}
	delete(d.joined, connID)
	return names
}

func snapshot[T any](in []T) []T {
	out := make([]T, len(in))
	copy(out, in)
	return out
}
