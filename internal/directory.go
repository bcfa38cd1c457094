package internal

import "sync"

// Directory tracks the ordered member list of every room. Duplicate entries
// for the same connection are possible by design; removal clears all entries
// matching the connection id. A room whose member list drains is reaped from
// the map so idle rooms never accumulate.
type Directory struct {
	mutex sync.RWMutex
	rooms map[string][]Member
}

func NewDirectory() *Directory {
	return &Directory{rooms: make(map[string][]Member)}
}

// AddMember appends a member to the room's list, creating the room if absent.
func (d *Directory) AddMember(room, connID, userName string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.rooms[room] = append(d.rooms[room], Member{ID: connID, UserName: userName})
}

// RemoveMember drops every entry for connID from the room. The room entry
// itself is deleted once its list is empty.
func (d *Directory) RemoveMember(room, connID string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	members, ok := d.rooms[room]
	if !ok {
		return
	}
	kept := members[:0]
	for _, member := range members {
		if member.ID != connID {
			kept = append(kept, member)
		}
	}
	if len(kept) == 0 {
		delete(d.rooms, room)
		return
	}
	d.rooms[room] = kept
}

// Members returns a copy of the room's member list in join order. Unknown
// rooms yield an empty list, never an error.
func (d *Directory) Members(room string) []Member {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	members := d.rooms[room]
	out := make([]Member, len(members))
	copy(out, members)
	return out
}

// Exists reports whether the room currently has any members.
func (d *Directory) Exists(room string) bool {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	_, ok := d.rooms[room]
	return ok
}

// RoomCount reports how many rooms currently have members.
func (d *Directory) RoomCount() int {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return len(d.rooms)
}
