package internal

import (
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
)

// DefaultQuiescence is how long a typing flag survives without a fresh
// MarkTyping call before it auto-clears.
const DefaultQuiescence = 2 * time.Second

type typingEntry struct {
	generation uint64
	timer      *time.Timer
}

// TypingTracker holds the per-room set of display names currently typing.
// The expiry policy is debounce: every MarkTyping call restarts the
// quiescence timer, so the flag clears only after the typer actually goes
// quiet. Generations come from a single tracker-wide counter that only ever
// advances, so a timer scheduled for any earlier incarnation of a (room,
// name) pair can never match a later one; a timer that fires after its entry
// was cleared, refreshed, or recreated sees a stale generation and does
// nothing.
type TypingTracker struct {
	mutex      sync.Mutex
	quiescence time.Duration
	generation uint64
	rooms      map[string]map[string]*typingEntry
	onExpire   func(room string)
}

// NewTypingTracker builds a tracker with the given quiescence window.
// onExpire is invoked (from the timer goroutine) whenever a flag auto-clears
// and the room's typing set therefore changed; it may be nil.
func NewTypingTracker(quiescence time.Duration, onExpire func(room string)) *TypingTracker {
	if quiescence <= 0 {
		quiescence = DefaultQuiescence
	}
	return &TypingTracker{
		quiescence: quiescence,
		rooms:      make(map[string]map[string]*typingEntry),
		onExpire:   onExpire,
	}
}

// MarkTyping flags userName as typing in room and (re)starts its expiry
// timer. It reports whether the room's typing set changed, which is true only
// for the idle-to-typing transition.
func (t *TypingTracker) MarkTyping(room, userName string) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	names, ok := t.rooms[room]
	if !ok {
		names = make(map[string]*typingEntry)
		t.rooms[room] = names
	}
	t.generation++
	entry, ok := names[userName]
	if ok {
		// Already typing: refresh the deadline under a fresh generation so the
		// previously scheduled expiry becomes a no-op even if it already fired.
		entry.generation = t.generation
		entry.timer.Stop()
		entry.timer = t.scheduleExpiry(room, userName, entry.generation)
		return false
	}
	entry = &typingEntry{generation: t.generation}
	entry.timer = t.scheduleExpiry(room, userName, entry.generation)
	names[userName] = entry
	return true
}

// ClearTyping explicitly transitions userName back to idle, cancelling the
// pending expiry. It reports whether the typing set changed.
func (t *TypingTracker) ClearTyping(room, userName string) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.clearLocked(room, userName, nil)
}

// CurrentTypers returns a sorted snapshot of the names typing in room.
func (t *TypingTracker) CurrentTypers(room string) []string {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	typers := lo.Keys(t.rooms[room])
	sort.Strings(typers)
	return typers
}

func (t *TypingTracker) scheduleExpiry(room, userName string, generation uint64) *time.Timer {
	return time.AfterFunc(t.quiescence, func() {
		t.expire(room, userName, generation)
	})
}

func (t *TypingTracker) expire(room, userName string, generation uint64) {
	t.mutex.Lock()
	changed := t.clearLocked(room, userName, &generation)
	t.mutex.Unlock()
	if changed && t.onExpire != nil {
		t.onExpire(room)
	}
}

// clearLocked removes the entry, optionally only when the generation still
// matches (the expiry path). Caller holds the mutex.
func (t *TypingTracker) clearLocked(room, userName string, generation *uint64) bool {
	names, ok := t.rooms[room]
	if !ok {
		return false
	}
	entry, ok := names[userName]
	if !ok {
		return false
	}
	if generation != nil && entry.generation != *generation {
		return false
	}
	entry.timer.Stop()
	delete(names, userName)
	if len(names) == 0 {
		delete(t.rooms, room)
	}
	return true
}
