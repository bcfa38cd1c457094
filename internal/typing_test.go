package internal

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testQuiescence = 100 * time.Millisecond

// expiryRecorder collects rooms whose typing set changed through expiry.
type expiryRecorder struct {
	mu    sync.Mutex
	rooms []string
}

func (r *expiryRecorder) record(room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms = append(r.rooms, room)
}

func (r *expiryRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

func TestTypingTracker_MarkAndAutoExpire(t *testing.T) {
	req := require.New(t)
	recorder := &expiryRecorder{}
	tracker := NewTypingTracker(testQuiescence, recorder.record)

	changed := tracker.MarkTyping("r1", "alice")
	req.True(changed)
	req.Equal([]string{"alice"}, tracker.CurrentTypers("r1"))

	req.Eventually(func() bool {
		return len(tracker.CurrentTypers("r1")) == 0
	}, time.Second, 5*time.Millisecond)
	req.Eventually(func() bool {
		return recorder.count() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestTypingTracker_RepeatedMarksDebounce(t *testing.T) {
	req := require.New(t)
	tracker := NewTypingTracker(testQuiescence, nil)

	req.True(tracker.MarkTyping("r1", "alice"))

	// Keep typing past the original deadline; the flag must survive as long
	// as marks keep arriving.
	for i := 0; i < 4; i++ {
		time.Sleep(testQuiescence / 2)
		req.False(tracker.MarkTyping("r1", "alice"))
		req.Equal([]string{"alice"}, tracker.CurrentTypers("r1"))
	}

	req.Eventually(func() bool {
		return len(tracker.CurrentTypers("r1")) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestTypingTracker_ClearCancelsExpiry(t *testing.T) {
	req := require.New(t)
	recorder := &expiryRecorder{}
	tracker := NewTypingTracker(testQuiescence, recorder.record)

	tracker.MarkTyping("r1", "alice")
	req.True(tracker.ClearTyping("r1", "alice"))
	req.Empty(tracker.CurrentTypers("r1"))

	// the cancelled timer must not fire a phantom change
	time.Sleep(2 * testQuiescence)
	req.Zero(recorder.count())

	// clearing an idle name is a no-op
	req.False(tracker.ClearTyping("r1", "alice"))
}

func TestTypingTracker_StaleTimerCannotResurrect(t *testing.T) {
	req := require.New(t)
	recorder := &expiryRecorder{}
	tracker := NewTypingTracker(testQuiescence, recorder.record)

	tracker.MarkTyping("r1", "alice")
	time.Sleep(testQuiescence / 2)
	// refresh bumps the generation; the first timer is now stale
	tracker.MarkTyping("r1", "alice")
	time.Sleep(testQuiescence * 3 / 5)
	// past the first deadline, before the refreshed one
	req.Equal([]string{"alice"}, tracker.CurrentTypers("r1"))
	req.Zero(recorder.count())

	req.Eventually(func() bool {
		return recorder.count() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestTypingTracker_ClearedTimerCannotClearNewIncarnation(t *testing.T) {
	req := require.New(t)
	recorder := &expiryRecorder{}
	tracker := NewTypingTracker(time.Minute, recorder.record)

	// First incarnation, then an explicit clear (as send-message performs),
	// then the user starts typing again.
	tracker.MarkTyping("r1", "alice")
	firstGen := tracker.rooms["r1"]["alice"].generation
	tracker.ClearTyping("r1", "alice")
	tracker.MarkTyping("r1", "alice")

	// Deliver the first incarnation's expiry by hand, as its timer goroutine
	// would if it had been blocked on the mutex while the clear ran. The
	// fresh entry carries a later generation and must survive.
	tracker.expire("r1", "alice", firstGen)
	req.Equal([]string{"alice"}, tracker.CurrentTypers("r1"))
	req.Zero(recorder.count())
}

func TestTypingTracker_RoomsAreIndependent(t *testing.T) {
	req := require.New(t)
	tracker := NewTypingTracker(time.Minute, nil)

	tracker.MarkTyping("r1", "alice")
	tracker.MarkTyping("r1", "bob")
	tracker.MarkTyping("r2", "carol")

	req.Equal([]string{"alice", "bob"}, tracker.CurrentTypers("r1"))
	req.Equal([]string{"carol"}, tracker.CurrentTypers("r2"))
	req.Empty(tracker.CurrentTypers("r3"))

	tracker.ClearTyping("r1", "alice")
	req.Equal([]string{"bob"}, tracker.CurrentTypers("r1"))
	req.Equal([]string{"carol"}, tracker.CurrentTypers("r2"))
}
