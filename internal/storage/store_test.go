package storage

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const testRedisAddr = "localhost:6379"

// newTestStore connects to a local Redis or skips the test. Each store gets a
// unique room namespace so parallel runs never collide.
func newTestStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: testRedisAddr})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available at %s: %v", testRedisAddr, err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return New(client, slog.Default(), ttl)
}

func testRoom(t *testing.T, store *Store) string {
	t.Helper()
	room := "test-" + uuid.NewString()
	t.Cleanup(func() {
		_ = store.client.Del(context.Background(), roomKey(room)).Err()
	})
	return room
}

func TestAppendAndRecentKeepOrder(t *testing.T) {
	store := newTestStore(t, time.Minute)
	ctx := context.Background()
	room := testRoom(t, store)

	records := []MessageRecord{
		{ID: uuid.NewString(), Sender: "alice", Text: "first", Timestamp: 1},
		{ID: uuid.NewString(), Sender: "bob", Text: "second", Timestamp: 2},
		{ID: uuid.NewString(), Sender: "alice", Text: "third", Timestamp: 3, ReplyTo: "some-id"},
	}
	for _, rec := range records {
		if err := store.Append(ctx, room, rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := store.Recent(ctx, room)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != len(records) {
		t.Fatalf("expected %d records, got %d", len(records), len(got))
	}
	for i, rec := range records {
		if got[i] != rec {
			t.Fatalf("record %d mismatch: got %+v want %+v", i, got[i], rec)
		}
	}

	// A second read without an intervening append returns the same sequence.
	again, err := store.Recent(ctx, room)
	if err != nil {
		t.Fatalf("Recent again: %v", err)
	}
	if len(again) != len(got) {
		t.Fatalf("expected identical sequences, got %d then %d", len(got), len(again))
	}
}

func TestRecentUnknownRoomIsEmpty(t *testing.T) {
	store := newTestStore(t, time.Minute)

	got, err := store.Recent(context.Background(), "no-such-room-"+uuid.NewString())
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty history, got %d records", len(got))
	}
}

func TestRoomsAreIndependent(t *testing.T) {
	store := newTestStore(t, time.Minute)
	ctx := context.Background()
	roomA := testRoom(t, store)
	roomB := testRoom(t, store)

	// Interleave appends across two rooms; each room keeps its own order.
	if err := store.Append(ctx, roomA, MessageRecord{ID: "a1", Sender: "alice", Text: "a one"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Append(ctx, roomB, MessageRecord{ID: "b1", Sender: "bob", Text: "b one"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Append(ctx, roomA, MessageRecord{ID: "a2", Sender: "alice", Text: "a two"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	gotA, err := store.Recent(ctx, roomA)
	if err != nil {
		t.Fatalf("Recent roomA: %v", err)
	}
	if len(gotA) != 2 || gotA[0].ID != "a1" || gotA[1].ID != "a2" {
		t.Fatalf("unexpected roomA history: %+v", gotA)
	}
	gotB, err := store.Recent(ctx, roomB)
	if err != nil {
		t.Fatalf("Recent roomB: %v", err)
	}
	if len(gotB) != 1 || gotB[0].ID != "b1" {
		t.Fatalf("unexpected roomB history: %+v", gotB)
	}
}

func TestAppendResetsRetention(t *testing.T) {
	store := newTestStore(t, 200*time.Millisecond)
	ctx := context.Background()
	room := testRoom(t, store)

	if err := store.Append(ctx, room, MessageRecord{ID: "m1", Sender: "alice", Text: "hi"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	time.Sleep(400 * time.Millisecond)

	got, err := store.Recent(ctx, room)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected history to expire, got %d records", len(got))
	}
}
