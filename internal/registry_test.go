package internal

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	connID := uuid.NewString()

	_, ok := registry.Lookup(connID)
	req.False(ok)

	registry.Register(connID, "Alice", "r1")

	session, ok := registry.Lookup(connID)
	req.True(ok)
	req.Equal(Session{ConnID: connID, UserName: "Alice", Room: "r1"}, session)
	req.Equal(1, registry.Len())
}

func TestRegistry_RegisterOverwrites(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	connID := uuid.NewString()

	registry.Register(connID, "Alice", "r1")
	registry.Register(connID, "Alice", "r2")

	session, ok := registry.Lookup(connID)
	req.True(ok)
	req.Equal("r2", session.Room)
	req.Equal(1, registry.Len())
}

func TestRegistry_RemoveReturnsSession(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	connID := uuid.NewString()

	_, ok := registry.Remove(connID)
	req.False(ok)

	registry.Register(connID, "Bob", "r1")

	session, ok := registry.Remove(connID)
	req.True(ok)
	req.Equal("Bob", session.UserName)

	_, ok = registry.Lookup(connID)
	req.False(ok)
	req.Equal(0, registry.Len())
}
