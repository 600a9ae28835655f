package inmemory

import (
	"log/slog"
	"testing"

	"github.com/sharetube/partysync/internal/repository/connection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	closed bool
}

func (c *fakeConn) WriteJSON(any) error { return nil }

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func TestAddReplacesConnection(t *testing.T) {
	r := NewRepo(slog.Default())
	first, second := &fakeConn{}, &fakeConn{}

	r.Add("p1", "m1", first)
	r.Add("p1", "m1", second)

	assert.True(t, first.closed)
	conns := r.GetConns("p1")
	require.Len(t, conns, 1)
	assert.Same(t, second, conns["m1"])

	// the stale connection must not unregister its replacement
	assert.ErrorIs(t, r.Remove("p1", "m1", first), connection.ErrNotFound)
	assert.False(t, second.closed)

	require.NoError(t, r.Remove("p1", "m1", second))
	assert.True(t, second.closed)
	assert.Empty(t, r.GetPartyIds())
}

func TestGetConns(t *testing.T) {
	r := NewRepo(slog.Default())
	r.Add("p1", "m1", &fakeConn{})
	r.Add("p1", "m2", &fakeConn{})
	r.Add("p2", "m3", &fakeConn{})

	conns := r.GetConns("p1")
	assert.Len(t, conns, 2)
	delete(conns, "m1")
	assert.Len(t, r.GetConns("p1"), 2)

	assert.ElementsMatch(t, []string{"p1", "p2"}, r.GetPartyIds())
	assert.Empty(t, r.GetConns("missing"))
	assert.NotContains(t, r.GetConns("p2"), "m1")
}

func TestRemoveParty(t *testing.T) {
	r := NewRepo(slog.Default())
	c1, c2 := &fakeConn{}, &fakeConn{}
	r.Add("p1", "m1", c1)
	r.Add("p1", "m2", c2)

	r.RemoveParty("p1")
	assert.True(t, c1.closed)
	assert.True(t, c2.closed)
	assert.Empty(t, r.GetConns("p1"))
}
