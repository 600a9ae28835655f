package wsrouter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/sharetube/partysync/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	in  []string
	out []any
}

func (c *fakeConn) ReadJSON(v any) error {
	if len(c.in) == 0 {
		return io.EOF
	}
	next := c.in[0]
	c.in = c.in[1:]
	return json.Unmarshal([]byte(next), v)
}

func (c *fakeConn) WriteJSON(v any) error {
	c.out = append(c.out, v)
	return nil
}

func TestServeConnDispatches(t *testing.T) {
	r := New()

	var pings []protocol.TimePing
	var types []string
	Handle(r, func(ctx context.Context, conn Conn, msg protocol.TimePing) error {
		types = append(types, GetMessageTypeFromCtx(ctx))
		pings = append(pings, msg)
		return conn.WriteJSON(protocol.Encode(protocol.TimePong{PingId: msg.PingId, ServerNowMs: 1}))
	})

	var order []string
	r.Use(func(next HandlerFunc[protocol.Message]) HandlerFunc[protocol.Message] {
		return func(ctx context.Context, conn Conn, msg protocol.Message) error {
			order = append(order, "outer")
			return next(ctx, conn, msg)
		}
	}, func(next HandlerFunc[protocol.Message]) HandlerFunc[protocol.Message] {
		return func(ctx context.Context, conn Conn, msg protocol.Message) error {
			order = append(order, "inner")
			return next(ctx, conn, msg)
		}
	})

	conn := &fakeConn{in: []string{
		`{"type":"TIME_PING","payload":{"ping_id":"a","client_now_ms":1}}`,
		`{"type":"TIME_PING","payload":{"ping_id":"b","client_now_ms":2}}`,
	}}

	err := r.ServeConn(context.Background(), conn)
	assert.ErrorIs(t, err, io.EOF)
	require.Len(t, pings, 2)
	assert.Equal(t, "b", pings[1].PingId)
	assert.Equal(t, []string{"TIME_PING", "TIME_PING"}, types)
	assert.Equal(t, []string{"outer", "inner", "outer", "inner"}, order)
	assert.Len(t, conn.out, 2)
}

func TestServeConnReportsErrors(t *testing.T) {
	r := New()
	handlerErr := errors.New("boom")
	Handle(r, func(context.Context, Conn, protocol.Go) error { return handlerErr })

	var errs []error
	r.OnError(func(_ context.Context, _ Conn, err error) {
		errs = append(errs, err)
	})

	conn := &fakeConn{in: []string{
		`{"type":"NOPE"}`,
		`{"type":"RESUME"}`,
		`{"type":"GO"}`,
	}}

	_ = r.ServeConn(context.Background(), conn)
	require.Len(t, errs, 3)
	assert.ErrorIs(t, errs[0], protocol.ErrUnknownType)
	assert.ErrorIs(t, errs[1], protocol.ErrUnknownType, "no route registered for RESUME")
	assert.ErrorIs(t, errs[2], handlerErr)
}
