package wsrouter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sharetube/partysync/pkg/protocol"
)

type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
}

type HandlerFunc[T any] func(ctx context.Context, conn Conn, msg T) error

type Middleware func(next HandlerFunc[protocol.Message]) HandlerFunc[protocol.Message]

type ErrorHandler func(ctx context.Context, conn Conn, err error)

type WSRouter struct {
	routes      map[protocol.Type]HandlerFunc[protocol.Message]
	middlewares []Middleware
	onError     ErrorHandler
}

func New() *WSRouter {
	return &WSRouter{
		routes:  make(map[protocol.Type]HandlerFunc[protocol.Message]),
		onError: func(context.Context, Conn, error) {},
	}
}

func (r *WSRouter) Use(mw ...Middleware) {
	r.middlewares = append(r.middlewares, mw...)
}

func (r *WSRouter) OnError(h ErrorHandler) {
	r.onError = h
}

// Handle registers h for the message type of T.
func Handle[T protocol.Message](r *WSRouter, h HandlerFunc[T]) {
	var zero T
	r.routes[zero.Type()] = func(ctx context.Context, conn Conn, msg protocol.Message) error {
		typed, ok := msg.(T)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", msg, zero.Type())
		}

		return h(ctx, conn, typed)
	}
}

func (r *WSRouter) handler(t protocol.Type) (HandlerFunc[protocol.Message], bool) {
	h, ok := r.routes[t]
	if !ok {
		return nil, false
	}

	for i := len(r.middlewares) - 1; i >= 0; i-- {
		h = r.middlewares[i](h)
	}

	return h, true
}

// ServeConn reads messages until the connection fails and dispatches them.
// Handler errors are reported to the error handler and do not end the loop.
func (r *WSRouter) ServeConn(ctx context.Context, conn Conn) error {
	for {
		var raw json.RawMessage
		if err := conn.ReadJSON(&raw); err != nil {
			return err
		}

		msg, err := protocol.Unmarshal(raw)
		if err != nil {
			r.onError(ctx, conn, err)
			continue
		}

		h, ok := r.handler(msg.Type())
		if !ok {
			r.onError(ctx, conn, fmt.Errorf("%w: %q", protocol.ErrUnknownType, msg.Type()))
			continue
		}

		msgCtx := context.WithValue(ctx, messageTypeKey, string(msg.Type()))
		if err := h(msgCtx, conn, msg); err != nil {
			r.onError(msgCtx, conn, err)
		}
	}
}
