package guest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sharetube/partysync/pkg/protocol"
)

var ErrTransportClosed = errors.New("transport closed")

// WSTransport is the push channel of a session. Incoming messages are
// delivered on Messages, which is closed when the connection ends.
type WSTransport struct {
	conn         *websocket.Conn
	logger       *slog.Logger
	writeTimeout time.Duration

	writeMu  sync.Mutex
	messages chan protocol.Message

	closeOnce sync.Once
	closed    chan struct{}
}

func Dial(ctx context.Context, wsURL string, writeTimeout time.Duration, logger *slog.Logger) (*WSTransport, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial %s: status %d: %w", wsURL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial %s: %w", wsURL, err)
	}

	t := &WSTransport{
		conn:         conn,
		logger:       logger,
		writeTimeout: writeTimeout,
		messages:     make(chan protocol.Message, 16),
		closed:       make(chan struct{}),
	}
	go t.readLoop()

	return t, nil
}

func (t *WSTransport) readLoop() {
	defer close(t.messages)

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			select {
			case <-t.closed:
			default:
				t.logger.Info("push channel closed", "error", err)
			}
			return
		}

		msg, err := protocol.Unmarshal(data)
		if err != nil {
			t.logger.Warn("failed to decode message", "error", err)
			continue
		}

		select {
		case t.messages <- msg:
		case <-t.closed:
			return
		}
	}
}

func (t *WSTransport) Messages() <-chan protocol.Message {
	return t.messages
}

func (t *WSTransport) Send(msg protocol.Message) error {
	select {
	case <-t.closed:
		return ErrTransportClosed
	default:
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.writeTimeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}

	return t.conn.WriteJSON(protocol.Encode(msg))
}

func (t *WSTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)

		t.writeMu.Lock()
		t.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		t.writeMu.Unlock()

		err = t.conn.Close()
	})

	return err
}
