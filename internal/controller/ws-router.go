package controller

import (
	"context"

	"github.com/sharetube/partysync/pkg/protocol"
	"github.com/sharetube/partysync/pkg/wsrouter"
)

func (c controller) getWSRouter() *wsrouter.WSRouter {
	mux := wsrouter.New()
	mux.Use(c.wsRequestIdWSMw(), c.loggerWSMw())
	mux.OnError(c.handleWSError)

	wsrouter.Handle(mux, c.handleTimePing)
	wsrouter.Handle(mux, c.handleAlive)
	wsrouter.Handle(mux, c.handleSelectTrack)
	wsrouter.Handle(mux, c.handleQueueTrack)
	wsrouter.Handle(mux, c.handleGo)
	wsrouter.Handle(mux, c.handlePausePlayback)
	wsrouter.Handle(mux, c.handleResume)
	wsrouter.Handle(mux, c.handleSeek)
	wsrouter.Handle(mux, c.handleStopPlayback)
	wsrouter.Handle(mux, c.handleNextTrack)
	wsrouter.Handle(mux, c.handleTrackEnded)
	wsrouter.Handle(mux, c.handleEndParty)

	return mux
}

// handleWSError answers the sender only. The connection stays open.
func (c controller) handleWSError(ctx context.Context, conn wsrouter.Conn, err error) {
	msg := errorMessage(err)
	if msg.Code == codeInternal {
		c.logger.ErrorContext(ctx, "websocket message failed", "error", err)
	} else {
		c.logger.InfoContext(ctx, "websocket message rejected", "code", msg.Code, "error", err)
	}

	if err := conn.WriteJSON(protocol.Encode(msg)); err != nil {
		c.logger.WarnContext(ctx, "failed to write error", "error", err)
	}
}
