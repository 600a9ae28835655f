package controller

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/sharetube/partysync/pkg/ctxlogger"
	"github.com/sharetube/partysync/pkg/protocol"
	"github.com/sharetube/partysync/pkg/wsrouter"
)

func (c controller) wsRequestIdWSMw() wsrouter.Middleware {
	return func(next wsrouter.HandlerFunc[protocol.Message]) wsrouter.HandlerFunc[protocol.Message] {
		return func(ctx context.Context, conn wsrouter.Conn, msg protocol.Message) error {
			ctx = ctxlogger.AppendCtx(ctx, slog.String("ws_request_id", c.generateTimeBasedId()))
			return next(ctx, conn, msg)
		}
	}
}

func (c controller) loggerWSMw() wsrouter.Middleware {
	return func(next wsrouter.HandlerFunc[protocol.Message]) wsrouter.HandlerFunc[protocol.Message] {
		return func(ctx context.Context, conn wsrouter.Conn, msg protocol.Message) error {
			ctx = ctxlogger.AppendCtx(ctx, slog.String("message_type", wsrouter.GetMessageTypeFromCtx(ctx)))
			c.logger.DebugContext(ctx, "websocket message received", "payload", msg)

			start := time.Now()

			err := next(ctx, conn, msg)

			var memStats runtime.MemStats
			runtime.ReadMemStats(&memStats)
			c.logger.DebugContext(ctx, "websocket message handled",
				"processing_time_us", time.Since(start).Microseconds(),
				"alloc", memStats.Alloc/1024,
				"goroutines", runtime.NumGoroutine(),
			)

			return err
		}
	}
}
