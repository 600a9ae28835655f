package guest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sharetube/partysync/pkg/playback"
	"github.com/sharetube/partysync/pkg/protocol"
)

var ErrUnknownCommand = errors.New("unknown command")

const commandUsage = "resync | select <url> [title] | queue <url> [title] | go | pause | resume | seek <sec> | stop | next | end"

// parseCommand turns one stdin line into a host command. currentVersion is
// used by "end", which reports the end of the current schedule.
func parseCommand(line string, currentVersion int64) (protocol.Message, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, ErrUnknownCommand
	}

	track := func() (playback.Track, error) {
		if len(fields) < 2 {
			return playback.Track{}, fmt.Errorf("%s needs a track url", fields[0])
		}
		return playback.Track{
			Id:    uuid.NewString(),
			URL:   fields[1],
			Title: strings.Join(fields[2:], " "),
		}, nil
	}

	switch fields[0] {
	case "select":
		t, err := track()
		if err != nil {
			return nil, err
		}
		return protocol.SelectTrack{Track: t}, nil
	case "queue":
		t, err := track()
		if err != nil {
			return nil, err
		}
		return protocol.QueueTrack{Track: t}, nil
	case "go":
		return protocol.Go{}, nil
	case "pause":
		return protocol.PausePlayback{}, nil
	case "resume":
		return protocol.Resume{}, nil
	case "seek":
		if len(fields) != 2 {
			return nil, fmt.Errorf("seek needs a position in seconds")
		}
		pos, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || pos < 0 {
			return nil, fmt.Errorf("invalid seek position %q", fields[1])
		}
		return protocol.Seek{PositionSec: pos}, nil
	case "stop":
		return protocol.StopPlayback{}, nil
	case "next":
		return protocol.NextTrack{}, nil
	case "end":
		return protocol.TrackEnded{Version: currentVersion}, nil
	}

	return nil, fmt.Errorf("%w %q", ErrUnknownCommand, fields[0])
}

// readCommands executes stdin lines until r is exhausted. Host commands are
// sent over the push channel; the server rejects them for non-hosts.
func readCommands(ctx context.Context, r io.Reader, session *Session, logger *slog.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "resync":
			st, err := session.Resync(ctx)
			if err != nil {
				logger.WarnContext(ctx, "resync failed", "error", err)
				return
			}
			logger.InfoContext(ctx, "resynced", "local_status", st.Local)
			continue
		}

		msg, err := parseCommand(line, session.Status().Version)
		if err != nil {
			logger.InfoContext(ctx, "invalid command", "error", err, "usage", commandUsage)
			continue
		}

		err = session.Send(ctx, msg)
		switch {
		case errors.Is(err, ErrSessionClosed), errors.Is(err, context.Canceled):
			return
		case err != nil:
			logger.WarnContext(ctx, "failed to send command", "type", msg.Type(), "error", err)
		default:
			logger.DebugContext(ctx, "command sent", "type", msg.Type())
		}
	}
}
