package party

import "github.com/sharetube/partysync/pkg/protocol"

// Pong answers a clock ping with the server time at the moment of handling.
func (s service) Pong(ping protocol.TimePing) protocol.TimePong {
	s.metrics.Pongs.Inc()

	return protocol.TimePong{
		PingId:      ping.PingId,
		ServerNowMs: s.nowMs(),
	}
}
