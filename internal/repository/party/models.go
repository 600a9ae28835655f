package party

type Party struct {
	HostId    string `redis:"host_id"`
	CreatedAt int64  `redis:"created_at"`
}

type Member struct {
	DisplayName string `redis:"display_name"`
	JoinedAt    int64  `redis:"joined_at"`
}

// PlaybackState is the flattened hash layout of playback.State. An empty
// TrackId means no track is loaded.
type PlaybackState struct {
	Status            string  `redis:"status"`
	TrackId           string  `redis:"track_id"`
	TrackURL          string  `redis:"track_url"`
	TrackTitle        string  `redis:"track_title"`
	TrackDurationMs   int64   `redis:"track_duration_ms"`
	StartAtServerMs   int64   `redis:"start_at_server_ms"`
	StartPositionSec  float64 `redis:"start_position_sec"`
	PausedPositionSec float64 `redis:"paused_position_sec"`
	PausedAtServerMs  int64   `redis:"paused_at_server_ms"`
	Version           int64   `redis:"version"`
	UpdatedAtServerMs int64   `redis:"updated_at_server_ms"`
}

type Track struct {
	Id         string `json:"id"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	DurationMs int64  `json:"duration_ms"`
}

type Event struct {
	PartyId string
	Payload []byte
}
