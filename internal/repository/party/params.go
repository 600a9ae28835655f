package party

type SetPartyParams struct {
	PartyId   string
	HostId    string
	CreatedAt int64
}

type AddMemberParams struct {
	PartyId     string
	MemberId    string
	DisplayName string
	JoinedAt    int64
}

type SetPlaybackStateParams struct {
	PartyId           string
	Status            string
	Track             *Track
	StartAtServerMs   int64
	StartPositionSec  float64
	PausedPositionSec float64
	PausedAtServerMs  int64
	Version           int64
	UpdatedAtServerMs int64
}

type PushTrackParams struct {
	PartyId string
	Track   Track
}

type PublishEventParams struct {
	PartyId string
	Payload []byte
}
