package guest

// MediaElement is the local audio output a session drives. Positions are in
// seconds of track time.
type MediaElement interface {
	Load(url string) error
	Position() float64
	Seek(positionSec float64)
	// Play starts output. userGesture is true when the call originates from
	// an explicit user action.
	Play(userGesture bool) PlayResult
	Pause()
}

// PlayResult is one of Started, AutoplayBlocked or Failed.
type PlayResult interface {
	isPlayResult()
}

type Started struct{}

// AutoplayBlocked means the platform refused to start output without a user
// gesture.
type AutoplayBlocked struct{}

type Failed struct {
	Err error
}

func (Started) isPlayResult()         {}
func (AutoplayBlocked) isPlayResult() {}
func (Failed) isPlayResult()          {}
