package party

import "errors"

var (
	ErrPartyNotFound         = errors.New("party not found")
	ErrPartyAlreadyExists    = errors.New("party already exists")
	ErrMemberNotFound        = errors.New("member not found")
	ErrPlaybackStateNotFound = errors.New("playback state not found")
	ErrQueueEmpty            = errors.New("queue is empty")
)
