package party

import "errors"

var (
	ErrForbidden         = errors.New("only the host can control playback")
	ErrPartyNotFound     = errors.New("party not found")
	ErrMemberNotFound    = errors.New("member not found")
	ErrInvalidTransition = errors.New("invalid playback transition")
	ErrInvalidToken      = errors.New("invalid token")
	ErrLockTimeout       = errors.New("timed out waiting for party lock")
)

// errUnchanged aborts a mutation without persisting or broadcasting.
var errUnchanged = errors.New("state unchanged")
