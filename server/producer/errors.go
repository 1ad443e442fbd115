package producer

import "github.com/juju/errors"

var (
	// ErrInvalidState is the cause of errors returned by operations on a
	// closed producer and by ReplaceTrack with an ended track.
	ErrInvalidState = errors.New("invalid state")

	// ErrTypeMismatch is the cause of errors returned by video only
	// operations on an audio producer.
	ErrTypeMismatch = errors.New("type mismatch")
)
