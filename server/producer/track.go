package producer

import "github.com/pion/webrtc/v4"

// TrackState is the ready state of a media track.
type TrackState int

const (
	TrackStateLive TrackState = iota + 1
	TrackStateEnded
)

func (s TrackState) String() string {
	switch s {
	case TrackStateLive:
		return "live"
	case TrackStateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Track is the media source a Producer sends. The Producer only borrows
// it: it reads its state and toggles Enabled but never stops it.
type Track interface {
	ID() string
	Kind() webrtc.RTPCodecType
	ReadyState() TrackState
	Enabled() bool
	SetEnabled(enabled bool)
}
