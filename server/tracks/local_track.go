// Package tracks contains the local media tracks fed by the publish
// command.
package tracks

import (
	"sync"
	stdatomic "sync/atomic"

	"github.com/juju/errors"
	"github.com/peer-calls/mediaproducer/server/atomic"
	"github.com/peer-calls/mediaproducer/server/producer"
	"github.com/peer-calls/mediaproducer/server/transport"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// ErrTrackEnded is returned by writes to a stopped track.
var ErrTrackEnded = errors.New("track ended")

// LocalTrack is an RTP track that can be disabled, in which case packets
// are silently dropped, and stopped.
type LocalTrack struct {
	*webrtc.TrackLocalStaticRTP

	enabled atomic.Bool
	ended   atomic.Bool

	endedOnce sync.Once
	endedCh   chan struct{}

	packetsWritten uint64
	packetsDropped uint64
}

var (
	_ producer.Track    = &LocalTrack{}
	_ webrtc.TrackLocal = &LocalTrack{}
)

// NewLocalTrack creates an enabled, live track.
func NewLocalTrack(codec transport.Codec, id, streamID string) (*LocalTrack, error) {
	staticRTP, err := webrtc.NewTrackLocalStaticRTP(codec.Capability(), id, streamID)
	if err != nil {
		return nil, errors.Annotatef(err, "new track %s", id)
	}

	t := &LocalTrack{
		TrackLocalStaticRTP: staticRTP,
		endedCh:             make(chan struct{}),
	}

	t.enabled.Set(true)

	return t, nil
}

func (t *LocalTrack) Enabled() bool {
	return t.enabled.Get()
}

func (t *LocalTrack) SetEnabled(enabled bool) {
	t.enabled.Set(enabled)
}

func (t *LocalTrack) ReadyState() producer.TrackState {
	if t.ended.Get() {
		return producer.TrackStateEnded
	}

	return producer.TrackStateLive
}

// Stop ends the track. It cannot be restarted.
func (t *LocalTrack) Stop() {
	t.endedOnce.Do(func() {
		t.ended.Set(true)
		close(t.endedCh)
	})
}

// Ended is closed after Stop.
func (t *LocalTrack) Ended() <-chan struct{} {
	return t.endedCh
}

func (t *LocalTrack) accept() (bool, error) {
	if t.ended.Get() {
		return false, errors.Trace(ErrTrackEnded)
	}

	if !t.enabled.Get() {
		stdatomic.AddUint64(&t.packetsDropped, 1)

		return false, nil
	}

	stdatomic.AddUint64(&t.packetsWritten, 1)

	return true, nil
}

// WriteRTP sends the packet to all bound senders. Packets written while the
// track is disabled are dropped.
func (t *LocalTrack) WriteRTP(packet *rtp.Packet) error {
	if ok, err := t.accept(); !ok {
		return err
	}

	return errors.Trace(t.TrackLocalStaticRTP.WriteRTP(packet))
}

// Write is like WriteRTP for a marshaled packet. Dropped packets count as
// written.
func (t *LocalTrack) Write(b []byte) (int, error) {
	if ok, err := t.accept(); !ok {
		if err != nil {
			return 0, err
		}

		return len(b), nil
	}

	n, err := t.TrackLocalStaticRTP.Write(b)

	return n, errors.Trace(err)
}

// PacketsWritten returns the number of packets passed on to senders.
func (t *LocalTrack) PacketsWritten() uint64 {
	return stdatomic.LoadUint64(&t.packetsWritten)
}

// PacketsDropped returns the number of packets dropped while disabled.
func (t *LocalTrack) PacketsDropped() uint64 {
	return stdatomic.LoadUint64(&t.packetsDropped)
}
