package tracks_test

import (
	"testing"

	"github.com/peer-calls/mediaproducer/server/multierr"
	"github.com/peer-calls/mediaproducer/server/producer"
	"github.com/peer-calls/mediaproducer/server/tracks"
	"github.com/peer-calls/mediaproducer/server/transport"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newPacket(seq uint16) *rtp.Packet {
	return &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    96,
			SequenceNumber: seq,
			SSRC:           1,
		},
		Payload: []byte{0x01, 0x02},
	}
}

func TestLocalTrack(t *testing.T) {
	defer goleak.VerifyNone(t)

	track, err := tracks.NewLocalTrack(transport.CodecVP8, "video", "stream")
	require.NoError(t, err)

	assert.Equal(t, "video", track.ID())
	assert.Equal(t, "stream", track.StreamID())
	assert.Equal(t, webrtc.RTPCodecTypeVideo, track.Kind())
	assert.Equal(t, producer.TrackStateLive, track.ReadyState())
	assert.True(t, track.Enabled())

	require.NoError(t, track.WriteRTP(newPacket(1)))
	assert.Equal(t, uint64(1), track.PacketsWritten())

	track.SetEnabled(false)
	require.NoError(t, track.WriteRTP(newPacket(2)))
	assert.Equal(t, uint64(1), track.PacketsWritten())
	assert.Equal(t, uint64(1), track.PacketsDropped())

	b, err := newPacket(3).Marshal()
	require.NoError(t, err)

	n, err := track.Write(b)
	require.NoError(t, err)
	assert.Equal(t, len(b), n)
	assert.Equal(t, uint64(2), track.PacketsDropped())

	track.SetEnabled(true)

	_, err = track.Write(b)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), track.PacketsWritten())
}

func TestLocalTrack_Stop(t *testing.T) {
	defer goleak.VerifyNone(t)

	track, err := tracks.NewLocalTrack(transport.CodecOpus, "audio", "stream")
	require.NoError(t, err)

	select {
	case <-track.Ended():
		t.Fatal("track should not be ended")
	default:
	}

	track.Stop()
	track.Stop()

	<-track.Ended()

	assert.Equal(t, producer.TrackStateEnded, track.ReadyState())

	err = track.WriteRTP(newPacket(1))
	assert.True(t, multierr.Is(err, tracks.ErrTrackEnded), "%+v", err)

	_, err = track.Write([]byte{0x80})
	assert.True(t, multierr.Is(err, tracks.ErrTrackEnded), "%+v", err)

	assert.Equal(t, uint64(0), track.PacketsWritten())
}
