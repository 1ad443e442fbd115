package sendtransport_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/peer-calls/mediaproducer/server/identifiers"
	"github.com/peer-calls/mediaproducer/server/multierr"
	"github.com/peer-calls/mediaproducer/server/producer"
	"github.com/peer-calls/mediaproducer/server/sendtransport"
	"github.com/peer-calls/mediaproducer/server/test"
	"github.com/peer-calls/mediaproducer/server/tracks"
	"github.com/peer-calls/mediaproducer/server/transport"
	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeSender struct {
	encodings []webrtc.RTPEncodingParameters

	rtcpCh    chan []rtcp.Packet
	stoppedCh chan struct{}
	stopOnce  sync.Once

	mu              sync.Mutex
	track           webrtc.TrackLocal
	replaceCalls    int
	errReplaceTrack error
}

func newFakeSender(encodings []webrtc.RTPEncodingParameters, track webrtc.TrackLocal) *fakeSender {
	return &fakeSender{
		encodings: encodings,
		track:     track,
		rtcpCh:    make(chan []rtcp.Packet),
		stoppedCh: make(chan struct{}),
	}
}

func (s *fakeSender) ReplaceTrack(track webrtc.TrackLocal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.replaceCalls++

	if s.errReplaceTrack != nil {
		return s.errReplaceTrack
	}

	s.track = track

	return nil
}

func (s *fakeSender) Track() webrtc.TrackLocal {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.track
}

func (s *fakeSender) GetParameters() webrtc.RTPSendParameters {
	return webrtc.RTPSendParameters{
		Encodings: append([]webrtc.RTPEncodingParameters(nil), s.encodings...),
	}
}

func (s *fakeSender) ReadRTCP() ([]rtcp.Packet, interceptor.Attributes, error) {
	select {
	case packets := <-s.rtcpCh:
		return packets, nil, nil
	case <-s.stoppedCh:
		return nil, nil, io.EOF
	}
}

func (s *fakeSender) stop() {
	s.stopOnce.Do(func() {
		close(s.stoppedCh)
	})
}

type fakePeerConnection struct {
	// rids of the encodings of new senders. Senders have a single encoding
	// without RID when empty.
	rids []string

	mu           sync.Mutex
	nextSSRC     webrtc.SSRC
	senders      []*fakeSender
	removed      []*fakeSender
	stats        webrtc.StatsReport
	onState      func(webrtc.PeerConnectionState)
	closeCalls   int
	errAddSender error
}

var _ sendtransport.PeerConnection = &fakePeerConnection{}

func (pc *fakePeerConnection) AddSender(track webrtc.TrackLocal) (sendtransport.Sender, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if pc.errAddSender != nil {
		return nil, pc.errAddSender
	}

	rids := pc.rids
	if len(rids) == 0 {
		rids = []string{""}
	}

	encodings := make([]webrtc.RTPEncodingParameters, len(rids))

	for i, rid := range rids {
		pc.nextSSRC++

		encodings[i] = webrtc.RTPEncodingParameters{
			RTPCodingParameters: webrtc.RTPCodingParameters{
				RID:  rid,
				SSRC: pc.nextSSRC,
			},
		}
	}

	sender := newFakeSender(encodings, track)
	pc.senders = append(pc.senders, sender)

	return sender, nil
}

func (pc *fakePeerConnection) RemoveSender(sender sendtransport.Sender) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	s := sender.(*fakeSender)
	s.stop()

	pc.removed = append(pc.removed, s)

	return nil
}

func (pc *fakePeerConnection) GetStats() webrtc.StatsReport {
	return pc.stats
}

func (pc *fakePeerConnection) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	pc.onState = fn
}

func (pc *fakePeerConnection) Close() error {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	pc.closeCalls++

	for _, s := range pc.senders {
		s.stop()
	}

	return nil
}

func (pc *fakePeerConnection) removedSenders() []*fakeSender {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	return append([]*fakeSender(nil), pc.removed...)
}

type setEncodingsCall struct {
	producerID identifiers.ProducerID
	encodings  []transport.EncodingParameters
}

type fakeListener struct {
	mu sync.Mutex

	produceRequests   []sendtransport.ProduceRequest
	setEncodingsCalls []setEncodingsCall

	errProduce      error
	errSetEncodings error
}

func (l *fakeListener) OnProduce(ctx context.Context, req sendtransport.ProduceRequest) (identifiers.ProducerID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.produceRequests = append(l.produceRequests, req)

	if l.errProduce != nil {
		return "", l.errProduce
	}

	return identifiers.ProducerID("server-" + string(req.Kind)), nil
}

func (l *fakeListener) OnSetEncodings(
	ctx context.Context, producerID identifiers.ProducerID, encodings []transport.EncodingParameters,
) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok {
		panic("OnSetEncodings called without deadline")
	}

	l.setEncodingsCalls = append(l.setEncodingsCalls, setEncodingsCall{producerID, encodings})

	return l.errSetEncodings
}

type testTransport struct {
	*sendtransport.Transport
	pc       *fakePeerConnection
	listener *fakeListener
}

func newTestTransport(t *testing.T) testTransport {
	t.Helper()

	pc := &fakePeerConnection{}
	listener := &fakeListener{}

	tr := sendtransport.New(sendtransport.Params{
		Log:            test.NewLogger(),
		ID:             "transport-1",
		PeerConnection: pc,
		Listener:       listener,
		RequestTimeout: time.Second,
	})

	require.NotNil(t, pc.onState, "state handler must be registered")

	return testTransport{tr, pc, listener}
}

func newTrack(t *testing.T, kind transport.TrackKind) *tracks.LocalTrack {
	t.Helper()

	codec := transport.CodecOpus
	if kind == transport.TrackKindVideo {
		codec = transport.CodecVP8
	}

	track, err := tracks.NewLocalTrack(codec, string(kind), "stream")
	require.NoError(t, err)

	return track
}

var errRemote = errors.New("remote error")

func TestTransport_Produce(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := newTestTransport(t)
	defer tr.Close()

	track := newTrack(t, transport.TrackKindVideo)

	p, err := tr.Produce(context.Background(), sendtransport.ProduceParams{
		Track:   track,
		AppData: producer.AppData{"source": "camera"},
	})
	require.NoError(t, err)

	assert.Equal(t, identifiers.TransportID("transport-1"), tr.ID())
	assert.Equal(t, identifiers.ProducerID("server-video"), p.ID())
	assert.Equal(t, transport.TrackKindVideo, p.Kind())
	assert.Equal(t, producer.Track(track), p.Track())
	assert.Equal(t, webrtc.SSRC(1), p.RTPParameters().Encodings[0].SSRC)

	require.Len(t, tr.listener.produceRequests, 1)
	req := tr.listener.produceRequests[0]
	assert.Equal(t, identifiers.TransportID("transport-1"), req.TransportID)
	assert.Equal(t, p.LocalID(), req.LocalID)
	assert.Equal(t, transport.TrackKindVideo, req.Kind)
	assert.Equal(t, []transport.EncodingParameters{{Active: true}}, req.Encodings)
	assert.Equal(t, producer.AppData{"source": "camera"}, req.AppData)

	assert.Equal(t, []*producer.Producer{p}, tr.Producers())
}

func TestTransport_Produce_Encodings(t *testing.T) {
	defer goleak.VerifyNone(t)

	type testCase struct {
		name       string
		senderRIDs []string
		encodings  []transport.EncodingParameters
		want       []transport.EncodingParameters
		wantErr    bool
	}

	testCases := []testCase{
		{
			name: "single sender encoding",
			want: []transport.EncodingParameters{{Active: true}},
		},
		{
			name:       "sender simulcast",
			senderRIDs: []string{"l", "h"},
			want:       []transport.EncodingParameters{{RID: "l", Active: true}, {RID: "h", Active: true}},
		},
		{
			name:      "single encoding with bitrate",
			encodings: []transport.EncodingParameters{{Active: true, MaxBitrate: 500000}},
			want:      []transport.EncodingParameters{{Active: true, MaxBitrate: 500000}},
		},
		{
			name:       "matching rids",
			senderRIDs: []string{"l", "h"},
			encodings:  []transport.EncodingParameters{{RID: "l", Active: true}, {RID: "h"}},
			want:       []transport.EncodingParameters{{RID: "l", Active: true}, {RID: "h"}},
		},
		{
			name:      "more encodings than sent",
			encodings: []transport.EncodingParameters{{RID: "l", Active: true}, {RID: "h", Active: true}},
			wantErr:   true,
		},
		{
			name:       "rid mismatch",
			senderRIDs: []string{"l", "h"},
			encodings:  []transport.EncodingParameters{{RID: "h", Active: true}, {RID: "l", Active: true}},
			wantErr:    true,
		},
	}

	for _, tc := range testCases {
		tr := newTestTransport(t)
		tr.pc.rids = tc.senderRIDs

		p, err := tr.Produce(context.Background(), sendtransport.ProduceParams{
			Track:     newTrack(t, transport.TrackKindVideo),
			Encodings: tc.encodings,
		})

		if tc.wantErr {
			assert.True(t, errors.IsNotValid(errors.Cause(err)), "%s: %+v", tc.name, err)
			assert.Empty(t, tr.listener.produceRequests, tc.name)
			assert.Len(t, tr.pc.removedSenders(), 1, "%s: sender must be removed", tc.name)
		} else {
			require.NoError(t, err, tc.name)
			require.Len(t, tr.listener.produceRequests, 1, tc.name)

			req := tr.listener.produceRequests[0]
			assert.Equal(t, tc.want, req.Encodings, tc.name)

			sent := tr.pc.senders[0].GetParameters().Encodings
			require.Len(t, req.RTPParameters.Encodings, len(sent), tc.name)
			require.Len(t, req.Encodings, len(sent), tc.name)

			for i, encoding := range sent {
				assert.Equal(t, encoding.RID, req.Encodings[i].RID, tc.name)
				assert.Equal(t, encoding.SSRC, req.RTPParameters.Encodings[i].SSRC, tc.name)
			}

			assert.Equal(t, p.RTPParameters(), req.RTPParameters, tc.name)
		}

		require.NoError(t, tr.Close())
		<-tr.Done()
	}
}

func TestTransport_Produce_Errors(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := newTestTransport(t)

	_, err := tr.Produce(context.Background(), sendtransport.ProduceParams{})
	assert.True(t, errors.IsNotValid(err), "nil track: %+v", err)

	ended := newTrack(t, transport.TrackKindAudio)
	ended.Stop()

	_, err = tr.Produce(context.Background(), sendtransport.ProduceParams{Track: ended})
	assert.True(t, multierr.Is(err, producer.ErrInvalidState), "ended track: %+v", err)

	tr.pc.errAddSender = errRemote

	_, err = tr.Produce(context.Background(), sendtransport.ProduceParams{Track: newTrack(t, transport.TrackKindAudio)})
	assert.True(t, multierr.Is(err, errRemote), "add sender: %+v", err)

	tr.pc.errAddSender = nil
	tr.listener.errProduce = errRemote

	_, err = tr.Produce(context.Background(), sendtransport.ProduceParams{Track: newTrack(t, transport.TrackKindAudio)})
	assert.True(t, multierr.Is(err, errRemote), "remote produce: %+v", err)
	assert.Len(t, tr.pc.removedSenders(), 1, "sender must be removed")
	assert.Empty(t, tr.Producers())

	require.NoError(t, tr.Close())

	_, err = tr.Produce(context.Background(), sendtransport.ProduceParams{Track: newTrack(t, transport.TrackKindAudio)})
	assert.True(t, multierr.Is(err, sendtransport.ErrTransportClosed), "closed: %+v", err)
}

func TestTransport_ProducerClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	type testCase struct {
		stopTracks    bool
		wantTrackStop bool
	}

	testCases := []testCase{
		{false, false},
		{true, true},
	}

	for _, tc := range testCases {
		tr := newTestTransport(t)
		track := newTrack(t, transport.TrackKindAudio)

		p, err := tr.Produce(context.Background(), sendtransport.ProduceParams{
			Track:      track,
			StopTracks: tc.stopTracks,
		})
		require.NoError(t, err)

		p.Close()

		assert.True(t, p.Closed())
		assert.Empty(t, tr.Producers())
		require.Len(t, tr.pc.removedSenders(), 1)
		assert.Equal(t, tc.wantTrackStop, track.ReadyState() == producer.TrackStateEnded)

		require.NoError(t, tr.Close())
		<-tr.Done()
	}
}

func TestTransport_PauseResume_ZeroRTP(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := newTestTransport(t)
	defer tr.Close()

	track := newTrack(t, transport.TrackKindVideo)

	p, err := tr.Produce(context.Background(), sendtransport.ProduceParams{
		Track:               track,
		ZeroRTPOnPause:      true,
		DisableTrackOnPause: true,
	})
	require.NoError(t, err)

	sender := tr.pc.senders[0]

	require.NoError(t, p.Pause())
	assert.Nil(t, sender.Track())
	assert.False(t, track.Enabled())

	require.NoError(t, p.Resume())
	assert.Equal(t, webrtc.TrackLocal(track), sender.Track())
	assert.True(t, track.Enabled())

	sender.errReplaceTrack = errRemote

	err = p.Pause()
	assert.True(t, multierr.Is(err, errRemote), "%+v", err)
	assert.False(t, p.Paused())
	assert.True(t, track.Enabled())
}

func TestTransport_ReplaceTrack(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := newTestTransport(t)
	defer tr.Close()

	p, err := tr.Produce(context.Background(), sendtransport.ProduceParams{
		Track: newTrack(t, transport.TrackKindVideo),
	})
	require.NoError(t, err)

	newVideo := newTrack(t, transport.TrackKindVideo)

	require.NoError(t, p.ReplaceTrack(newVideo))
	assert.Equal(t, webrtc.TrackLocal(newVideo), tr.pc.senders[0].Track())

	require.NoError(t, p.ReplaceTrack(nil))
	assert.Nil(t, tr.pc.senders[0].Track())
	assert.Nil(t, p.Track())
}

func TestTransport_SetMaxSpatialLayer(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := newTestTransport(t)
	defer tr.Close()

	tr.pc.rids = []string{"q", "h", "f"}

	encodings := []transport.EncodingParameters{
		{RID: "q", Active: true, ScaleResolutionDownBy: 4},
		{RID: "h", Active: true, ScaleResolutionDownBy: 2},
		{RID: "f", Active: true},
	}

	p, err := tr.Produce(context.Background(), sendtransport.ProduceParams{
		Track:           newTrack(t, transport.TrackKindVideo),
		Encodings:       encodings,
		MaxSpatialLayer: 2,
	})
	require.NoError(t, err)

	require.NoError(t, p.SetMaxSpatialLayer(1))

	require.Len(t, tr.listener.setEncodingsCalls, 1)
	call := tr.listener.setEncodingsCalls[0]
	assert.Equal(t, p.ID(), call.producerID)
	assert.Equal(t, []bool{true, true, false}, activeFlags(call.encodings))

	got, err := tr.Encodings(p)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, false}, activeFlags(got))

	tr.listener.errSetEncodings = errRemote

	err = p.SetMaxSpatialLayer(0)
	assert.True(t, multierr.Is(err, errRemote), "%+v", err)
	assert.Equal(t, uint8(1), p.MaxSpatialLayer())

	got, err = tr.Encodings(p)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, false}, activeFlags(got), "encodings must not change")
}

func TestTransport_SetRTPEncodingParameters(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := newTestTransport(t)
	defer tr.Close()

	tr.pc.rids = []string{"l", "h"}

	p, err := tr.Produce(context.Background(), sendtransport.ProduceParams{
		Track: newTrack(t, transport.TrackKindVideo),
		Encodings: []transport.EncodingParameters{
			{RID: "l", Active: true},
			{RID: "h", Active: true},
		},
	})
	require.NoError(t, err)

	err = p.SetRTPEncodingParameters([]transport.EncodingParameters{{RID: "l"}})
	assert.True(t, errors.IsNotValid(errors.Cause(err)), "%+v", err)
	assert.Empty(t, tr.listener.setEncodingsCalls)

	params := []transport.EncodingParameters{
		{RID: "l", Active: true, MaxBitrate: 150000},
		{RID: "h", Active: false, MaxBitrate: 1500000},
	}

	require.NoError(t, p.SetRTPEncodingParameters(params))

	got, err := tr.Encodings(p)
	require.NoError(t, err)
	assert.Equal(t, params, got)
}

func TestTransport_Stats(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := newTestTransport(t)
	defer tr.Close()

	audio, err := tr.Produce(context.Background(), sendtransport.ProduceParams{
		Track: newTrack(t, transport.TrackKindAudio),
	})
	require.NoError(t, err)

	video, err := tr.Produce(context.Background(), sendtransport.ProduceParams{
		Track: newTrack(t, transport.TrackKindVideo),
	})
	require.NoError(t, err)

	tr.pc.stats = webrtc.StatsReport{
		"out-1": webrtc.OutboundRTPStreamStats{ID: "out-1", Type: webrtc.StatsTypeOutboundRTP, SSRC: 1},
		"out-2": webrtc.OutboundRTPStreamStats{ID: "out-2", Type: webrtc.StatsTypeOutboundRTP, SSRC: 2},
		"rin-2": webrtc.RemoteInboundRTPStreamStats{ID: "rin-2", Type: webrtc.StatsTypeRemoteInboundRTP, SSRC: 2},
		"pc":    webrtc.PeerConnectionStats{ID: "pc", Type: webrtc.StatsTypePeerConnection},
	}

	stats, err := audio.Stats()
	require.NoError(t, err)
	assert.Equal(t, []string{"out-1"}, statsIDs(stats))

	stats, err = video.Stats()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"out-2", "rin-2"}, statsIDs(stats))
}

func TestTransport_ConnectionFailed(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := newTestTransport(t)

	var (
		mu              sync.Mutex
		transportClosed []*producer.Producer
	)

	listener := producer.ListenerFunc(func(p *producer.Producer) {
		mu.Lock()
		transportClosed = append(transportClosed, p)
		mu.Unlock()
	})

	audioTrack := newTrack(t, transport.TrackKindAudio)

	audio, err := tr.Produce(context.Background(), sendtransport.ProduceParams{
		Track:      audioTrack,
		StopTracks: true,
		Listener:   listener,
	})
	require.NoError(t, err)

	videoTrack := newTrack(t, transport.TrackKindVideo)

	video, err := tr.Produce(context.Background(), sendtransport.ProduceParams{
		Track:    videoTrack,
		Listener: listener,
	})
	require.NoError(t, err)

	tr.pc.onState(webrtc.PeerConnectionStateConnected)

	select {
	case <-tr.Done():
		t.Fatal("transport closed too early")
	default:
	}

	tr.pc.onState(webrtc.PeerConnectionStateFailed)
	tr.pc.onState(webrtc.PeerConnectionStateClosed)

	<-tr.Done()

	assert.True(t, audio.Closed())
	assert.True(t, video.Closed())
	assert.ElementsMatch(t, []*producer.Producer{audio, video}, transportClosed)
	assert.Equal(t, 1, tr.pc.closeCalls)
	assert.Empty(t, tr.pc.removedSenders(), "senders are not removed one by one")
	assert.Empty(t, tr.Producers())

	assert.Equal(t, producer.TrackStateEnded, audioTrack.ReadyState())
	assert.Equal(t, producer.TrackStateLive, videoTrack.ReadyState())

	audio.Close()
	assert.Empty(t, tr.pc.removedSenders(), "closing after transport close is a no-op")
}

func TestTransport_RTCP(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := newTestTransport(t)

	keyframes := &fakeKeyframeRequester{}

	_, err := tr.Produce(context.Background(), sendtransport.ProduceParams{
		Track:             newTrack(t, transport.TrackKindVideo),
		KeyframeRequester: keyframes,
	})
	require.NoError(t, err)

	sender := tr.pc.senders[0]

	cancel := test.Timeout(t, 5*time.Second)
	defer cancel()

	sender.rtcpCh <- []rtcp.Packet{
		&rtcp.PictureLossIndication{MediaSSRC: 1},
		&rtcp.ReceiverEstimatedMaximumBitrate{Bitrate: 1e6, SSRCs: []uint32{1}},
	}

	sender.rtcpCh <- []rtcp.Packet{
		&rtcp.ReceiverReport{SSRC: 2},
	}

	require.NoError(t, tr.Close())
	<-tr.Done()

	assert.Equal(t, 1, keyframes.count())
}

type fakeKeyframeRequester struct {
	mu       sync.Mutex
	requests int
}

func (f *fakeKeyframeRequester) RequestKeyframe() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests++

	return nil
}

func (f *fakeKeyframeRequester) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.requests
}

func activeFlags(encodings []transport.EncodingParameters) []bool {
	ret := make([]bool, len(encodings))

	for i, e := range encodings {
		ret[i] = e.Active
	}

	return ret
}

func statsIDs(report webrtc.StatsReport) []string {
	ret := make([]string, 0, len(report))

	for id := range report {
		ret = append(ret, id)
	}

	return ret
}
