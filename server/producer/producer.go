// Package producer implements the state machine of a single outbound media
// track. Transport level work is delegated to a PrivateListener and
// transport initiated closure is reported to a Listener.
package producer

import (
	"github.com/juju/errors"
	"github.com/peer-calls/mediaproducer/server/atomic"
	"github.com/peer-calls/mediaproducer/server/identifiers"
	"github.com/peer-calls/mediaproducer/server/logger"
	"github.com/peer-calls/mediaproducer/server/transport"
	"github.com/pion/webrtc/v4"
)

// AppData is arbitrary application metadata. It never affects the
// Producer.
type AppData map[string]interface{}

type Params struct {
	Log logger.Logger

	ID      identifiers.ProducerID
	LocalID identifiers.LocalID

	// Track is required. Its kind becomes the kind of the Producer.
	Track Track

	RTPParameters   webrtc.RTPSendParameters
	MaxSpatialLayer uint8
	AppData         AppData

	// StopTracks tells the PrivateListener to stop the track on close. The
	// Producer itself never stops tracks.
	StopTracks bool
	// ZeroRTPOnPause replaces the sent track with nothing while paused.
	ZeroRTPOnPause bool
	// DisableTrackOnPause disables the track while paused.
	DisableTrackOnPause bool

	PrivateListener PrivateListener
	// Listener is optional.
	Listener Listener
}

// Producer is not safe for concurrent use, with the exception of Close,
// TransportClosed and Closed, which may race each other.
type Producer struct {
	log logger.Logger

	id            identifiers.ProducerID
	localID       identifiers.LocalID
	kind          transport.TrackKind
	rtpParameters webrtc.RTPSendParameters

	stopTracks          bool
	zeroRTPOnPause      bool
	disableTrackOnPause bool

	privateListener PrivateListener
	listener        Listener

	closed          atomic.Bool
	paused          bool
	track           Track
	maxSpatialLayer uint8
	appData         AppData
}

func New(params Params) (*Producer, error) {
	if params.Track == nil {
		return nil, errors.NotValidf("nil track")
	}

	if params.PrivateListener == nil {
		return nil, errors.NotValidf("nil private listener")
	}

	listener := params.Listener
	if listener == nil {
		listener = nopListener{}
	}

	appData := params.AppData
	if appData == nil {
		appData = AppData{}
	}

	kind := transport.NewTrackKind(params.Track.Kind())

	log := params.Log
	if log == nil {
		log = logger.New()
	}

	return &Producer{
		log: log.WithNamespaceAppended("producer").WithCtx(logger.Ctx{
			"producer_id": params.ID,
			"kind":        kind,
		}),

		id:            params.ID,
		localID:       params.LocalID,
		kind:          kind,
		rtpParameters: params.RTPParameters,

		stopTracks:          params.StopTracks,
		zeroRTPOnPause:      params.ZeroRTPOnPause,
		disableTrackOnPause: params.DisableTrackOnPause,

		privateListener: params.PrivateListener,
		listener:        listener,

		track:           params.Track,
		maxSpatialLayer: params.MaxSpatialLayer,
		appData:         appData,
	}, nil
}

func (p *Producer) ID() identifiers.ProducerID {
	return p.id
}

func (p *Producer) LocalID() identifiers.LocalID {
	return p.localID
}

func (p *Producer) Closed() bool {
	return p.closed.Get()
}

// Kind is the kind of the track the Producer was created with. It does not
// change when the track is replaced or removed.
func (p *Producer) Kind() transport.TrackKind {
	return p.kind
}

func (p *Producer) RTPParameters() webrtc.RTPSendParameters {
	return p.rtpParameters
}

func (p *Producer) Paused() bool {
	return p.paused
}

func (p *Producer) MaxSpatialLayer() uint8 {
	return p.maxSpatialLayer
}

func (p *Producer) AppData() AppData {
	return p.appData
}

func (p *Producer) SetAppData(appData AppData) {
	p.appData = appData
}

// Track returns the current track, or nil after ReplaceTrack(nil).
func (p *Producer) Track() Track {
	return p.track
}

// StopTracks reports whether the track should be stopped when the Producer
// closes.
func (p *Producer) StopTracks() bool {
	return p.stopTracks
}

func (p *Producer) ZeroRTPOnPause() bool {
	return p.zeroRTPOnPause
}

func (p *Producer) DisableTrackOnPause() bool {
	return p.disableTrackOnPause
}

// Close closes the Producer and calls PrivateListener.OnClose. Subsequent
// calls do nothing.
func (p *Producer) Close() {
	if !p.closed.CompareAndSwap(true) {
		return
	}

	p.log.Debug("Close", nil)

	p.privateListener.OnClose(p)
}

// TransportClosed closes the Producer after its transport has closed and
// calls Listener.OnTransportClose. Subsequent calls do nothing.
func (p *Producer) TransportClosed() {
	if !p.closed.CompareAndSwap(true) {
		return
	}

	p.log.Debug("Transport closed", nil)

	p.listener.OnTransportClose(p)
}

// Pause does nothing, and returns nil, when the Producer is closed. An error
// is only returned when the track could not be removed from the sender, in
// which case the Producer stays unpaused.
func (p *Producer) Pause() error {
	return errors.Trace(p.setPaused(true))
}

// Resume is the inverse of Pause.
func (p *Producer) Resume() error {
	return errors.Trace(p.setPaused(false))
}

func (p *Producer) setPaused(paused bool) error {
	action := "Resume"
	if paused {
		action = "Pause"
	}

	if p.closed.Get() {
		p.log.Error(action, errors.Annotate(ErrInvalidState, "producer closed"), nil)

		return nil
	}

	p.log.Debug(action, nil)

	prevPaused := p.paused
	toggleTrack := p.track != nil && p.disableTrackOnPause

	var prevEnabled bool

	if toggleTrack {
		prevEnabled = p.track.Enabled()
		p.track.SetEnabled(!paused)
	}

	p.paused = paused

	if !p.zeroRTPOnPause {
		return nil
	}

	var sendTrack Track
	if !paused {
		sendTrack = p.track
	}

	if err := p.privateListener.OnReplaceTrack(p, sendTrack); err != nil {
		p.paused = prevPaused

		if toggleTrack {
			p.track.SetEnabled(prevEnabled)
		}

		return errors.Annotatef(err, "%s", action)
	}

	return nil
}

// ReplaceTrack replaces the sent track. A nil track stops sending until
// another track is set. The track is enabled or disabled according to the
// paused state of the Producer. While paused with ZeroRTPOnPause the sender
// keeps sending nothing and Resume hands it the new track.
func (p *Producer) ReplaceTrack(track Track) error {
	if p.closed.Get() {
		return errors.Annotate(ErrInvalidState, "replace track: producer closed")
	}

	if track != nil && track.ReadyState() == TrackStateEnded {
		return errors.Annotatef(ErrInvalidState, "replace track: track %s ended", track.ID())
	}

	if track == p.track {
		p.log.Debug("Replace track: same track, ignoring", nil)

		return nil
	}

	if !(p.zeroRTPOnPause && p.paused) {
		if err := p.privateListener.OnReplaceTrack(p, track); err != nil {
			return errors.Annotate(err, "replace track")
		}
	}

	p.track = track

	if track != nil {
		track.SetEnabled(!p.paused)

		p.log.Debug("Replaced track", logger.Ctx{
			"track_id": track.ID(),
		})
	} else {
		p.log.Debug("Removed track", nil)
	}

	return nil
}

func (p *Producer) checkVideo(operation string) error {
	if p.closed.Get() {
		return errors.Annotatef(ErrInvalidState, "%s: producer closed", operation)
	}

	if p.kind != transport.TrackKindVideo {
		return errors.Annotatef(ErrTypeMismatch, "%s: not a video producer", operation)
	}

	return nil
}

// SetMaxSpatialLayer limits the simulcast layers sent to layers 0..layer.
// It is only valid for video.
func (p *Producer) SetMaxSpatialLayer(layer uint8) error {
	if err := p.checkVideo("set max spatial layer"); err != nil {
		return errors.Trace(err)
	}

	if layer == p.maxSpatialLayer {
		return nil
	}

	if err := p.privateListener.OnSetMaxSpatialLayer(p, layer); err != nil {
		return errors.Annotatef(err, "set max spatial layer %d", layer)
	}

	p.log.Debug("Set max spatial layer", logger.Ctx{
		"from": p.maxSpatialLayer,
		"to":   layer,
	})

	p.maxSpatialLayer = layer

	return nil
}

// SetRTPEncodingParameters updates the parameters of each encoding. It is
// only valid for video. The parameters are not cached, so every call
// reaches the transport.
func (p *Producer) SetRTPEncodingParameters(params []transport.EncodingParameters) error {
	if err := p.checkVideo("set rtp encoding parameters"); err != nil {
		return errors.Trace(err)
	}

	return errors.Annotate(
		p.privateListener.OnSetRTPEncodingParameters(p, params),
		"set rtp encoding parameters",
	)
}

// Stats returns the transport statistics related to this Producer.
func (p *Producer) Stats() (webrtc.StatsReport, error) {
	if p.closed.Get() {
		return nil, errors.Annotate(ErrInvalidState, "get stats: producer closed")
	}

	stats, err := p.privateListener.OnGetStats(p)

	return stats, errors.Annotate(err, "get stats")
}
