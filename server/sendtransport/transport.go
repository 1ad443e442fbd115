// Package sendtransport implements a send only media transport over a pion
// peer connection. It creates Producers and performs their transport level
// side effects.
package sendtransport

import (
	"context"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/peer-calls/mediaproducer/server/identifiers"
	"github.com/peer-calls/mediaproducer/server/logformatter"
	"github.com/peer-calls/mediaproducer/server/logger"
	"github.com/peer-calls/mediaproducer/server/multierr"
	"github.com/peer-calls/mediaproducer/server/producer"
	"github.com/peer-calls/mediaproducer/server/transport"
	"github.com/pion/webrtc/v4"
)

// ErrTransportClosed is the cause of errors returned by Produce after the
// transport closed.
var ErrTransportClosed = errors.New("transport closed")

const defaultRequestTimeout = 10 * time.Second

// Track is a track that can be sent through a pion sender.
type Track interface {
	producer.Track
	webrtc.TrackLocal
}

type stopper interface {
	Stop()
}

// ProduceRequest is sent to the remote side to create the producer there.
type ProduceRequest struct {
	TransportID   identifiers.TransportID        `json:"transportId"`
	LocalID       identifiers.LocalID            `json:"localId"`
	Kind          transport.TrackKind            `json:"kind"`
	RTPParameters webrtc.RTPSendParameters       `json:"rtpParameters"`
	Encodings     []transport.EncodingParameters `json:"encodings"`
	AppData       producer.AppData               `json:"appData,omitempty"`
}

// Listener forwards producer changes to the remote side.
type Listener interface {
	// OnProduce returns the id the remote side assigned to the producer.
	OnProduce(ctx context.Context, req ProduceRequest) (identifiers.ProducerID, error)
	OnSetEncodings(ctx context.Context, producerID identifiers.ProducerID, encodings []transport.EncodingParameters) error
}

type Params struct {
	Log            logger.Logger
	ID             identifiers.TransportID
	PeerConnection PeerConnection
	Listener       Listener
	// RequestTimeout limits Listener calls made on behalf of producers.
	// Defaults to 10 seconds.
	RequestTimeout time.Duration
}

type ProduceParams struct {
	Track Track
	// Encodings must match the sender's encodings in count and RID order.
	// They default to the sender's encodings, all active.
	Encodings       []transport.EncodingParameters
	MaxSpatialLayer uint8
	AppData         producer.AppData

	StopTracks          bool
	ZeroRTPOnPause      bool
	DisableTrackOnPause bool

	// Listener is notified when the producer closes because the transport
	// closed.
	Listener producer.Listener
	// KeyframeRequester receives PLI and FIR feedback. Optional.
	KeyframeRequester KeyframeRequester
}

// KeyframeRequester asks the media source for a new keyframe.
type KeyframeRequester interface {
	RequestKeyframe() error
}

type sendEntry struct {
	producer  *producer.Producer
	sender    Sender
	encodings []transport.EncodingParameters
}

type Transport struct {
	log logger.Logger

	id             identifiers.TransportID
	peerConnection PeerConnection
	listener       Listener
	requestTimeout time.Duration

	mu        sync.Mutex
	wg        sync.WaitGroup
	closed    bool
	producers map[identifiers.LocalID]*sendEntry

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

var (
	_ producer.PrivateListener = &Transport{}
	_ transport.Closable       = &Transport{}
)

func New(params Params) *Transport {
	id := params.ID
	if id == "" {
		id = identifiers.NewTransportID()
	}

	requestTimeout := params.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}

	t := &Transport{
		log: params.Log.WithNamespaceAppended("send_transport").WithCtx(logger.Ctx{
			"transport_id": id,
		}),

		id:             id,
		peerConnection: params.PeerConnection,
		listener:       params.Listener,
		requestTimeout: requestTimeout,

		producers: map[identifiers.LocalID]*sendEntry{},
		done:      make(chan struct{}),
	}

	t.peerConnection.OnConnectionStateChange(t.handleConnectionState)

	return t
}

func (t *Transport) ID() identifiers.TransportID {
	return t.id
}

func (t *Transport) handleConnectionState(state webrtc.PeerConnectionState) {
	t.log.Info("Peer connection state changed", logger.Ctx{
		"state": state,
	})

	switch state {
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		if err := t.Close(); err != nil {
			t.log.Error("Close after peer connection "+state.String(), errors.Trace(err), nil)
		}
	default:
	}
}

// Produce starts sending params.Track and registers the producer with the
// remote side.
func (t *Transport) Produce(ctx context.Context, params ProduceParams) (*producer.Producer, error) {
	track := params.Track
	if track == nil {
		return nil, errors.NotValidf("nil track")
	}

	if track.ReadyState() == producer.TrackStateEnded {
		return nil, errors.Annotatef(producer.ErrInvalidState, "produce: track %s ended", track.ID())
	}

	if t.isClosed() {
		return nil, errors.Annotate(ErrTransportClosed, "produce")
	}

	sender, err := t.peerConnection.AddSender(track)
	if err != nil {
		return nil, errors.Annotate(err, "produce")
	}

	localID := identifiers.NewLocalID()
	kind := transport.NewTrackKind(track.Kind())
	rtpParameters := sender.GetParameters()

	log := t.log.WithCtx(logger.Ctx{
		"local_id": localID,
		"kind":     kind,
	})

	removeSender := func(cause error) error {
		if err := t.peerConnection.RemoveSender(sender); err != nil {
			log.Error("Remove sender", errors.Trace(err), nil)
		}

		return cause
	}

	encodings, err := senderEncodings(rtpParameters, params.Encodings)
	if err != nil {
		return nil, removeSender(errors.Annotate(err, "produce"))
	}

	producerID, err := t.listener.OnProduce(ctx, ProduceRequest{
		TransportID:   t.id,
		LocalID:       localID,
		Kind:          kind,
		RTPParameters: rtpParameters,
		Encodings:     transport.CopyEncodings(encodings),
		AppData:       params.AppData,
	})
	if err != nil {
		return nil, removeSender(errors.Annotate(err, "produce"))
	}

	p, err := producer.New(producer.Params{
		Log:                 t.log,
		ID:                  producerID,
		LocalID:             localID,
		Track:               track,
		RTPParameters:       rtpParameters,
		MaxSpatialLayer:     params.MaxSpatialLayer,
		AppData:             params.AppData,
		StopTracks:          params.StopTracks,
		ZeroRTPOnPause:      params.ZeroRTPOnPause,
		DisableTrackOnPause: params.DisableTrackOnPause,
		PrivateListener:     t,
		Listener:            params.Listener,
	})
	if err != nil {
		return nil, removeSender(errors.Trace(err))
	}

	t.mu.Lock()

	if t.closed {
		t.mu.Unlock()

		return nil, removeSender(errors.Annotate(ErrTransportClosed, "produce"))
	}

	t.producers[localID] = &sendEntry{
		producer:  p,
		sender:    sender,
		encodings: encodings,
	}

	t.wg.Add(1)

	t.mu.Unlock()

	go t.readRTCP(log.WithNamespaceAppended("rtcp"), sender, params.KeyframeRequester)

	prometheusProducersTotal.Inc()
	prometheusProducersActive.Inc()

	log.Info("Produce", logger.Ctx{
		logformatter.ProducerIDKey: producerID,
	})

	return p, nil
}

// senderEncodings matches the requested encodings to the ones the sender
// actually sends. Without a request every sender encoding is active.
func senderEncodings(
	rtpParameters webrtc.RTPSendParameters, requested []transport.EncodingParameters,
) ([]transport.EncodingParameters, error) {
	sent := rtpParameters.Encodings

	if len(requested) == 0 {
		ret := make([]transport.EncodingParameters, len(sent))

		for i, encoding := range sent {
			ret[i] = transport.EncodingParameters{
				RID:    encoding.RID,
				Active: true,
			}
		}

		return ret, nil
	}

	if len(requested) != len(sent) {
		return nil, errors.NotValidf("%d encodings for a sender with %d", len(requested), len(sent))
	}

	for i, encoding := range sent {
		if requested[i].RID != encoding.RID {
			return nil, errors.NotValidf("encoding %d rid %q, sender sends %q", i, requested[i].RID, encoding.RID)
		}
	}

	return transport.CopyEncodings(requested), nil
}

// Producers returns the open producers.
func (t *Transport) Producers() []*producer.Producer {
	t.mu.Lock()
	defer t.mu.Unlock()

	ret := make([]*producer.Producer, 0, len(t.producers))

	for _, entry := range t.producers {
		ret = append(ret, entry.producer)
	}

	return ret
}

// Encodings returns a copy of the current encodings of a producer.
func (t *Transport) Encodings(p *producer.Producer) ([]transport.EncodingParameters, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.producers[p.LocalID()]
	if !ok {
		return nil, errors.NotFoundf("producer %s", p.LocalID())
	}

	return transport.CopyEncodings(entry.encodings), nil
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.closed
}

func (t *Transport) entry(p *producer.Producer) (*sendEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.producers[p.LocalID()]
	if !ok {
		return nil, errors.NotFoundf("producer %s", p.LocalID())
	}

	return entry, nil
}

func stopTrack(track producer.Track) {
	if s, ok := track.(stopper); ok {
		s.Stop()
	}
}

// OnClose removes the sender of a producer closed by the application.
func (t *Transport) OnClose(p *producer.Producer) {
	t.mu.Lock()

	entry, ok := t.producers[p.LocalID()]
	delete(t.producers, p.LocalID())

	t.mu.Unlock()

	if !ok {
		return
	}

	if err := t.peerConnection.RemoveSender(entry.sender); err != nil {
		t.log.Error("Remove sender", errors.Trace(err), logger.Ctx{
			logformatter.ProducerIDKey: p.ID(),
		})
	}

	if p.StopTracks() && p.Track() != nil {
		stopTrack(p.Track())
	}

	prometheusProducersActive.Dec()
	prometheusProducersClosedTotal.WithLabelValues(closeReasonLocal).Inc()
}

func (t *Transport) OnGetStats(p *producer.Producer) (webrtc.StatsReport, error) {
	entry, err := t.entry(p)
	if err != nil {
		return nil, errors.Trace(err)
	}

	return filterStats(t.peerConnection.GetStats(), senderSSRCs(entry.sender)), nil
}

func (t *Transport) OnReplaceTrack(p *producer.Producer, track producer.Track) error {
	entry, err := t.entry(p)
	if err != nil {
		return errors.Trace(err)
	}

	var trackLocal webrtc.TrackLocal

	if track != nil {
		tl, ok := track.(webrtc.TrackLocal)
		if !ok {
			return errors.NotValidf("track %s of type %T", track.ID(), track)
		}

		trackLocal = tl
	}

	if err := entry.sender.ReplaceTrack(trackLocal); err != nil {
		return errors.Annotate(err, "replace sender track")
	}

	prometheusTrackReplacementsTotal.Inc()

	return nil
}

func (t *Transport) OnSetMaxSpatialLayer(p *producer.Producer, layer uint8) error {
	entry, err := t.entry(p)
	if err != nil {
		return errors.Trace(err)
	}

	t.mu.Lock()
	encodings := transport.ActivateLayers(entry.encodings, layer)
	t.mu.Unlock()

	return errors.Trace(t.setEncodings(entry, encodings))
}

func (t *Transport) OnSetRTPEncodingParameters(p *producer.Producer, params []transport.EncodingParameters) error {
	entry, err := t.entry(p)
	if err != nil {
		return errors.Trace(err)
	}

	t.mu.Lock()
	count := len(entry.encodings)
	t.mu.Unlock()

	if len(params) != count {
		return errors.NotValidf("%d encodings for a sender with %d", len(params), count)
	}

	return errors.Trace(t.setEncodings(entry, transport.CopyEncodings(params)))
}

// setEncodings commits encodings only after the remote side accepted them.
func (t *Transport) setEncodings(entry *sendEntry, encodings []transport.EncodingParameters) error {
	ctx, cancel := context.WithTimeout(context.Background(), t.requestTimeout)
	defer cancel()

	if err := t.listener.OnSetEncodings(ctx, entry.producer.ID(), encodings); err != nil {
		return errors.Annotate(err, "set encodings")
	}

	t.mu.Lock()
	entry.encodings = encodings
	t.mu.Unlock()

	return nil
}

// Close closes the peer connection and notifies every open producer through
// TransportClosed. It is safe to call multiple times.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.close()
	})

	return errors.Trace(t.closeErr)
}

func (t *Transport) close() error {
	t.mu.Lock()

	t.closed = true

	entries := make([]*sendEntry, 0, len(t.producers))
	for _, entry := range t.producers {
		entries = append(entries, entry)
	}

	t.producers = map[identifiers.LocalID]*sendEntry{}

	t.mu.Unlock()

	t.log.Info("Close", logger.Ctx{
		"producers": len(entries),
	})

	errs := multierr.New()

	for _, entry := range entries {
		p := entry.producer

		p.TransportClosed()

		if p.StopTracks() && p.Track() != nil {
			stopTrack(p.Track())
		}

		prometheusProducersActive.Dec()
		prometheusProducersClosedTotal.WithLabelValues(closeReasonTransport).Inc()
	}

	errs.Add(errors.Annotate(t.peerConnection.Close(), "close peer connection"))

	t.wg.Wait()

	close(t.done)

	return errs.Err()
}

// Done is closed after the transport closed and all RTCP loops returned.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}
