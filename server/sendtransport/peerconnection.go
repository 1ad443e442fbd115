package sendtransport

import (
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/stats"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
)

// Sender sends a single track. *webrtc.RTPSender implements it.
type Sender interface {
	ReplaceTrack(track webrtc.TrackLocal) error
	GetParameters() webrtc.RTPSendParameters
	ReadRTCP() ([]rtcp.Packet, interceptor.Attributes, error)
}

var _ Sender = &webrtc.RTPSender{}

// PeerConnection is the part of a peer connection used by Transport.
type PeerConnection interface {
	AddSender(track webrtc.TrackLocal) (Sender, error)
	RemoveSender(sender Sender) error
	GetStats() webrtc.StatsReport
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	Close() error
}

// PionPeerConnection adapts *webrtc.PeerConnection to PeerConnection and
// adds the offer/answer steps needed to connect a send only transport.
type PionPeerConnection struct {
	*webrtc.PeerConnection

	statsGetter stats.Getter
}

var _ PeerConnection = &PionPeerConnection{}

func NewPionPeerConnection(api *API, config webrtc.Configuration) (*PionPeerConnection, error) {
	pc, err := api.NewPeerConnection(config)

	return pc, errors.Trace(err)
}

// GetStats adds outbound-rtp and remote-inbound-rtp entries for every sent
// SSRC to the peer connection stats.
func (p *PionPeerConnection) GetStats() webrtc.StatsReport {
	report := p.PeerConnection.GetStats()

	if p.statsGetter == nil {
		return report
	}

	now := time.Now()

	for _, transceiver := range p.GetTransceivers() {
		sender := transceiver.Sender()
		if sender == nil {
			continue
		}

		for _, encoding := range sender.GetParameters().Encodings {
			addRTPStreamStats(report, p.statsGetter.Get(uint32(encoding.SSRC)), rtpStream{
				ssrc: encoding.SSRC,
				rid:  encoding.RID,
				mid:  transceiver.Mid(),
				kind: transceiver.Kind().String(),
			}, now)
		}
	}

	return report
}

// AddSender adds a send only transceiver for track.
func (p *PionPeerConnection) AddSender(track webrtc.TrackLocal) (Sender, error) {
	transceiver, err := p.AddTransceiverFromTrack(track, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendonly,
	})
	if err != nil {
		return nil, errors.Annotatef(err, "add transceiver for track %s", track.ID())
	}

	return transceiver.Sender(), nil
}

func (p *PionPeerConnection) RemoveSender(sender Sender) error {
	rtpSender, ok := sender.(*webrtc.RTPSender)
	if !ok {
		return errors.NotValidf("sender %T", sender)
	}

	return errors.Annotate(p.RemoveTrack(rtpSender), "remove track")
}

// CreateOffer creates and applies a local offer and waits for ICE gathering
// to complete, so that the returned description contains all candidates.
func (p *PionPeerConnection) CreateOffer(ctx context.Context) (webrtc.SessionDescription, error) {
	offer, err := p.PeerConnection.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, errors.Annotate(err, "create offer")
	}

	gatherComplete := webrtc.GatheringCompletePromise(p.PeerConnection)

	if err := p.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, errors.Annotate(err, "set local description")
	}

	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return webrtc.SessionDescription{}, errors.Annotate(ctx.Err(), "wait for ice gathering")
	}

	return *p.LocalDescription(), nil
}

func (p *PionPeerConnection) SetAnswer(answer webrtc.SessionDescription) error {
	return errors.Annotate(p.SetRemoteDescription(answer), "set remote description")
}
