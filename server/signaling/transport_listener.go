package signaling

import (
	"context"

	"github.com/juju/errors"
	"github.com/peer-calls/mediaproducer/server/identifiers"
	"github.com/peer-calls/mediaproducer/server/sendtransport"
	"github.com/peer-calls/mediaproducer/server/transport"
	"github.com/pion/webrtc/v4"
)

// Request and notification methods.
const (
	MethodConnectTransport     = "connectTransport"
	MethodProduce              = "produce"
	MethodSetProducerEncodings = "setProducerEncodings"
	MethodPauseProducer        = "pauseProducer"
	MethodResumeProducer       = "resumeProducer"
	MethodCloseProducer        = "closeProducer"

	// NotificationProducerClosed is sent by the server when it closes a
	// producer on its side.
	NotificationProducerClosed = "producerClosed"
)

type ConnectTransportRequest struct {
	TransportID identifiers.TransportID   `json:"transportId"`
	Offer       webrtc.SessionDescription `json:"offer"`
}

type ConnectTransportResponse struct {
	Answer webrtc.SessionDescription `json:"answer"`
}

type ProduceResponse struct {
	ID identifiers.ProducerID `json:"id"`
}

type SetProducerEncodingsRequest struct {
	ProducerID identifiers.ProducerID         `json:"producerId"`
	Encodings  []transport.EncodingParameters `json:"encodings"`
}

// ProducerRequest is the payload of requests and notifications that only
// name a producer.
type ProducerRequest struct {
	ProducerID identifiers.ProducerID `json:"producerId"`
}

// TransportListener relays send transport events to the signaling server.
type TransportListener struct {
	client *Client
}

var _ sendtransport.Listener = &TransportListener{}

func NewTransportListener(client *Client) *TransportListener {
	return &TransportListener{client}
}

func (l *TransportListener) OnProduce(ctx context.Context, req sendtransport.ProduceRequest) (identifiers.ProducerID, error) {
	var res ProduceResponse

	if err := l.client.Request(ctx, MethodProduce, req, &res); err != nil {
		return "", errors.Trace(err)
	}

	if res.ID == "" {
		return "", errors.NotValidf("empty producer id for %s", req.LocalID)
	}

	return res.ID, nil
}

func (l *TransportListener) OnSetEncodings(
	ctx context.Context,
	producerID identifiers.ProducerID,
	encodings []transport.EncodingParameters,
) error {
	return errors.Trace(l.client.Request(ctx, MethodSetProducerEncodings, SetProducerEncodingsRequest{
		ProducerID: producerID,
		Encodings:  encodings,
	}, nil))
}

// ConnectTransport sends the local offer and returns the server's answer.
func (l *TransportListener) ConnectTransport(
	ctx context.Context,
	transportID identifiers.TransportID,
	offer webrtc.SessionDescription,
) (webrtc.SessionDescription, error) {
	var res ConnectTransportResponse

	err := l.client.Request(ctx, MethodConnectTransport, ConnectTransportRequest{
		TransportID: transportID,
		Offer:       offer,
	}, &res)
	if err != nil {
		return webrtc.SessionDescription{}, errors.Trace(err)
	}

	if res.Answer.Type != webrtc.SDPTypeAnswer {
		return webrtc.SessionDescription{}, errors.NotValidf("session description type %s", res.Answer.Type)
	}

	return res.Answer, nil
}

func (l *TransportListener) PauseProducer(ctx context.Context, producerID identifiers.ProducerID) error {
	return errors.Trace(l.client.Request(ctx, MethodPauseProducer, ProducerRequest{producerID}, nil))
}

func (l *TransportListener) ResumeProducer(ctx context.Context, producerID identifiers.ProducerID) error {
	return errors.Trace(l.client.Request(ctx, MethodResumeProducer, ProducerRequest{producerID}, nil))
}

// CloseProducer tells the server a producer was closed locally.
func (l *TransportListener) CloseProducer(ctx context.Context, producerID identifiers.ProducerID) error {
	return errors.Trace(l.client.Notify(ctx, MethodCloseProducer, ProducerRequest{producerID}))
}

// ParseProducerClosed returns the id of the producer in a producerClosed
// notification.
func ParseProducerClosed(msg Message) (identifiers.ProducerID, error) {
	if !msg.Notification || msg.Method != NotificationProducerClosed {
		return "", errors.NotValidf("message %q", msg.Method)
	}

	var req ProducerRequest

	if err := msg.DecodeData(&req); err != nil {
		return "", errors.Trace(err)
	}

	return req.ProducerID, nil
}
