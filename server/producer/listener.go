package producer

import (
	"github.com/peer-calls/mediaproducer/server/transport"
	"github.com/pion/webrtc/v4"
)

// PrivateListener is implemented by the transport that created the
// Producer. It performs the transport level side effects of Producer
// operations. A non-nil error aborts the operation and leaves the Producer
// unchanged.
type PrivateListener interface {
	// OnClose is called once when the Producer is closed by the application.
	OnClose(p *Producer)
	OnGetStats(p *Producer) (webrtc.StatsReport, error)
	// OnReplaceTrack is called with a nil track when RTP should stop
	// flowing.
	OnReplaceTrack(p *Producer, track Track) error
	OnSetMaxSpatialLayer(p *Producer, layer uint8) error
	OnSetRTPEncodingParameters(p *Producer, params []transport.EncodingParameters) error
}

// Listener observes closures the application did not request.
type Listener interface {
	// OnTransportClose is called once when the Producer is closed because
	// its transport closed. OnClose is not called in that case.
	OnTransportClose(p *Producer)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(p *Producer)

func (f ListenerFunc) OnTransportClose(p *Producer) {
	f(p)
}

type nopListener struct{}

func (nopListener) OnTransportClose(*Producer) {}
