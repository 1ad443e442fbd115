// Package identifiers contains the string identifiers exchanged with the
// signaling server.
package identifiers

import "github.com/google/uuid"

// ProducerID is assigned by the remote side when a producer is created.
type ProducerID string

// LocalID identifies a producer's send path inside the local transport.
type LocalID string

// TransportID identifies a send transport on the signaling server.
type TransportID string

func (p ProducerID) String() string {
	return string(p)
}

func (l LocalID) String() string {
	return string(l)
}

func (t TransportID) String() string {
	return string(t)
}

// NewLocalID returns a random LocalID.
func NewLocalID() LocalID {
	return LocalID(uuid.NewString())
}

// NewTransportID returns a random TransportID.
func NewTransportID() TransportID {
	return TransportID(uuid.NewString())
}

// NewStreamID returns a random media stream id for local tracks.
func NewStreamID() string {
	return uuid.NewString()
}
