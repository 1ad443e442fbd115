package sendtransport

import (
	"fmt"
	"time"

	"github.com/pion/interceptor/pkg/stats"
	"github.com/pion/webrtc/v4"
)

// filterStats keeps the RTP stream stats of the given SSRCs.
func filterStats(report webrtc.StatsReport, ssrcs map[webrtc.SSRC]struct{}) webrtc.StatsReport {
	ret := webrtc.StatsReport{}

	for id, s := range report {
		var ssrc webrtc.SSRC

		switch s := s.(type) {
		case webrtc.OutboundRTPStreamStats:
			ssrc = s.SSRC
		case webrtc.RemoteInboundRTPStreamStats:
			ssrc = s.SSRC
		default:
			continue
		}

		if _, ok := ssrcs[ssrc]; ok {
			ret[id] = s
		}
	}

	return ret
}

func senderSSRCs(sender Sender) map[webrtc.SSRC]struct{} {
	encodings := sender.GetParameters().Encodings

	ret := make(map[webrtc.SSRC]struct{}, len(encodings))

	for _, encoding := range encodings {
		ret[encoding.SSRC] = struct{}{}
	}

	return ret
}

type rtpStream struct {
	ssrc webrtc.SSRC
	rid  string
	mid  string
	kind string
}

func statsTimestamp(t time.Time) webrtc.StatsTimestamp {
	return webrtc.StatsTimestamp(t.UnixNano() / int64(time.Millisecond))
}

// addRTPStreamStats converts the interceptor stats of a sent stream. Nothing
// is added before the first packet was sent.
func addRTPStreamStats(report webrtc.StatsReport, s *stats.Stats, stream rtpStream, now time.Time) {
	if s == nil {
		return
	}

	timestamp := statsTimestamp(now)
	outboundID := fmt.Sprintf("outbound-rtp-%d", stream.ssrc)
	remoteID := fmt.Sprintf("remote-inbound-rtp-%d", stream.ssrc)

	hasRemote := s.RemoteInboundRTPStreamStats != (stats.RemoteInboundRTPStreamStats{})

	outbound := webrtc.OutboundRTPStreamStats{
		Mid:             stream.mid,
		Rid:             stream.rid,
		Timestamp:       timestamp,
		Type:            webrtc.StatsTypeOutboundRTP,
		ID:              outboundID,
		SSRC:            stream.ssrc,
		Kind:            stream.kind,
		HeaderBytesSent: s.OutboundRTPStreamStats.HeaderBytesSent,
		FIRCount:        s.OutboundRTPStreamStats.FIRCount,
		PLICount:        s.OutboundRTPStreamStats.PLICount,
		NACKCount:       s.OutboundRTPStreamStats.NACKCount,
		PacketsSent:     uint32(s.OutboundRTPStreamStats.PacketsSent),
		BytesSent:       s.OutboundRTPStreamStats.BytesSent,
	}

	if hasRemote {
		outbound.RemoteID = remoteID
	}

	report[outboundID] = outbound

	if !hasRemote {
		return
	}

	remote := s.RemoteInboundRTPStreamStats

	report[remoteID] = webrtc.RemoteInboundRTPStreamStats{
		Timestamp:                 timestamp,
		Type:                      webrtc.StatsTypeRemoteInboundRTP,
		ID:                        remoteID,
		SSRC:                      stream.ssrc,
		Kind:                      stream.kind,
		PacketsReceived:           uint32(remote.PacketsReceived),
		PacketsLost:               int32(remote.PacketsLost),
		Jitter:                    remote.Jitter,
		LocalID:                   outboundID,
		RoundTripTime:             remote.RoundTripTime.Seconds(),
		TotalRoundTripTime:        remote.TotalRoundTripTime.Seconds(),
		FractionLost:              remote.FractionLost,
		RoundTripTimeMeasurements: remote.RoundTripTimeMeasurements,
	}
}
