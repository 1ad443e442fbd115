package sendtransport

import (
	"github.com/juju/errors"
	"github.com/peer-calls/mediaproducer/server/logger"
	"github.com/pion/rtcp"
)

func rtcpPacketType(packet rtcp.Packet) string {
	switch packet.(type) {
	case *rtcp.PictureLossIndication:
		return "pli"
	case *rtcp.FullIntraRequest:
		return "fir"
	case *rtcp.ReceiverEstimatedMaximumBitrate:
		return "remb"
	case *rtcp.ReceiverReport:
		return "receiver_report"
	case *rtcp.TransportLayerNack:
		return "nack"
	default:
		return "other"
	}
}

// readRTCP drains the sender's RTCP until the sender is stopped. Reading is
// required for interceptors such as NACK responders to work.
func (t *Transport) readRTCP(log logger.Logger, sender Sender, keyframes KeyframeRequester) {
	defer t.wg.Done()

	for {
		packets, _, err := sender.ReadRTCP()
		if err != nil {
			log.Trace("RTCP read loop done", logger.Ctx{
				"reason": err,
			})

			return
		}

		for _, packet := range packets {
			packetType := rtcpPacketType(packet)

			prometheusRTCPPacketsReceivedTotal.WithLabelValues(packetType).Inc()

			switch packetType {
			case "pli", "fir":
				log.Debug("Keyframe requested", logger.Ctx{
					"type": packetType,
				})

				if keyframes != nil {
					if err := keyframes.RequestKeyframe(); err != nil {
						log.Error("Request keyframe", errors.Trace(err), nil)
					}
				}
			case "remb":
				if remb, ok := packet.(*rtcp.ReceiverEstimatedMaximumBitrate); ok {
					log.Trace("REMB", logger.Ctx{
						"bitrate": remb.Bitrate,
					})
				}
			}
		}
	}
}
