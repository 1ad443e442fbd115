// Package rtpsource receives RTP streams over UDP, such as the rtp outputs
// of ffmpeg or gstreamer.
package rtpsource

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/juju/errors"
	"github.com/oxtoacart/bpool"
	"github.com/peer-calls/mediaproducer/server/logger"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var prometheusPacketsReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rtp_source_packets_received_total",
	Help: "Total number of RTP packets received from sources",
}, []string{"source"})

var prometheusKeyframeRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rtp_source_keyframe_requests_total",
	Help: "Total number of PLI packets sent to sources",
}, []string{"source"})

const readBufferPoolSize = 4

type Params struct {
	Log  logger.Logger
	Name string
	Conn net.PacketConn
	// RTCPAddr receives keyframe requests. Optional.
	RTCPAddr net.Addr
	MTU      int
}

// Source reads RTP packets from a UDP socket.
type Source struct {
	params  Params
	log     logger.Logger
	bufPool *bpool.BytePool

	// ssrc of the last received packet.
	ssrc uint32

	closeOnce sync.Once
	closeErr  error
}

func New(params Params) *Source {
	if params.MTU <= 0 {
		params.MTU = defaultMTU
	}

	return &Source{
		params:  params,
		bufPool: bpool.NewBytePool(readBufferPoolSize, params.MTU),
		log: params.Log.WithNamespaceAppended("rtp_source").WithCtx(logger.Ctx{
			"source": params.Name,
		}),
	}
}

// Listen binds the UDP socket described by rawURL.
func Listen(log logger.Logger, name string, rawURL string) (*Source, error) {
	addr, err := ParseURL(rawURL)
	if err != nil {
		return nil, errors.Trace(err)
	}

	conn, err := net.ListenPacket("udp", addr.Listen)
	if err != nil {
		return nil, errors.Annotatef(err, "listen %s", addr.Listen)
	}

	params := Params{
		Log:  log,
		Name: name,
		Conn: conn,
		MTU:  addr.MTU,
	}

	if addr.RTCP != nil {
		params.RTCPAddr = addr.RTCP
	}

	s := New(params)

	s.log.Info("Listening", logger.Ctx{
		"local_addr": conn.LocalAddr().String(),
	})

	return s, nil
}

func (s *Source) LocalAddr() net.Addr {
	return s.params.Conn.LocalAddr()
}

// ReadRTP blocks until a packet is received. Packets that fail to parse
// are skipped.
func (s *Source) ReadRTP() (*rtp.Packet, error) {
	buf := s.bufPool.Get()
	defer s.bufPool.Put(buf)

	for {
		n, _, err := s.params.Conn.ReadFrom(buf)
		if err != nil {
			return nil, errors.Annotate(err, "read RTP")
		}

		packet := &rtp.Packet{}

		// The packet keeps references to the slice it was unmarshaled from.
		data := make([]byte, n)
		copy(data, buf[:n])

		if err := packet.Unmarshal(data); err != nil {
			s.log.Warn("Invalid RTP packet", logger.Ctx{
				"size":  n,
				"error": err,
			})

			continue
		}

		atomic.StoreUint32(&s.ssrc, packet.SSRC)

		prometheusPacketsReceivedTotal.WithLabelValues(s.params.Name).Inc()

		return packet, nil
	}
}

// RequestKeyframe sends a PLI to the RTCP address. It does nothing when no
// RTCP address is configured or no packet was received yet.
func (s *Source) RequestKeyframe() error {
	ssrc := atomic.LoadUint32(&s.ssrc)

	if s.params.RTCPAddr == nil || ssrc == 0 {
		return nil
	}

	b, err := rtcp.Marshal([]rtcp.Packet{
		&rtcp.PictureLossIndication{
			SenderSSRC: ssrc,
			MediaSSRC:  ssrc,
		},
	})
	if err != nil {
		return errors.Annotate(err, "marshal PLI")
	}

	if _, err := s.params.Conn.WriteTo(b, s.params.RTCPAddr); err != nil {
		return errors.Annotatef(err, "write PLI to %s", s.params.RTCPAddr)
	}

	prometheusKeyframeRequestsTotal.WithLabelValues(s.params.Name).Inc()

	s.log.Debug("Sent PLI", logger.Ctx{
		"ssrc": ssrc,
	})

	return nil
}

// Close unblocks ReadRTP.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = errors.Trace(s.params.Conn.Close())
	})

	return s.closeErr
}
