package rtpsource

import (
	"net"
	"net/url"
	"strconv"

	"github.com/juju/errors"
)

const defaultMTU = 1500

// Address is a parsed rtp:// source URL, for example
// rtp://127.0.0.1:5004?pkt_size=1200&rtcpport=5005.
type Address struct {
	// Listen is the local UDP address RTP is received on.
	Listen string
	// RTCP receives keyframe requests. Nil when no rtcpport is set.
	RTCP *net.UDPAddr
	MTU  int
}

// ParseURL parses rtp://host:port URLs. The optional pkt_size query
// parameter sets the receive buffer size and rtcpport the port of the
// sender that accepts RTCP feedback.
func ParseURL(rawURL string) (Address, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Address{}, errors.Annotatef(err, "parse url %q", rawURL)
	}

	if u.Scheme != "rtp" {
		return Address{}, errors.NotValidf("scheme %q, only rtp:// is supported", u.Scheme)
	}

	if _, err := strconv.ParseUint(u.Port(), 10, 16); err != nil {
		return Address{}, errors.NotValidf("port %q", u.Port())
	}

	addr := Address{
		Listen: u.Host,
		MTU:    defaultMTU,
	}

	q := u.Query()

	if pktSize := q.Get("pkt_size"); pktSize != "" {
		mtu, err := strconv.Atoi(pktSize)
		if err != nil || mtu <= 0 {
			return Address{}, errors.NotValidf("pkt_size %q", pktSize)
		}

		addr.MTU = mtu
	}

	if rtcpPort := q.Get("rtcpport"); rtcpPort != "" {
		port, err := strconv.ParseUint(rtcpPort, 10, 16)
		if err != nil {
			return Address{}, errors.NotValidf("rtcpport %q", rtcpPort)
		}

		ip := net.ParseIP(u.Hostname())
		if ip == nil || ip.IsUnspecified() {
			ip = net.IPv4(127, 0, 0, 1)
		}

		addr.RTCP = &net.UDPAddr{
			IP:   ip,
			Port: int(port),
		}
	}

	return addr, nil
}
