package rtpsource_test

import (
	"net"
	"testing"

	"github.com/juju/errors"
	"github.com/peer-calls/mediaproducer/server/rtpsource"
	"github.com/stretchr/testify/assert"
)

func TestParseURL(t *testing.T) {
	t.Parallel()

	type testCase struct {
		url      string
		wantAddr rtpsource.Address
		wantErr  bool
	}

	testCases := []testCase{
		{"rtp://127.0.0.1:5004", rtpsource.Address{Listen: "127.0.0.1:5004", MTU: 1500}, false},
		{"rtp://0.0.0.0:5004?pkt_size=1200", rtpsource.Address{Listen: "0.0.0.0:5004", MTU: 1200}, false},
		{"rtp://0.0.0.0:5004?rtcpport=5005", rtpsource.Address{
			Listen: "0.0.0.0:5004",
			MTU:    1500,
			RTCP:   &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5005},
		}, false},
		{"rtp://10.0.0.2:5004?rtcpport=5005", rtpsource.Address{
			Listen: "10.0.0.2:5004",
			MTU:    1500,
			RTCP:   &net.UDPAddr{IP: net.ParseIP("10.0.0.2"), Port: 5005},
		}, false},
		{"udp://127.0.0.1:5004", rtpsource.Address{}, true},
		{"rtp://127.0.0.1", rtpsource.Address{}, true},
		{"rtp://127.0.0.1:5004?pkt_size=0", rtpsource.Address{}, true},
		{"rtp://127.0.0.1:5004?rtcpport=x", rtpsource.Address{}, true},
	}

	for _, tc := range testCases {
		addr, err := rtpsource.ParseURL(tc.url)

		if tc.wantErr {
			assert.True(t, errors.IsNotValid(err), "%s: %v", tc.url, err)

			continue
		}

		assert.NoError(t, err, tc.url)
		assert.Equal(t, tc.wantAddr, addr, tc.url)
	}
}
