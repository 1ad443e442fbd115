package transport

import (
	"strings"

	"github.com/juju/errors"
	"github.com/pion/webrtc/v4"
)

// Codec describes the payload format of a published track.
type Codec struct {
	MimeType    string `json:"mimeType" yaml:"mime_type"`
	ClockRate   uint32 `json:"clockRate" yaml:"clock_rate"`
	Channels    uint16 `json:"channels" yaml:"channels"`
	SDPFmtpLine string `json:"sdpFmtpLine" yaml:"sdp_fmtp_line"`
}

func (c Codec) TrackKind() TrackKind {
	if strings.HasPrefix(strings.ToLower(c.MimeType), "audio/") {
		return TrackKindAudio
	}

	return TrackKindVideo
}

// Capability converts the codec for use with pion local tracks.
func (c Codec) Capability() webrtc.RTPCodecCapability {
	return webrtc.RTPCodecCapability{
		MimeType:    c.MimeType,
		ClockRate:   c.ClockRate,
		Channels:    c.Channels,
		SDPFmtpLine: c.SDPFmtpLine,
	}
}

// Default codecs of the publish command. They match the payloads produced
// by typical ffmpeg/gstreamer RTP pipelines.
var (
	CodecOpus = Codec{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: 48000,
		Channels:  2,
	}

	CodecVP8 = Codec{
		MimeType:  webrtc.MimeTypeVP8,
		ClockRate: 90000,
	}

	CodecVP9 = Codec{
		MimeType:    webrtc.MimeTypeVP9,
		ClockRate:   90000,
		SDPFmtpLine: "profile-id=0",
	}

	CodecH264 = Codec{
		MimeType:    webrtc.MimeTypeH264,
		ClockRate:   90000,
		SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
	}
)

// ParseCodec returns the default codec for a mime type, matched case
// insensitively.
func ParseCodec(mimeType string) (Codec, error) {
	for _, codec := range []Codec{CodecOpus, CodecVP8, CodecVP9, CodecH264} {
		if strings.EqualFold(codec.MimeType, mimeType) {
			return codec, nil
		}
	}

	return Codec{}, errors.NotSupportedf("codec %q", mimeType)
}

type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

func NewTrackKind(codecType webrtc.RTPCodecType) TrackKind {
	if codecType == webrtc.RTPCodecTypeAudio {
		return TrackKindAudio
	}

	return TrackKindVideo
}

// ParseTrackKind returns false for anything other than "audio" and "video".
func ParseTrackKind(s string) (TrackKind, bool) {
	switch kind := TrackKind(strings.ToLower(s)); kind {
	case TrackKindAudio, TrackKindVideo:
		return kind, true
	default:
		return "", false
	}
}

func (t TrackKind) RTPCodecType() webrtc.RTPCodecType {
	if t == TrackKindAudio {
		return webrtc.RTPCodecTypeAudio
	}

	return webrtc.RTPCodecTypeVideo
}

func (t TrackKind) String() string {
	return string(t)
}
