package cli

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/juju/errors"
	"github.com/peer-calls/mediaproducer/server"
	"github.com/peer-calls/mediaproducer/server/atomic"
	"github.com/peer-calls/mediaproducer/server/command"
	"github.com/peer-calls/mediaproducer/server/identifiers"
	"github.com/peer-calls/mediaproducer/server/logger"
	"github.com/peer-calls/mediaproducer/server/multierr"
	"github.com/peer-calls/mediaproducer/server/producer"
	"github.com/peer-calls/mediaproducer/server/rtpsource"
	"github.com/peer-calls/mediaproducer/server/sendtransport"
	"github.com/peer-calls/mediaproducer/server/signaling"
	"github.com/peer-calls/mediaproducer/server/tracks"
	"github.com/peer-calls/mediaproducer/server/transport"
	"github.com/pion/webrtc/v4"
	"github.com/spf13/pflag"
)

type publishHandler struct {
	args struct {
		config string

		signalingURL  string
		audio         string
		audioMimeType string
		video         string
		videoMimeType string
		videoBitrate  uint64
		appData       map[string]string
	}

	log    logger.Logger
	props  Props
	config server.Config
}

// Sample pipeline. Run ffmpeg in one terminal:
//
//     ffmpeg -re -stream_loop -1 -i video.mp4 \
//       -an -c:v libvpx -payload_type 96 -deadline 1 -g 10 -f rtp \
//         'rtp://127.0.0.1:5006?pkt_size=1200&localrtcpport=5007' \
//       -vn -c:a libopus -payload_type 111 -f rtp \
//         'rtp://127.0.0.1:5004?pkt_size=1200'
//
// Then publish both streams:
//
//     mediaproducer publish \
//       --signaling-url ws://localhost:3000/producers \
//       --audio 'rtp://127.0.0.1:5004' \
//       --video 'rtp://127.0.0.1:5006?rtcpport=5007'
//
// Control commands such as "pause video" are read from stdin.

func (h *publishHandler) RegisterFlags(c *command.Command, flags *pflag.FlagSet) {
	flags.StringVarP(&h.args.config, "config", "c", "", "config file to use")
	flags.StringVarP(&h.args.signalingURL, "signaling-url", "s", "", "websocket URL of the signaling server")

	flags.StringVarP(&h.args.audio, "audio", "a", "", "rtp:// URL to receive audio from")
	flags.StringVar(&h.args.audioMimeType, "audio-mime-type", webrtc.MimeTypeOpus, "audio mime type")

	flags.StringVarP(&h.args.video, "video", "v", "", "rtp:// URL to receive video from")
	flags.StringVar(&h.args.videoMimeType, "video-mime-type", webrtc.MimeTypeVP8, "video mime type")
	flags.Uint64Var(&h.args.videoBitrate, "video-max-bitrate", 0, "maximum video bitrate in bps announced to the server, 0 for none")

	flags.StringToStringVar(&h.args.appData, "app-data", nil, "application data sent with each producer (key=value)")
}

func (h *publishHandler) configure() (err error) {
	configFiles := []string{}
	if h.args.config != "" {
		configFiles = append(configFiles, h.args.config)
	}

	h.config, err = server.ReadConfig(configFiles)
	if err != nil {
		return errors.Annotate(err, "read config")
	}

	if h.args.signalingURL != "" {
		h.config.Signaling.URL = h.args.signalingURL
	}

	if h.args.audio != "" {
		h.config.Sources.Audio = h.args.audio
	}

	if h.args.video != "" {
		h.config.Sources.Video = h.args.video
	}

	if h.config.Signaling.URL == "" {
		return errors.NotValidf("empty signaling url")
	}

	if h.config.Sources.Audio == "" && h.config.Sources.Video == "" {
		return errors.NotValidf("no audio or video source")
	}

	return nil
}

type publishSource struct {
	kind  transport.TrackKind
	url   string
	codec transport.Codec
}

func (h *publishHandler) sources() ([]publishSource, error) {
	sources := make([]publishSource, 0, 2)

	add := func(kind transport.TrackKind, url string, mimeType string) error {
		if url == "" {
			return nil
		}

		codec, err := transport.ParseCodec(mimeType)
		if err != nil {
			return errors.Trace(err)
		}

		if codec.TrackKind() != kind {
			return errors.NotValidf("%s codec for %s source", codec.MimeType, kind)
		}

		sources = append(sources, publishSource{kind, url, codec})

		return nil
	}

	if err := add(transport.TrackKindAudio, h.config.Sources.Audio, h.args.audioMimeType); err != nil {
		return nil, errors.Trace(err)
	}

	if err := add(transport.TrackKindVideo, h.config.Sources.Video, h.args.videoMimeType); err != nil {
		return nil, errors.Trace(err)
	}

	return sources, nil
}

// encodings describes the single encoding each sender sends. Spatial layers
// are produced by the server from it.
func (h *publishHandler) encodings(kind transport.TrackKind) []transport.EncodingParameters {
	if kind != transport.TrackKindVideo || h.args.videoBitrate == 0 {
		return nil
	}

	return []transport.EncodingParameters{{
		Active:     true,
		MaxBitrate: h.args.videoBitrate,
	}}
}

func (h *publishHandler) appData() producer.AppData {
	appData := make(producer.AppData, len(h.args.appData))

	for k, v := range h.args.appData {
		appData[k] = v
	}

	return appData
}

func (h *publishHandler) Handle(ctx context.Context, args []string) error {
	if err := h.configure(); err != nil {
		return errors.Annotate(err, "configure")
	}

	sources, err := h.sources()
	if err != nil {
		return errors.Annotate(err, "configure sources")
	}

	var wg sync.WaitGroup

	defer wg.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if bindAddr := h.config.Prometheus.BindAddr; bindAddr != "" {
		l, err := net.Listen("tcp", bindAddr)
		if err != nil {
			return errors.Annotatef(err, "listen metrics: %q", bindAddr)
		}

		metricsServer := server.NewMetricsServer(h.log, server.NewMetricsHandler(h.config.Prometheus.AccessToken))

		wg.Add(1)

		go func() {
			defer wg.Done()

			if err := metricsServer.Start(ctx, l); err != nil {
				h.log.Error("Metrics server", errors.Trace(err), nil)
			}
		}()
	}

	return errors.Trace(h.publish(ctx, cancel, sources))
}

func (h *publishHandler) dial(ctx context.Context) (*signaling.Client, error) {
	var header http.Header

	if token := h.config.Signaling.AccessToken; token != "" {
		header = http.Header{}
		header.Set("Authorization", "Bearer "+token)
	}

	client, err := signaling.Dial(ctx, h.log, h.config.Signaling.URL, header)

	return client, errors.Trace(err)
}

func (h *publishHandler) newTransport(listener sendtransport.Listener) (*sendtransport.Transport, *sendtransport.PionPeerConnection, error) {
	c := h.config

	api, err := sendtransport.NewAPI(h.log, sendtransport.APIParams{
		Interfaces: c.Network.Interfaces,
		Protocols:  c.Network.Protocols,
		UDPPortMin: c.Network.UDP.PortMin,
		UDPPortMax: c.Network.UDP.PortMax,
	})
	if err != nil {
		return nil, nil, errors.Trace(err)
	}

	pc, err := sendtransport.NewPionPeerConnection(api, webrtc.Configuration{
		ICEServers: server.GetICEServers(c.ICEServers),
	})
	if err != nil {
		return nil, nil, errors.Trace(err)
	}

	t := sendtransport.New(sendtransport.Params{
		Log:            h.log,
		ID:             identifiers.NewTransportID(),
		PeerConnection: pc,
		Listener:       listener,
	})

	return t, pc, nil
}

func (h *publishHandler) publish(ctx context.Context, cancel context.CancelFunc, sources []publishSource) (err error) {
	client, err := h.dial(ctx)
	if err != nil {
		return errors.Trace(err)
	}

	listener := signaling.NewTransportListener(client)

	t, pc, err := h.newTransport(listener)
	if err != nil {
		client.Close()

		return errors.Trace(err)
	}

	var (
		wg              sync.WaitGroup
		rtpSources      []*rtpsource.Source
		transportClosed atomic.Bool
	)

	defer func() {
		errs := multierr.New()
		errs.Add(err)
		errs.Add(errors.Trace(t.Close()))
		errs.Add(errors.Trace(client.Close()))

		for _, source := range rtpSources {
			errs.Add(errors.Trace(source.Close()))
		}

		wg.Wait()

		err = errs.Err()
	}()

	ctrl := newController(h.log, listener, h.props.Stdout)
	streamID := identifiers.NewStreamID()

	onTransportClose := producer.ListenerFunc(func(p *producer.Producer) {
		if transportClosed.CompareAndSwap(true) {
			h.log.Warn("Transport closed", logger.Ctx{
				"producer_id": p.ID(),
			})
		}

		cancel()
	})

	for _, src := range sources {
		source, err := rtpsource.Listen(h.log, src.kind.String(), src.url)
		if err != nil {
			return errors.Annotatef(err, "listen %s", src.kind)
		}

		rtpSources = append(rtpSources, source)

		track, err := tracks.NewLocalTrack(src.codec, src.kind.String(), streamID)
		if err != nil {
			return errors.Trace(err)
		}

		var keyframes sendtransport.KeyframeRequester
		if src.kind == transport.TrackKindVideo {
			keyframes = source
		}

		p, err := t.Produce(ctx, sendtransport.ProduceParams{
			Track:               track,
			Encodings:           h.encodings(src.kind),
			MaxSpatialLayer:     h.config.Producer.MaxSpatialLayer,
			AppData:             h.appData(),
			StopTracks:          h.config.Producer.StopTracks,
			ZeroRTPOnPause:      h.config.Producer.ZeroRTPOnPause,
			DisableTrackOnPause: h.config.Producer.DisableTrackOnPause,
			Listener:            onTransportClose,
			KeyframeRequester:   keyframes,
		})
		if err != nil {
			return errors.Annotatef(err, "produce %s", src.kind)
		}

		ctrl.add(p)

		wg.Add(1)

		go func() {
			defer wg.Done()

			pump(h.log, source, track)
		}()
	}

	offer, err := pc.CreateOffer(ctx)
	if err != nil {
		return errors.Trace(err)
	}

	answer, err := listener.ConnectTransport(ctx, t.ID(), offer)
	if err != nil {
		return errors.Trace(err)
	}

	if err := pc.SetAnswer(answer); err != nil {
		return errors.Trace(err)
	}

	h.log.Info("Publishing", logger.Ctx{
		"transport_id": t.ID(),
		"sources":      len(sources),
	})

	if err := ctrl.run(ctx, readLines(ctx, h.props.Stdin), client.Notifications()); err != nil {
		return errors.Trace(err)
	}

	if transportClosed.Get() {
		return errors.Trace(sendtransport.ErrTransportClosed)
	}

	return nil
}

// pump copies packets from source to track until the source is closed or
// the track ends.
func pump(log logger.Logger, source *rtpsource.Source, track *tracks.LocalTrack) {
	for {
		packet, err := source.ReadRTP()
		if err != nil {
			log.Debug("RTP source done", logger.Ctx{
				"track_id": track.ID(),
				"reason":   err,
			})

			return
		}

		if err := track.WriteRTP(packet); err != nil {
			if errors.Cause(err) == tracks.ErrTrackEnded {
				return
			}

			log.Error("Write RTP", errors.Trace(err), logger.Ctx{
				"track_id": track.ID(),
			})
		}
	}
}

func newPublishCmd(props Props) *command.Command {
	h := &publishHandler{
		log:   props.Log,
		props: props,
	}

	return command.New(command.Params{
		Name:         "publish",
		Desc:         "Publish RTP streams as producers of a send transport",
		FlagRegistry: h,
		Handler:      h,
	})
}
