package sendtransport

import (
	"sync"

	"github.com/juju/errors"
	"github.com/peer-calls/mediaproducer/server/logger"
	"github.com/peer-calls/mediaproducer/server/pionlogger"
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/stats"
	"github.com/pion/webrtc/v4"
)

type APIParams struct {
	// Interfaces limits ICE candidates to these network interfaces. All
	// interfaces are used when empty.
	Interfaces []string
	// Protocols are pion network types, for example "udp4" or "tcp6".
	Protocols []string

	UDPPortMin uint16
	UDPPortMax uint16
}

// API creates peer connections that record RTP stream statistics.
type API struct {
	api *webrtc.API

	// mu serializes peer connection creation so that the stats getter
	// reported by the interceptor can be matched to its peer connection.
	mu          sync.Mutex
	statsGetter stats.Getter
}

// NewAPI creates a pion API with the default codecs and interceptors, a
// stats interceptor, and logging through log.
func NewAPI(log logger.Logger, params APIParams) (*API, error) {
	log = log.WithNamespaceAppended("api")

	mediaEngine := &webrtc.MediaEngine{}

	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, errors.Annotate(err, "register default codecs")
	}

	registry := &interceptor.Registry{}

	statsInterceptor, err := stats.NewInterceptor()
	if err != nil {
		return nil, errors.Annotate(err, "new stats interceptor")
	}

	registry.Add(statsInterceptor)

	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, errors.Annotate(err, "register default interceptors")
	}

	settingEngine := webrtc.SettingEngine{
		LoggerFactory: pionlogger.NewFactory(log),
	}

	if networkTypes := NewNetworkTypes(log, params.Protocols); len(networkTypes) > 0 {
		settingEngine.SetNetworkTypes(networkTypes)
	}

	if params.UDPPortMin > 0 && params.UDPPortMax > 0 {
		logCtx := logger.Ctx{
			"port_min": params.UDPPortMin,
			"port_max": params.UDPPortMax,
		}

		if err := settingEngine.SetEphemeralUDPPortRange(params.UDPPortMin, params.UDPPortMax); err != nil {
			return nil, errors.Annotatef(err, "set ephemeral udp port range %d-%d", params.UDPPortMin, params.UDPPortMax)
		}

		log.Info("Set ephemeral UDP port range", logCtx)
	}

	if len(params.Interfaces) > 0 {
		allowed := make(map[string]struct{}, len(params.Interfaces))
		for _, iface := range params.Interfaces {
			allowed[iface] = struct{}{}
		}

		settingEngine.SetInterfaceFilter(func(iface string) bool {
			_, ok := allowed[iface]

			return ok
		})
	}

	a := &API{}

	// Called from NewPeerConnection while a.mu is held.
	statsInterceptor.OnNewPeerConnection(func(_ string, getter stats.Getter) {
		a.statsGetter = getter
	})

	a.api = webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(settingEngine),
	)

	return a, nil
}

// NewPeerConnection creates a peer connection whose GetStats includes the
// RTP stream stats of its senders.
func (a *API) NewPeerConnection(config webrtc.Configuration) (*PionPeerConnection, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.statsGetter = nil

	pc, err := a.api.NewPeerConnection(config)
	if err != nil {
		return nil, errors.Annotate(err, "new peer connection")
	}

	return &PionPeerConnection{
		PeerConnection: pc,
		statsGetter:    a.statsGetter,
	}, nil
}

// NewNetworkTypes parses pion network types, logging and skipping invalid
// ones.
func NewNetworkTypes(log logger.Logger, protocols []string) (ret []webrtc.NetworkType) {
	for _, protocol := range protocols {
		networkType, err := webrtc.NewNetworkType(protocol)
		if err != nil {
			log.Error("Invalid network type", errors.Trace(err), logger.Ctx{
				"protocol": protocol,
			})

			continue
		}

		ret = append(ret, networkType)
	}

	return ret
}
