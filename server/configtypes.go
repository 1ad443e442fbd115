package server

type AuthType string

const (
	AuthTypeSecret AuthType = "secret"
	AuthTypeNone   AuthType = ""
)

type ICEServer struct {
	URLs       []string `yaml:"urls"`
	AuthType   AuthType `yaml:"auth_type"`
	AuthSecret struct {
		Username string `yaml:"username"`
		Secret   string `yaml:"secret"`
	} `yaml:"auth_secret"`
}

type SignalingConfig struct {
	URL         string `yaml:"url"`
	AccessToken string `yaml:"access_token"`
}

// SourcesConfig contains rtp://host:port addresses to receive media from.
// Empty sources are not produced.
type SourcesConfig struct {
	Audio string `yaml:"audio"`
	Video string `yaml:"video"`
}

type NetworkConfig struct {
	Interfaces []string `yaml:"interfaces"`
	Protocols  []string `yaml:"protocols"`
	UDP        struct {
		PortMin uint16 `yaml:"port_min"`
		PortMax uint16 `yaml:"port_max"`
	} `yaml:"udp"`
}

type ProducerConfig struct {
	StopTracks          bool `yaml:"stop_tracks"`
	ZeroRTPOnPause      bool `yaml:"zero_rtp_on_pause"`
	DisableTrackOnPause bool `yaml:"disable_track_on_pause"`
	// MaxSpatialLayer is the initial video layer. Zero activates all
	// encodings.
	MaxSpatialLayer uint8 `yaml:"max_spatial_layer"`
}

type PrometheusConfig struct {
	// BindAddr enables the metrics server when set.
	BindAddr    string `yaml:"bind_addr"`
	AccessToken string `yaml:"access_token"`
}

type Config struct {
	Signaling  SignalingConfig  `yaml:"signaling"`
	Sources    SourcesConfig    `yaml:"sources"`
	ICEServers []ICEServer      `yaml:"ice_servers"`
	Network    NetworkConfig    `yaml:"network"`
	Producer   ProducerConfig   `yaml:"producer"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
}
