package server

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"gopkg.in/yaml.v2"
)

// EnvPrefix prefixes all environment variables read by ReadConfig.
const EnvPrefix = "MEDIAPRODUCER_"

func ReadConfigFile(filename string, c *Config) error {
	f, err := os.Open(filename)
	if err != nil {
		return errors.Annotatef(err, "read config file: %s", filename)
	}

	defer f.Close()

	err = ReadConfigYAML(f, c)

	return errors.Annotatef(err, "read yaml config: %s", filename)
}

func ReadConfigFiles(filenames []string, c *Config) error {
	for _, filename := range filenames {
		if err := ReadConfigFile(filename, c); err != nil {
			return errors.Trace(err)
		}
	}

	return nil
}

func InitConfig(c *Config) {
	c.ICEServers = []ICEServer{{
		URLs: []string{"stun:stun.l.google.com:19302"},
	}}
	c.Network.Protocols = []string{"udp4", "udp6"}
	c.Producer.StopTracks = true
	c.Producer.DisableTrackOnPause = true
}

func ReadConfig(filenames []string) (c Config, err error) {
	InitConfig(&c)
	err = ReadConfigFiles(filenames, &c)
	ReadConfigFromEnv(EnvPrefix, &c)

	return c, errors.Trace(err)
}

func ReadConfigYAML(reader io.Reader, c *Config) error {
	decoder := yaml.NewDecoder(reader)
	if err := decoder.Decode(c); err != nil {
		return errors.Annotatef(err, "decode yaml")
	}

	return nil
}

func ReadConfigFromEnv(prefix string, c *Config) {
	env := envReader{prefix: prefix}

	env.string(&c.Signaling.URL, "SIGNALING_URL")
	env.string(&c.Signaling.AccessToken, "SIGNALING_ACCESS_TOKEN")

	env.string(&c.Sources.Audio, "SOURCES_AUDIO")
	env.string(&c.Sources.Video, "SOURCES_VIDEO")

	env.strings(&c.Network.Protocols, "NETWORK_PROTOCOLS")
	env.strings(&c.Network.Interfaces, "NETWORK_INTERFACES")
	env.uint(&c.Network.UDP.PortMin, "NETWORK_UDP_PORT_MIN")
	env.uint(&c.Network.UDP.PortMax, "NETWORK_UDP_PORT_MAX")

	env.bool(&c.Producer.StopTracks, "PRODUCER_STOP_TRACKS")
	env.bool(&c.Producer.ZeroRTPOnPause, "PRODUCER_ZERO_RTP_ON_PAUSE")
	env.bool(&c.Producer.DisableTrackOnPause, "PRODUCER_DISABLE_TRACK_ON_PAUSE")
	env.uint(&c.Producer.MaxSpatialLayer, "PRODUCER_MAX_SPATIAL_LAYER")

	if value, ok := env.lookup("ICE_SERVER_URLS"); ok {
		// Do not use the default servers, even if value is empty.
		c.ICEServers = make([]ICEServer, 0, 1)

		ice := ICEServer{
			URLs: splitNonEmpty(value),
		}

		if len(ice.URLs) > 0 {
			env.authType(&ice.AuthType, "ICE_SERVER_AUTH_TYPE")
			env.string(&ice.AuthSecret.Secret, "ICE_SERVER_SECRET")
			env.string(&ice.AuthSecret.Username, "ICE_SERVER_USERNAME")
			c.ICEServers = append(c.ICEServers, ice)
		}
	}

	env.string(&c.Prometheus.BindAddr, "PROMETHEUS_BIND_ADDR")
	env.string(&c.Prometheus.AccessToken, "PROMETHEUS_ACCESS_TOKEN")
}

// envReader overrides config values with non-empty environment variables.
// Values that fail to parse are ignored.
type envReader struct {
	prefix string
}

func (e envReader) lookup(name string) (string, bool) {
	return os.LookupEnv(e.prefix + name)
}

func (e envReader) get(name string) string {
	value, _ := e.lookup(name)

	return value
}

func (e envReader) string(dest *string, name string) {
	if value := e.get(name); value != "" {
		*dest = value
	}
}

func (e envReader) strings(dest *[]string, name string) {
	if value := e.get(name); value != "" {
		*dest = strings.Split(value, ",")
	}
}

func (e envReader) uint(dest interface{}, name string) {
	value := e.get(name)
	if value == "" {
		return
	}

	switch d := dest.(type) {
	case *uint8:
		if v, err := strconv.ParseUint(value, 10, 8); err == nil {
			*d = uint8(v)
		}
	case *uint16:
		if v, err := strconv.ParseUint(value, 10, 16); err == nil {
			*d = uint16(v)
		}
	default:
		panic(fmt.Sprintf("unsupported destination: %T", dest))
	}
}

// bool only accepts explicit "true" and "false".
func (e envReader) bool(dest *bool, name string) {
	switch e.get(name) {
	case "true":
		*dest = true
	case "false":
		*dest = false
	}
}

func (e envReader) authType(dest *AuthType, name string) {
	switch authType := AuthType(e.get(name)); authType {
	case AuthTypeSecret, AuthTypeNone:
		*dest = authType
	}
}

func splitNonEmpty(value string) []string {
	var ret []string

	for _, v := range strings.Split(value, ",") {
		if v != "" {
			ret = append(ret, v)
		}
	}

	return ret
}
