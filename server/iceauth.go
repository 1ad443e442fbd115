package server

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
)

// GetICEServers converts configured servers to pion ICE servers. Servers
// using AuthTypeSecret get time-limited TURN REST API credentials derived
// from the shared secret.
func GetICEServers(servers []ICEServer) []webrtc.ICEServer {
	return getICEServers(servers, time.Now())
}

func getICEServers(servers []ICEServer, now time.Time) []webrtc.ICEServer {
	result := make([]webrtc.ICEServer, 0, len(servers))

	for _, server := range servers {
		result = append(result, getICEServer(server, now))
	}

	return result
}

func getICEServer(server ICEServer, now time.Time) webrtc.ICEServer {
	switch server.AuthType {
	case AuthTypeSecret:
		return getICEStaticAuthSecretCredentials(server, now)
	default:
		return webrtc.ICEServer{URLs: server.URLs}
	}
}

func getICEStaticAuthSecretCredentials(server ICEServer, now time.Time) webrtc.ICEServer {
	username := fmt.Sprintf("%d:%s", now.UnixNano()/1_000_000, server.AuthSecret.Username)

	h := hmac.New(sha1.New, []byte(server.AuthSecret.Secret))
	h.Write([]byte(username))

	return webrtc.ICEServer{
		URLs:           server.URLs,
		Username:       username,
		Credential:     base64.StdEncoding.EncodeToString(h.Sum(nil)),
		CredentialType: webrtc.ICECredentialTypePassword,
	}
}
