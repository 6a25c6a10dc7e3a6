package session

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/evse-sim/simulator/internal/simerr"
)

// GorillaDialer is the production Dialer: a thin wrapper over
// gorilla/websocket.Dialer configured as a CLIENT connecting OUT to a
// CSMS, the mirror image of the gateway's internal/transport/websocket
// manager, which used gorilla/websocket only as a server-side Upgrader.
type GorillaDialer struct {
	HandshakeTimeout time.Duration
}

// Dial opens a WebSocket connection and fails the session (per spec §4.4
// "Subprotocol") unless the server selects exactly subProtocol.
func (d GorillaDialer) Dial(url, subProtocol string, trustAllCerts bool) (socket, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
		Subprotocols:     []string{subProtocol},
	}
	if trustAllCerts {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in test-mode flag only, see spec §4.4 TLS
	}

	conn, resp, err := dialer.Dial(url, http.Header{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", simerr.ErrHandshakeFailed, err)
	}
	selected := ""
	if resp != nil {
		selected = resp.Header.Get("Sec-WebSocket-Protocol")
	}
	if selected != subProtocol {
		conn.Close()
		return nil, fmt.Errorf("%w: CSMS selected subprotocol %q, want %q", simerr.ErrHandshakeFailed, selected, subProtocol)
	}
	return conn, nil
}
