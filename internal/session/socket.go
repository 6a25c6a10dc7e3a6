package session

import "time"

// socket is the minimal surface this package needs from a WebSocket
// connection, satisfied by *websocket.Conn. It exists so tests can
// substitute a fake transport without standing up a real TCP listener,
// mirroring how the gateway's kafka_consumer.go abstracted
// sarama.ConsumerGroup behind SaramaConsumerGroup for the same reason.
type socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// Dialer opens a socket to a CSMS URL, negotiating the given subprotocol.
// The production implementation wraps *websocket.Dialer; tests provide a
// fake that never touches the network.
type Dialer interface {
	Dial(url, subProtocol string, trustAllCerts bool) (socket, error)
}
