package relayhook

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Publisher delivers an encoded event on a subject. *nats.Conn satisfies
// it directly.
type Publisher interface {
	Publish(subject string, data []byte) error
}

var _ Publisher = (*nats.Conn)(nil)

// Connect dials a NATS server with reconnects enabled indefinitely.
func Connect(url string, opts ...nats.Option) (*nats.Conn, error) {
	base := []nats.Option{
		nats.Name("jobgraph"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.Timeout(5 * time.Second),
	}
	nc, err := nats.Connect(url, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("relay_hook: connect %s: %w", url, err)
	}
	return nc, nil
}
