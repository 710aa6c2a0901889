package electrum

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

const defaultDialTimeout = 10 * time.Second

// Endpoint is a parsed electrum server location, tcp://host:port or
// ssl://host:port.
type Endpoint struct {
	Host  string
	IsTLS bool
}

// ParseEndpoint parses tcp:// and ssl:// urls. A bare host:port is treated
// as tcp.
func ParseEndpoint(endpoint string) (Endpoint, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		// host:port without scheme parses as opaque, fall back to tcp
		if _, _, splitErr := net.SplitHostPort(endpoint); splitErr == nil {
			return Endpoint{Host: endpoint}, nil
		}
		return Endpoint{}, fmt.Errorf("could not parse electrum endpoint %q", endpoint)
	}
	switch u.Scheme {
	case "tcp":
		return Endpoint{Host: u.Host}, nil
	case "ssl", "tls":
		return Endpoint{Host: u.Host, IsTLS: true}, nil
	default:
		return Endpoint{}, fmt.Errorf("expected ssl or tcp scheme, got %s", u.Scheme)
	}
}

func (e Endpoint) String() string {
	if e.IsTLS {
		return "ssl://" + e.Host
	}
	return "tcp://" + e.Host
}

// Dialer opens the raw stream to the server.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

type transport struct {
	endpoint  Endpoint
	tlsConfig *tls.Config
	dialer    Dialer
}

func newTransport(endpoint Endpoint) *transport {
	t := &transport{
		endpoint: endpoint,
		dialer:   &net.Dialer{Timeout: defaultDialTimeout, KeepAlive: 30 * time.Second},
	}
	t.setTLSConfig(nil)
	return t
}

// setTLSConfig sets the config used for ssl endpoints. The dialer is kept.
func (t *transport) setTLSConfig(cfg *tls.Config) {
	if cfg == nil {
		cfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	} else {
		cfg = cfg.Clone()
	}
	if cfg.ServerName == "" {
		if host, _, err := net.SplitHostPort(t.endpoint.Host); err == nil {
			cfg.ServerName = host
		}
	}
	t.tlsConfig = cfg
}

// dial opens the stream with the dialer and runs the tls handshake on top of
// it for ssl endpoints.
func (t *transport) dial(ctx context.Context) (net.Conn, error) {
	conn, err := t.dialer.DialContext(ctx, "tcp", t.endpoint.Host)
	if err != nil {
		return nil, errors.Wrapf(ErrConnection, "dial %s: %v", t.endpoint, err)
	}
	if !t.endpoint.IsTLS {
		return conn, nil
	}
	tlsConn := tls.Client(conn, t.tlsConfig)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, errors.Wrapf(ErrConnection, "tls handshake with %s: %v", t.endpoint, err)
	}
	return tlsConn, nil
}
