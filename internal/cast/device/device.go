// Package device is the facade a caller uses to talk to a single Cast
// receiver: it owns the TLS connection and the transport.Manager, and
// exposes one bound channel handle per protocol channel.
package device

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/alxayo/go-cast/internal/cast/channels/connection"
	"github.com/alxayo/go-cast/internal/cast/channels/heartbeat"
	"github.com/alxayo/go-cast/internal/cast/channels/media"
	"github.com/alxayo/go-cast/internal/cast/channels/receiver"
	"github.com/alxayo/go-cast/internal/cast/config"
	"github.com/alxayo/go-cast/internal/cast/transport"
	"github.com/alxayo/go-cast/internal/cast/wire"
	"github.com/alxayo/go-cast/internal/logger"
)

// DefaultPort is the well-known Cast v2 TCP port.
const DefaultPort = 8009

// PlatformReceiverID is the well-known destination id of the receiver
// platform channel (as opposed to an application's own transport id).
const PlatformReceiverID = "receiver-0"

// Event is a tagged variant over everything Device.Receive can hand back:
// exactly one field is non-nil.
type Event struct {
	Connection *connection.Response
	Heartbeat  *heartbeat.Response
	Receiver   *receiver.Response
	Media      *media.Response
	Raw        *wire.Envelope
}

// Device is a single connection to one Cast receiver, with one bound
// channel handle per protocol channel.
type Device struct {
	cfg     config.Config
	conn    net.Conn
	manager *transport.Manager
	log     *slog.Logger

	Connection *connection.Channel
	Heartbeat  *heartbeat.Channel
	Receiver   *receiver.Channel

	mu          sync.Mutex
	mediaByApp  map[string]*media.Channel
}

// Dial opens a TLS connection to addr (host:port, typically DefaultPort) and
// returns a Device ready for Connect.
func Dial(ctx context.Context, addr string, cfg config.Config) (*Device, error) {
	dialer := &net.Dialer{Timeout: cfg.DialTimeout}
	tlsConf := &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}

	rawConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("device: dial %s: %w", addr, err)
	}
	tlsConn := tls.Client(rawConn, tlsConf)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = rawConn.Close()
		return nil, fmt.Errorf("device: tls handshake %s: %w", addr, err)
	}

	manager := transport.New(tlsConn)
	log := logger.WithConn(logger.Logger(), cfg.SenderID, addr)

	d := &Device{
		cfg:        cfg,
		conn:       tlsConn,
		manager:    manager,
		log:        log,
		Connection: connection.New(cfg.SenderID, manager),
		Heartbeat:  heartbeat.New(cfg.SenderID, PlatformReceiverID, manager),
		Receiver:   receiver.New(cfg.SenderID, PlatformReceiverID, manager),
		mediaByApp: make(map[string]*media.Channel),
	}
	return d, nil
}

// Media returns the media channel cached under transportID, the destination
// obtained from a prior Receiver.LaunchApp; repeated calls with the same
// transport id reuse the same channel. The channel does not record
// transportID: its operations still take the destination explicitly.
func (d *Device) Media(transportID string) *media.Channel {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.mediaByApp[transportID]; ok {
		return ch
	}
	ch := media.New(d.cfg.SenderID, d.manager)
	d.mediaByApp[transportID] = ch
	return ch
}

// Connect performs the CONNECT handshake against the receiver platform,
// required before any other channel traffic is accepted by the device.
func (d *Device) Connect() error {
	return d.Connection.Connect(PlatformReceiverID)
}

// ConnectApp performs the CONNECT handshake against an application's own
// transport id, required before talking to a launched app's media channel.
func (d *Device) ConnectApp(transportID string) error {
	return d.Connection.Connect(transportID)
}

// Close sends CLOSE on the connection channel (best effort) and closes the
// underlying transport.
func (d *Device) Close() error {
	_ = d.Connection.Disconnect(PlatformReceiverID)
	return d.conn.Close()
}

// RunHeartbeat blocks sending PING at cfg.HeartbeatInterval until ctx is
// canceled, logging (but not failing on) transient send errors.
func (d *Device) RunHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.Heartbeat.Ping(); err != nil {
				d.log.Warn("heartbeat ping failed", "error", err)
			}
		}
	}
}

// Receive reads the next envelope from the stream (or the unmatched-message
// buffer, if non-empty) and classifies it by namespace into a tagged Event.
func (d *Device) Receive() (Event, error) {
	env, err := d.manager.Receive()
	if err != nil {
		return Event{}, err
	}
	return d.classify(env)
}

func (d *Device) classify(env *wire.Envelope) (Event, error) {
	switch env.Namespace {
	case connection.Namespace:
		resp, err := connection.Parse(env)
		if err != nil {
			return Event{}, err
		}
		return Event{Connection: resp}, nil
	case heartbeat.Namespace:
		resp, err := heartbeat.Parse(env)
		if err != nil {
			return Event{}, err
		}
		return Event{Heartbeat: resp}, nil
	case receiver.Namespace:
		resp, err := receiver.Parse(env)
		if err != nil {
			return Event{}, err
		}
		return Event{Receiver: resp}, nil
	case media.Namespace:
		resp, err := media.Parse(env)
		if err != nil {
			return Event{}, err
		}
		return Event{Media: resp}, nil
	default:
		return Event{Raw: env}, nil
	}
}
