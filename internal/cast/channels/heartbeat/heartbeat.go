// Package heartbeat implements the PING/PONG liveness channel. It carries no
// timer of its own: interval and timeout policy is the caller's
// responsibility, per the protocol's concurrency model.
package heartbeat

import (
	"encoding/json"

	"github.com/alxayo/go-cast/internal/cast/transport"
	"github.com/alxayo/go-cast/internal/cast/wire"
	protoerr "github.com/alxayo/go-cast/internal/errors"
)

// Namespace is the well-known namespace for the heartbeat channel.
const Namespace = "urn:x-cast:com.google.cast.tp.heartbeat"

const (
	messageTypePing = "PING"
	messageTypePong = "PONG"
)

// Response is a tagged variant over the heartbeat channel's inbound message
// types.
type Response struct {
	// Kind is one of "PING", "PONG", or "" when NotImplemented is set.
	Kind           string
	NotImplemented *NotImplemented
}

// NotImplemented is the passthrough variant for unrecognized message types.
type NotImplemented struct {
	Type  string
	Value json.RawMessage
}

type wireRequest struct {
	Type string `json:"type"`
}

// Channel is bound to one sender/receiver pair and borrows a
// transport.Manager.
type Channel struct {
	sender   string
	receiver string
	manager  *transport.Manager
}

// New returns a heartbeat channel addressing receiver from sender.
func New(sender, receiver string, manager *transport.Manager) *Channel {
	return &Channel{sender: sender, receiver: receiver, manager: manager}
}

// Ping sends PING. Fire-and-forget: it never awaits a reply.
func (c *Channel) Ping() error { return c.send(messageTypePing) }

// Pong sends PONG, the expected response to an inbound PING. Fire-and-forget.
func (c *Channel) Pong() error { return c.send(messageTypePong) }

func (c *Channel) send(typ string) error {
	payload, err := json.Marshal(wireRequest{Type: typ})
	if err != nil {
		return protoerr.NewSerializationError("heartbeat.encode", err)
	}
	env := wire.NewStringEnvelope(c.sender, c.receiver, Namespace, string(payload))
	return c.manager.Send(env)
}

// CanHandle reports whether env belongs to this channel's namespace.
func (c *Channel) CanHandle(env *wire.Envelope) bool {
	return env.Namespace == Namespace
}

// Parse decodes an inbound envelope on this channel's namespace.
func Parse(env *wire.Envelope) (*Response, error) {
	var generic struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(env.PayloadUTF8), &generic); err != nil {
		return nil, protoerr.NewSerializationError("heartbeat.decode", err)
	}
	switch generic.Type {
	case messageTypePing, messageTypePong:
		return &Response{Kind: generic.Type}, nil
	default:
		return &Response{NotImplemented: &NotImplemented{
			Type:  generic.Type,
			Value: json.RawMessage(env.PayloadUTF8),
		}}, nil
	}
}
