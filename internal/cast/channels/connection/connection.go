// Package connection implements the CONNECT/CLOSE virtual-connection
// handshake channel.
package connection

import (
	"encoding/json"

	"github.com/alxayo/go-cast/internal/cast/transport"
	"github.com/alxayo/go-cast/internal/cast/wire"
	protoerr "github.com/alxayo/go-cast/internal/errors"
)

// Namespace is the well-known namespace for the connection channel.
const Namespace = "urn:x-cast:com.google.cast.tp.connection"

const userAgent = "go-cast"

const (
	messageTypeConnect = "CONNECT"
	messageTypeClose   = "CLOSE"
)

// Response is a tagged variant over the connection channel's inbound
// message types.
type Response struct {
	// Kind is one of "CONNECT", "CLOSE", or "" when NotImplemented is set.
	Kind string
	// NotImplemented carries the raw message type and decoded JSON value for
	// any message type this channel does not model.
	NotImplemented *NotImplemented
}

// NotImplemented is the passthrough variant for unrecognized message types,
// letting a caller still observe and log device messages this client does
// not decode into a dedicated shape.
type NotImplemented struct {
	Type  string
	Value json.RawMessage
}

type wireRequest struct {
	Type      string `json:"type"`
	UserAgent string `json:"userAgent"`
}

// Channel is bound to one sender identity and borrows a transport.Manager;
// it carries no per-connection state of its own.
type Channel struct {
	sender  string
	manager *transport.Manager
}

// New returns a connection channel using sender as the source identity on
// every envelope it writes.
func New(sender string, manager *transport.Manager) *Channel {
	return &Channel{sender: sender, manager: manager}
}

// Connect sends CONNECT to destination and returns as soon as the envelope
// is written; it never awaits a reply.
func (c *Channel) Connect(destination string) error {
	return c.send(destination, messageTypeConnect)
}

// Disconnect sends CLOSE to destination and returns as soon as the envelope
// is written; it never awaits a reply.
func (c *Channel) Disconnect(destination string) error {
	return c.send(destination, messageTypeClose)
}

func (c *Channel) send(destination, typ string) error {
	payload, err := json.Marshal(wireRequest{Type: typ, UserAgent: userAgent})
	if err != nil {
		return protoerr.NewSerializationError("connection.encode", err)
	}
	env := wire.NewStringEnvelope(c.sender, destination, Namespace, string(payload))
	return c.manager.Send(env)
}

// CanHandle reports whether env belongs to this channel's namespace.
func (c *Channel) CanHandle(env *wire.Envelope) bool {
	return env.Namespace == Namespace
}

// Parse decodes an inbound envelope on this channel's namespace into a
// tagged Response.
func Parse(env *wire.Envelope) (*Response, error) {
	var generic struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(env.PayloadUTF8), &generic); err != nil {
		return nil, protoerr.NewSerializationError("connection.decode", err)
	}
	switch generic.Type {
	case messageTypeConnect, messageTypeClose:
		return &Response{Kind: generic.Type}, nil
	default:
		return &Response{NotImplemented: &NotImplemented{
			Type:  generic.Type,
			Value: json.RawMessage(env.PayloadUTF8),
		}}, nil
	}
}
