// Package receiver implements the receiver channel: launch/stop application,
// status queries, volume control, and custom broadcast messages.
package receiver

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alxayo/go-cast/internal/cast/transport"
	"github.com/alxayo/go-cast/internal/cast/wire"
	protoerr "github.com/alxayo/go-cast/internal/errors"
)

// Namespace is the well-known namespace for the receiver channel.
const Namespace = "urn:x-cast:com.google.cast.receiver"

const (
	messageTypeLaunch         = "LAUNCH"
	messageTypeStop           = "STOP"
	messageTypeGetStatus      = "GET_STATUS"
	messageTypeSetVolume      = "SET_VOLUME"
	messageTypeReceiverStatus = "RECEIVER_STATUS"
	messageTypeLaunchError    = "LAUNCH_ERROR"
	messageTypeInvalidRequest = "INVALID_REQUEST"
)

// Well-known application identifiers. CustomApp resolves a symbolic name to
// the matching App, and App.String() renders it as one of these ids.
const (
	AppDefaultMediaReceiverID = "CC1AD845"
	AppBackdropID             = "E8C28D3C"
	AppYouTubeID              = "233637DE"
)

// App identifies a receiver application to launch: one of the well-known
// symbolic apps, or a custom four-byte hex app id passed through verbatim.
type App struct {
	kind     appKind
	customID string
}

type appKind int

const (
	appDefaultMediaReceiver appKind = iota
	appBackdrop
	appYouTube
	appCustom
)

var (
	// AppDefaultMediaReceiver launches the stock media receiver.
	AppDefaultMediaReceiver = App{kind: appDefaultMediaReceiver}
	// AppBackdrop launches the backdrop (idle screen) app.
	AppBackdrop = App{kind: appBackdrop}
	// AppYouTube launches YouTube.
	AppYouTube = App{kind: appYouTube}
)

// CustomApp wraps an arbitrary app id (symbolic "default"/"backdrop"/"youtube"
// or a raw hex id) the same way the receiver's own app-id resolution table
// does: known names resolve to their well-known id, anything else passes
// through verbatim.
func CustomApp(id string) App {
	switch id {
	case "default":
		return AppDefaultMediaReceiver
	case "backdrop":
		return AppBackdrop
	case "youtube":
		return AppYouTube
	default:
		return App{kind: appCustom, customID: id}
	}
}

// String returns the wire app id for this App.
func (a App) String() string {
	switch a.kind {
	case appDefaultMediaReceiver:
		return AppDefaultMediaReceiverID
	case appBackdrop:
		return AppBackdropID
	case appYouTube:
		return AppYouTubeID
	default:
		return a.customID
	}
}

// Volume describes the device's volume: level and muted are each
// independently optional, mirroring the wire shape.
type Volume struct {
	Level *float64
	Muted *bool
}

// VolumeLevel constructs a Volume request carrying only a level.
func VolumeLevel(level float64) Volume { return Volume{Level: &level} }

// VolumeMuted constructs a Volume request carrying only a mute state.
func VolumeMuted(muted bool) Volume { return Volume{Muted: &muted} }

// VolumeLevelAndMuted constructs a Volume request carrying both.
func VolumeLevelAndMuted(level float64, muted bool) Volume {
	return Volume{Level: &level, Muted: &muted}
}

// Application describes one currently running receiver application.
type Application struct {
	AppID       string
	SessionID   string
	TransportID string
	Namespaces  []string
	DisplayName string
	StatusText  string
}

// Status describes the current receiver device status.
type Status struct {
	RequestID     uint32
	Applications  []Application
	IsActiveInput bool
	IsStandBy     bool
	Volume        Volume
}

// Response is a tagged variant over the receiver channel's inbound message
// types.
type Response struct {
	Status         *Status
	LaunchError    *LaunchError
	InvalidRequest *InvalidRequest
	NotImplemented *NotImplemented
}

// LaunchError reports that LAUNCH failed.
type LaunchError struct {
	RequestID uint32
	Reason    string
}

// InvalidRequest reports that a request was rejected as malformed.
type InvalidRequest struct {
	RequestID uint32
	Reason    string
}

// NotImplemented is the passthrough variant for unrecognized message types.
type NotImplemented struct {
	Type  string
	Value json.RawMessage
}

// Channel is bound to one sender/receiver pair and borrows a
// transport.Manager.
type Channel struct {
	sender   string
	receiver string
	manager  *transport.Manager
}

// New returns a receiver channel addressing receiver from sender.
func New(sender, receiver string, manager *transport.Manager) *Channel {
	return &Channel{sender: sender, receiver: receiver, manager: manager}
}

type launchRequest struct {
	Type      string `json:"type"`
	RequestID uint32 `json:"requestId"`
	AppID     string `json:"appId"`
}

type stopRequest struct {
	Type      string `json:"type"`
	RequestID uint32 `json:"requestId"`
	SessionID string `json:"sessionId"`
}

type getStatusRequest struct {
	Type      string `json:"type"`
	RequestID uint32 `json:"requestId"`
}

type wireVolume struct {
	Level *float64 `json:"level,omitempty"`
	Muted *bool    `json:"muted,omitempty"`
}

type setVolumeRequest struct {
	Type      string     `json:"type"`
	RequestID uint32     `json:"requestId"`
	Volume    wireVolume `json:"volume"`
}

// LaunchApp sends LAUNCH for app and awaits the matching RECEIVER_STATUS,
// returning its first application entry, or fails on a matching LAUNCH_ERROR.
func (c *Channel) LaunchApp(app App) (Application, error) {
	requestID, err := c.manager.NextRequestID()
	if err != nil {
		return Application{}, err
	}
	payload, err := json.Marshal(launchRequest{Type: messageTypeLaunch, RequestID: requestID, AppID: app.String()})
	if err != nil {
		return Application{}, protoerr.NewSerializationError("receiver.encode", err)
	}
	if err := c.manager.Send(wire.NewStringEnvelope(c.sender, c.receiver, Namespace, string(payload))); err != nil {
		return Application{}, err
	}

	val, err := c.manager.ReceiveFindMap(func(env *wire.Envelope) (any, bool, error) {
		if !c.CanHandle(env) {
			return nil, false, nil
		}
		resp, err := Parse(env)
		if err != nil {
			return nil, false, err
		}
		switch {
		case resp.Status != nil && resp.Status.RequestID == requestID:
			if len(resp.Status.Applications) == 0 {
				return nil, false, protoerr.NewSerializationError("receiver.launch_app", fmt.Errorf("status carries no application entries"))
			}
			return resp.Status.Applications[0], true, nil
		case resp.LaunchError != nil && resp.LaunchError.RequestID == requestID:
			reason := resp.LaunchError.Reason
			if reason == "" {
				reason = "Unknown"
			}
			return nil, false, protoerr.NewProtocolResponseError(messageTypeLaunchError, requestID, reason)
		}
		return nil, false, nil
	})
	if err != nil {
		return Application{}, err
	}
	return val.(Application), nil
}

// StopApp sends STOP for sessionID and awaits confirmation via a matching
// RECEIVER_STATUS, or fails on a matching INVALID_REQUEST.
func (c *Channel) StopApp(sessionID string) error {
	requestID, err := c.manager.NextRequestID()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(stopRequest{Type: messageTypeStop, RequestID: requestID, SessionID: sessionID})
	if err != nil {
		return protoerr.NewSerializationError("receiver.encode", err)
	}
	if err := c.manager.Send(wire.NewStringEnvelope(c.sender, c.receiver, Namespace, string(payload))); err != nil {
		return err
	}

	_, err = c.manager.ReceiveFindMap(func(env *wire.Envelope) (any, bool, error) {
		if !c.CanHandle(env) {
			return nil, false, nil
		}
		resp, err := Parse(env)
		if err != nil {
			return nil, false, err
		}
		switch {
		case resp.Status != nil && resp.Status.RequestID == requestID:
			return struct{}{}, true, nil
		case resp.InvalidRequest != nil && resp.InvalidRequest.RequestID == requestID:
			reason := resp.InvalidRequest.Reason
			if reason == "" {
				reason = "Unknown"
			}
			return nil, false, protoerr.NewProtocolResponseError(messageTypeInvalidRequest, requestID, reason)
		}
		return nil, false, nil
	})
	return err
}

// GetStatus sends GET_STATUS and awaits the matching RECEIVER_STATUS.
func (c *Channel) GetStatus() (Status, error) {
	requestID, err := c.manager.NextRequestID()
	if err != nil {
		return Status{}, err
	}
	payload, err := json.Marshal(getStatusRequest{Type: messageTypeGetStatus, RequestID: requestID})
	if err != nil {
		return Status{}, protoerr.NewSerializationError("receiver.encode", err)
	}
	if err := c.manager.Send(wire.NewStringEnvelope(c.sender, c.receiver, Namespace, string(payload))); err != nil {
		return Status{}, err
	}

	val, err := c.manager.ReceiveFindMap(func(env *wire.Envelope) (any, bool, error) {
		if !c.CanHandle(env) {
			return nil, false, nil
		}
		resp, err := Parse(env)
		if err != nil {
			return nil, false, err
		}
		if resp.Status != nil && resp.Status.RequestID == requestID {
			return *resp.Status, true, nil
		}
		return nil, false, nil
	})
	if err != nil {
		return Status{}, err
	}
	return val.(Status), nil
}

// SetVolume sends SET_VOLUME and returns the device's reported volume from
// the matching RECEIVER_STATUS.
func (c *Channel) SetVolume(v Volume) (Volume, error) {
	requestID, err := c.manager.NextRequestID()
	if err != nil {
		return Volume{}, err
	}
	payload, err := json.Marshal(setVolumeRequest{
		Type:      messageTypeSetVolume,
		RequestID: requestID,
		Volume:    wireVolume{Level: v.Level, Muted: v.Muted},
	})
	if err != nil {
		return Volume{}, protoerr.NewSerializationError("receiver.encode", err)
	}
	if err := c.manager.Send(wire.NewStringEnvelope(c.sender, c.receiver, Namespace, string(payload))); err != nil {
		return Volume{}, err
	}

	val, err := c.manager.ReceiveFindMap(func(env *wire.Envelope) (any, bool, error) {
		if !c.CanHandle(env) {
			return nil, false, nil
		}
		resp, err := Parse(env)
		if err != nil {
			return nil, false, err
		}
		if resp.Status != nil && resp.Status.RequestID == requestID {
			return resp.Status.Volume, true, nil
		}
		return nil, false, nil
	})
	if err != nil {
		return Volume{}, err
	}
	return val.(Volume), nil
}

// BroadcastMessage sends an arbitrary JSON-marshalable message on a custom
// namespace to the broadcast destination. The namespace must carry the
// "urn:x-cast:" prefix; violating this is a usage error and the stream is
// never touched.
func (c *Channel) BroadcastMessage(namespace string, message any) error {
	if !strings.HasPrefix(namespace, "urn:x-cast:") {
		return protoerr.NewUsageError("receiver.broadcast_message", fmt.Errorf("namespace %q must start with urn:x-cast:", namespace))
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return protoerr.NewSerializationError("receiver.encode", err)
	}
	return c.manager.Send(wire.NewStringEnvelope(c.sender, "*", namespace, string(payload)))
}

// CanHandle reports whether env belongs to this channel's namespace.
func (c *Channel) CanHandle(env *wire.Envelope) bool {
	return env.Namespace == Namespace
}

type appJSON struct {
	AppID       string          `json:"appId"`
	SessionID   string          `json:"sessionId"`
	TransportID string          `json:"transportId"`
	Namespaces  []namespaceJSON `json:"namespaces"`
	DisplayName string          `json:"displayName"`
	StatusText  string          `json:"statusText"`
}

type namespaceJSON struct {
	Name string `json:"name"`
}

type statusJSON struct {
	Applications  []appJSON  `json:"applications"`
	IsActiveInput bool       `json:"isActiveInput"`
	IsStandBy     bool       `json:"isStandBy"`
	Volume        wireVolume `json:"volume"`
}

type statusReply struct {
	RequestID uint32     `json:"requestId"`
	Status    statusJSON `json:"status"`
}

type launchErrorReply struct {
	RequestID uint32 `json:"requestId"`
	Reason    string `json:"reason"`
}

type invalidRequestReply struct {
	RequestID uint32 `json:"requestId"`
	Reason    string `json:"reason"`
}

// Parse decodes an inbound envelope on this channel's namespace into a
// tagged Response.
func Parse(env *wire.Envelope) (*Response, error) {
	var generic struct {
		Type string `json:"type"`
	}
	raw := []byte(env.PayloadUTF8)
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, protoerr.NewSerializationError("receiver.decode", err)
	}

	switch generic.Type {
	case messageTypeReceiverStatus:
		var reply statusReply
		if err := json.Unmarshal(raw, &reply); err != nil {
			return nil, protoerr.NewSerializationError("receiver.decode", err)
		}
		apps := make([]Application, 0, len(reply.Status.Applications))
		for _, a := range reply.Status.Applications {
			namespaces := make([]string, 0, len(a.Namespaces))
			for _, ns := range a.Namespaces {
				namespaces = append(namespaces, ns.Name)
			}
			apps = append(apps, Application{
				AppID:       a.AppID,
				SessionID:   a.SessionID,
				TransportID: a.TransportID,
				Namespaces:  namespaces,
				DisplayName: a.DisplayName,
				StatusText:  a.StatusText,
			})
		}
		return &Response{Status: &Status{
			RequestID:     reply.RequestID,
			Applications:  apps,
			IsActiveInput: reply.Status.IsActiveInput,
			IsStandBy:     reply.Status.IsStandBy,
			Volume:        Volume{Level: reply.Status.Volume.Level, Muted: reply.Status.Volume.Muted},
		}}, nil
	case messageTypeLaunchError:
		var reply launchErrorReply
		if err := json.Unmarshal(raw, &reply); err != nil {
			return nil, protoerr.NewSerializationError("receiver.decode", err)
		}
		return &Response{LaunchError: &LaunchError{RequestID: reply.RequestID, Reason: reply.Reason}}, nil
	case messageTypeInvalidRequest:
		var reply invalidRequestReply
		if err := json.Unmarshal(raw, &reply); err != nil {
			return nil, protoerr.NewSerializationError("receiver.decode", err)
		}
		return &Response{InvalidRequest: &InvalidRequest{RequestID: reply.RequestID, Reason: reply.Reason}}, nil
	default:
		return &Response{NotImplemented: &NotImplemented{Type: generic.Type, Value: json.RawMessage(raw)}}, nil
	}
}
