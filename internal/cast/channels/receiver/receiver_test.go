package receiver

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/alxayo/go-cast/internal/cast/transport"
	"github.com/alxayo/go-cast/internal/cast/wire"
	protoerr "github.com/alxayo/go-cast/internal/errors"
)

// pipeRW mirrors the transport package test helper: independent read/write
// buffers wired together so channel tests can script inbound bytes.
type pipeRW struct {
	mu  sync.Mutex
	in  []byte
	out []byte
}

func (p *pipeRW) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.in) == 0 {
		return 0, io.EOF
	}
	n := copy(b, p.in)
	p.in = p.in[n:]
	return n, nil
}

func (p *pipeRW) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out = append(p.out, b...)
	return len(b), nil
}

func (p *pipeRW) feed(env *wire.Envelope) {
	body, err := env.Marshal()
	if err != nil {
		panic(err)
	}
	framed, err := marshalFrame(body)
	if err != nil {
		panic(err)
	}
	p.mu.Lock()
	p.in = append(p.in, framed...)
	p.mu.Unlock()
}

func marshalFrame(body []byte) ([]byte, error) {
	var buf writerBuf
	if err := wire.WriteFrame(&buf, body); err != nil {
		return nil, err
	}
	return buf.b, nil
}

type writerBuf struct{ b []byte }

func (w *writerBuf) Write(p []byte) (int, error) {
	w.b = append(w.b, p...)
	return len(p), nil
}

func newChannel() (*Channel, *pipeRW) {
	rw := &pipeRW{}
	m := transport.New(rw)
	return New("sender-0", "receiver-0", m), rw
}

func TestLaunchAppResolvesWellKnownAndCustom(t *testing.T) {
	tests := []struct {
		app      App
		expectID string
	}{
		{AppDefaultMediaReceiver, AppDefaultMediaReceiverID},
		{AppBackdrop, AppBackdropID},
		{AppYouTube, AppYouTubeID},
		{CustomApp("youtube"), AppYouTubeID},
		{CustomApp("MyCustomAppId"), "MyCustomAppId"},
	}
	for _, tc := range tests {
		if got := tc.app.String(); got != tc.expectID {
			t.Fatalf("App.String() = %q, want %q", got, tc.expectID)
		}
	}
}

func TestLaunchAppSuccess(t *testing.T) {
	c, rw := newChannel()
	rw.feed(wire.NewStringEnvelope("receiver-0", "sender-0", Namespace, `{
		"requestId":1,
		"type":"RECEIVER_STATUS",
		"status":{
			"applications":[{
				"appId":"MyAppId",
				"sessionId":"MySessionId",
				"transportId":"MyTransportId",
				"namespaces":[],
				"displayName":"MyDisplayName",
				"statusText":"Idle"
			}],
			"isActiveInput":true,
			"isStandBy":true,
			"volume":{"level":1.0,"muted":false}
		}
	}`))

	app, err := c.LaunchApp(AppYouTube)
	if err != nil {
		t.Fatalf("LaunchApp: %v", err)
	}
	want := Application{
		AppID: "MyAppId", SessionID: "MySessionId", TransportID: "MyTransportId",
		Namespaces: []string{}, DisplayName: "MyDisplayName", StatusText: "Idle",
	}
	if app.AppID != want.AppID || app.SessionID != want.SessionID || app.TransportID != want.TransportID ||
		app.DisplayName != want.DisplayName || app.StatusText != want.StatusText {
		t.Fatalf("got %+v want %+v", app, want)
	}

	body, err := wire.ReadFrame(bufferedOut(rw))
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	env, err := wire.DecodeEnvelope(body)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	var req map[string]any
	json.Unmarshal([]byte(env.PayloadUTF8), &req)
	if req["type"] != "LAUNCH" || req["appId"] != "233637DE" || fmt.Sprintf("%v", req["requestId"]) != "1" {
		t.Fatalf("unexpected request: %v", req)
	}
}

func bufferedOut(p *pipeRW) io.Reader {
	return &readerBuf{b: p.out}
}

type readerBuf struct {
	b   []byte
	pos int
}

func (r *readerBuf) Read(p []byte) (int, error) {
	if r.pos >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.pos:])
	r.pos += n
	return n, nil
}

func TestLaunchAppFailsOnLaunchError(t *testing.T) {
	c, rw := newChannel()
	rw.feed(wire.NewStringEnvelope("receiver-0", "sender-0", Namespace, `{"requestId":1,"type":"LAUNCH_ERROR","reason":"App not found"}`))
	_, err := c.LaunchApp(AppYouTube)
	if err == nil {
		t.Fatalf("expected LaunchApp to fail")
	}
	pe, ok := protoerr.AsProtocolError(err)
	if !ok || pe.Reason != "App not found" {
		t.Fatalf("expected ProtocolError with reason, got %v", err)
	}
}

func TestGetStatusSkipsUnmatchedRequestID(t *testing.T) {
	c, rw := newChannel()
	rw.feed(wire.NewStringEnvelope("receiver-0", "sender-0", Namespace, `{"requestId":999,"type":"RECEIVER_STATUS","status":{"applications":[],"isActiveInput":false,"isStandBy":false,"volume":{}}}`))
	rw.feed(wire.NewStringEnvelope("receiver-0", "sender-0", Namespace, `{"requestId":1,"type":"RECEIVER_STATUS","status":{"applications":[],"isActiveInput":false,"isStandBy":false,"volume":{"level":0.7}}}`))

	status, err := c.GetStatus()
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status.RequestID != 1 {
		t.Fatalf("expected matching requestId 1, got %d", status.RequestID)
	}
	if status.Volume.Level == nil || *status.Volume.Level != 0.7 {
		t.Fatalf("unexpected volume: %+v", status.Volume)
	}
}

func TestSetVolumeOmitsUnsetFields(t *testing.T) {
	c, rw := newChannel()
	rw.feed(wire.NewStringEnvelope("receiver-0", "sender-0", Namespace, `{"requestId":1,"type":"RECEIVER_STATUS","status":{"applications":[],"isActiveInput":false,"isStandBy":false,"volume":{"level":0.5}}}`))

	v, err := c.SetVolume(VolumeLevel(0.5))
	if err != nil {
		t.Fatalf("SetVolume: %v", err)
	}
	if v.Level == nil || *v.Level != 0.5 {
		t.Fatalf("unexpected volume: %+v", v)
	}

	body, err := wire.ReadFrame(bufferedOut(rw))
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	env, _ := wire.DecodeEnvelope(body)
	if !containsNoMutedKey(env.PayloadUTF8) {
		t.Fatalf("expected no 'muted' key in request payload, got %s", env.PayloadUTF8)
	}
}

func containsNoMutedKey(payload string) bool {
	var m map[string]any
	json.Unmarshal([]byte(payload), &m)
	volume, ok := m["volume"].(map[string]any)
	if !ok {
		return false
	}
	_, hasMuted := volume["muted"]
	return !hasMuted
}

func TestBroadcastMessageRejectsBadNamespace(t *testing.T) {
	c, rw := newChannel()
	err := c.BroadcastMessage("com.example.data", map[string]any{"hello": 1})
	if err == nil {
		t.Fatalf("expected namespace guard error")
	}
	if len(rw.out) != 0 {
		t.Fatalf("expected stream untouched, got %d bytes written", len(rw.out))
	}
}

func TestBroadcastMessageWritesToWildcardDestination(t *testing.T) {
	c, rw := newChannel()
	if err := c.BroadcastMessage("urn:x-cast:com.example.data", map[string]any{"hello": 1}); err != nil {
		t.Fatalf("BroadcastMessage: %v", err)
	}
	body, err := wire.ReadFrame(bufferedOut(rw))
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	env, _ := wire.DecodeEnvelope(body)
	if env.DestinationID != "*" || env.Namespace != "urn:x-cast:com.example.data" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestStopAppFailsOnInvalidRequest(t *testing.T) {
	c, rw := newChannel()
	rw.feed(wire.NewStringEnvelope("receiver-0", "sender-0", Namespace, `{"requestId":1,"type":"INVALID_REQUEST","reason":"no such session"}`))
	err := c.StopApp("MySessionId")
	if err == nil {
		t.Fatalf("expected StopApp to fail")
	}
	pe, ok := protoerr.AsProtocolError(err)
	if !ok || pe.Reason != "no such session" {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
}

func TestParseUnknownTypeIsNotImplemented(t *testing.T) {
	env := wire.NewStringEnvelope("receiver-0", "sender-0", Namespace, `{"type":"WEIRD_EVENT","foo":1}`)
	resp, err := Parse(env)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if resp.NotImplemented == nil || resp.NotImplemented.Type != "WEIRD_EVENT" {
		t.Fatalf("expected NotImplemented passthrough, got %+v", resp)
	}
}
