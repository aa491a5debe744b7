package media

import (
	"encoding/json"
	"io"
	"sync"
	"testing"

	"github.com/alxayo/go-cast/internal/cast/transport"
	"github.com/alxayo/go-cast/internal/cast/wire"
	protoerr "github.com/alxayo/go-cast/internal/errors"
)

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
	var buf writerBuf
	if err := wire.WriteFrame(&buf, body); err != nil {
		panic(err)
	}
	p.mu.Lock()
	p.in = append(p.in, buf.b...)
	p.mu.Unlock()
}

type writerBuf struct{ b []byte }

func (w *writerBuf) Write(p []byte) (int, error) {
	w.b = append(w.b, p...)
	return len(p), nil
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

func newChannel() (*Channel, *pipeRW) {
	rw := &pipeRW{}
	m := transport.New(rw)
	return New("sender-0", m), rw
}

func outEnvelope(t *testing.T, rw *pipeRW) *wire.Envelope {
	t.Helper()
	body, err := wire.ReadFrame(&readerBuf{b: rw.out})
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	env, err := wire.DecodeEnvelope(body)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	return env
}

func TestLoadMatchesByRequestID(t *testing.T) {
	c, rw := newChannel()
	rw.feed(wire.NewStringEnvelope("app-transport-0", "sender-0", Namespace, `{
		"requestId": 1,
		"type": "MEDIA_STATUS",
		"status": [{
			"mediaSessionId": 42,
			"playbackRate": 1,
			"playerState": "PLAYING",
			"supportedMediaCommands": 15,
			"media": {"contentId":"movie-1","streamType":"BUFFERED","contentType":"video/mp4"}
		}]
	}`))

	status, err := c.Load("app-transport-0", "session-1", Media{ContentID: "movie-1", StreamType: StreamTypeBuffered, ContentType: "video/mp4"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(status.Entries) != 1 || status.Entries[0].MediaSessionID != 42 {
		t.Fatalf("unexpected status: %+v", status)
	}

	env := outEnvelope(t, rw)
	var req map[string]any
	json.Unmarshal([]byte(env.PayloadUTF8), &req)
	if req["type"] != "LOAD" || req["currentTime"] != float64(0) || req["autoplay"] != true {
		t.Fatalf("unexpected LOAD request: %v", req)
	}
}

func TestLoadMatchesByContentIDWhenRequestIDMismatched(t *testing.T) {
	c, rw := newChannel()
	// Receiver echoes a different (device-assigned) requestId, but reports
	// an entry whose media content id matches what was loaded.
	rw.feed(wire.NewStringEnvelope("app-transport-0", "sender-0", Namespace, `{
		"requestId": 999,
		"type": "MEDIA_STATUS",
		"status": [{
			"mediaSessionId": 7,
			"playbackRate": 1,
			"playerState": "BUFFERING",
			"supportedMediaCommands": 15,
			"media": {"contentId":"movie-xyz","streamType":"BUFFERED","contentType":"video/mp4"}
		}]
	}`))

	status, err := c.Load("app-transport-0", "session-1", Media{ContentID: "movie-xyz", StreamType: StreamTypeBuffered, ContentType: "video/mp4"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(status.Entries) != 1 || status.Entries[0].MediaSessionID != 7 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestLoadFailsOnLoadFailed(t *testing.T) {
	c, rw := newChannel()
	rw.feed(wire.NewStringEnvelope("app-transport-0", "sender-0", Namespace, `{"requestId":1,"type":"LOAD_FAILED"}`))
	_, err := c.Load("app-transport-0", "session-1", Media{ContentID: "x"})
	if err == nil {
		t.Fatalf("expected Load to fail")
	}
	if !protoerr.IsProtocolError(err) {
		t.Fatalf("expected protocol error, got %v", err)
	}
}

func TestPauseMatchesEntryByMediaSessionID(t *testing.T) {
	c, rw := newChannel()
	rw.feed(wire.NewStringEnvelope("app-transport-0", "sender-0", Namespace, `{
		"requestId": 1,
		"type": "MEDIA_STATUS",
		"status": [
			{"mediaSessionId": 5, "playbackRate": 1, "playerState": "PLAYING", "supportedMediaCommands": 15},
			{"mediaSessionId": 17, "playbackRate": 1, "playerState": "PAUSED", "supportedMediaCommands": 15}
		]
	}`))

	entry, err := c.Pause("app-transport-0", 17)
	if err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if entry.MediaSessionID != 17 || entry.PlayerState != PlayerStatePaused {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestPauseSkipsStatusWithoutMatchingSessionID(t *testing.T) {
	c, rw := newChannel()
	// First status answers requestId 1 but carries no entry for session 17;
	// must be skipped, not returned, and not treated as an error.
	rw.feed(wire.NewStringEnvelope("app-transport-0", "sender-0", Namespace, `{
		"requestId": 1,
		"type": "MEDIA_STATUS",
		"status": [{"mediaSessionId": 5, "playbackRate": 1, "playerState": "PLAYING", "supportedMediaCommands": 15}]
	}`))
	rw.feed(wire.NewStringEnvelope("app-transport-0", "sender-0", Namespace, `{
		"requestId": 1,
		"type": "MEDIA_STATUS",
		"status": [{"mediaSessionId": 17, "playbackRate": 1, "playerState": "PAUSED", "supportedMediaCommands": 15}]
	}`))

	entry, err := c.Pause("app-transport-0", 17)
	if err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if entry.MediaSessionID != 17 {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestSeekSendsResumeStateAndCurrentTime(t *testing.T) {
	c, rw := newChannel()
	rw.feed(wire.NewStringEnvelope("app-transport-0", "sender-0", Namespace, `{
		"requestId": 1,
		"type": "MEDIA_STATUS",
		"status": [{"mediaSessionId": 3, "playbackRate": 1, "playerState": "PLAYING", "supportedMediaCommands": 15}]
	}`))

	ct := 120.5
	rs := ResumeStatePlaybackStart
	entry, err := c.Seek("app-transport-0", 3, &ct, &rs)
	if err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if entry.MediaSessionID != 3 {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	env := outEnvelope(t, rw)
	var req map[string]any
	json.Unmarshal([]byte(env.PayloadUTF8), &req)
	if req["type"] != "SEEK" || req["resumeState"] != "PLAYBACK_START" || req["currentTime"] != 120.5 {
		t.Fatalf("unexpected SEEK request: %v", req)
	}
}

func TestGetStatusScopedToMediaSessionID(t *testing.T) {
	c, rw := newChannel()
	rw.feed(wire.NewStringEnvelope("app-transport-0", "sender-0", Namespace, `{
		"requestId": 1,
		"type": "MEDIA_STATUS",
		"status": [{"mediaSessionId": 9, "playbackRate": 1, "playerState": "IDLE", "idleReason":"FINISHED", "supportedMediaCommands": 15}]
	}`))

	sid := int32(9)
	status, err := c.GetStatus("app-transport-0", &sid)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if len(status.Entries) != 1 || status.Entries[0].IdleReason == nil || *status.Entries[0].IdleReason != IdleReasonFinished {
		t.Fatalf("unexpected status: %+v", status)
	}

	env := outEnvelope(t, rw)
	var req map[string]any
	json.Unmarshal([]byte(env.PayloadUTF8), &req)
	if req["mediaSessionId"] != float64(9) {
		t.Fatalf("expected mediaSessionId in request, got %v", req)
	}
}

func TestParseMovieMetadata(t *testing.T) {
	env := wire.NewStringEnvelope("app-transport-0", "sender-0", Namespace, `{
		"requestId": 1,
		"type": "MEDIA_STATUS",
		"status": [{
			"mediaSessionId": 1,
			"playbackRate": 1,
			"playerState": "PLAYING",
			"supportedMediaCommands": 15,
			"media": {
				"contentId": "movie-1",
				"streamType": "BUFFERED",
				"contentType": "video/mp4",
				"metadata": {
					"metadataType": 1,
					"title": "A Movie",
					"studio": "A Studio",
					"images": [{"url": "http://example.com/a.jpg", "width": 100, "height": 200}]
				}
			}
		}]
	}`)
	resp, err := Parse(env)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if resp.Status == nil || len(resp.Status.Entries) != 1 {
		t.Fatalf("expected one entry, got %+v", resp)
	}
	media := resp.Status.Entries[0].Media
	if media == nil || media.Metadata == nil || media.Metadata.Movie == nil {
		t.Fatalf("expected movie metadata, got %+v", media)
	}
	if media.Metadata.Movie.Title != "A Movie" || media.Metadata.Movie.Studio != "A Studio" {
		t.Fatalf("unexpected movie metadata: %+v", media.Metadata.Movie)
	}
	if len(media.Metadata.Movie.Images) != 1 || media.Metadata.Movie.Images[0].URL != "http://example.com/a.jpg" {
		t.Fatalf("unexpected images: %+v", media.Metadata.Movie.Images)
	}
}

func TestParseUnknownTypeIsNotImplemented(t *testing.T) {
	env := wire.NewStringEnvelope("app-transport-0", "sender-0", Namespace, `{"type":"QUEUE_CHANGE"}`)
	resp, err := Parse(env)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if resp.NotImplemented == nil || resp.NotImplemented.Type != "QUEUE_CHANGE" {
		t.Fatalf("expected NotImplemented passthrough, got %+v", resp)
	}
}
