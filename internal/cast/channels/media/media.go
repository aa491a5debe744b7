// Package media implements the media channel: LOAD, GET_STATUS, PLAY,
// PAUSE, STOP, and SEEK against a media session hosted inside a receiver
// application.
package media

import (
	"encoding/json"

	"github.com/alxayo/go-cast/internal/cast/transport"
	"github.com/alxayo/go-cast/internal/cast/wire"
	protoerr "github.com/alxayo/go-cast/internal/errors"
)

// Namespace is the well-known namespace for the media channel.
const Namespace = "urn:x-cast:com.google.cast.media"

const (
	messageTypeGetStatus          = "GET_STATUS"
	messageTypeLoad               = "LOAD"
	messageTypePlay               = "PLAY"
	messageTypePause              = "PAUSE"
	messageTypeStop               = "STOP"
	messageTypeSeek               = "SEEK"
	messageTypeMediaStatus        = "MEDIA_STATUS"
	messageTypeLoadCancelled      = "LOAD_CANCELLED"
	messageTypeLoadFailed         = "LOAD_FAILED"
	messageTypeInvalidPlayerState = "INVALID_PLAYER_STATE"
	messageTypeInvalidRequest     = "INVALID_REQUEST"
)

// StreamType describes how the device should stream content.
type StreamType string

const (
	StreamTypeNone     StreamType = "NONE"
	StreamTypeBuffered StreamType = "BUFFERED"
	StreamTypeLive     StreamType = "LIVE"
)

// PlayerState describes the media player's current state.
type PlayerState string

const (
	PlayerStateIdle       PlayerState = "IDLE"
	PlayerStatePlaying    PlayerState = "PLAYING"
	PlayerStateBuffering  PlayerState = "BUFFERING"
	PlayerStatePaused     PlayerState = "PAUSED"
)

// IdleReason explains why the player is idle.
type IdleReason string

const (
	IdleReasonCancelled   IdleReason = "CANCELLED"
	IdleReasonInterrupted IdleReason = "INTERRUPTED"
	IdleReasonFinished    IdleReason = "FINISHED"
	IdleReasonError       IdleReason = "ERROR"
)

// ResumeState is an optional hint on SEEK for whether to force-start or
// force-pause playback at the new position.
type ResumeState string

const (
	ResumeStatePlaybackStart ResumeState = "PLAYBACK_START"
	ResumeStatePlaybackPause ResumeState = "PLAYBACK_PAUSE"
)

// Image describes an image associated with media metadata.
type Image struct {
	URL    string
	Width  *uint32
	Height *uint32
}

// GenericMetadata is the generic media metadata variant.
type GenericMetadata struct {
	Title       string
	Subtitle    string
	Images      []Image
	ReleaseDate string
}

// MovieMetadata is the movie media metadata variant.
type MovieMetadata struct {
	Title       string
	Subtitle    string
	Studio      string
	Images      []Image
	ReleaseDate string
}

// TvShowMetadata is the TV show media metadata variant.
type TvShowMetadata struct {
	SeriesTitle     string
	EpisodeTitle    string
	Season          *uint32
	Episode         *uint32
	Images          []Image
	OriginalAirDate string
}

// MusicTrackMetadata is the music track media metadata variant.
type MusicTrackMetadata struct {
	AlbumName   string
	Title       string
	AlbumArtist string
	Artist      string
	Composer    string
	TrackNumber *uint32
	DiscNumber  *uint32
	Images      []Image
	ReleaseDate string
}

// PhotoMetadata is the photo media metadata variant.
type PhotoMetadata struct {
	Title            string
	Artist           string
	Location         string
	Latitude         *float64
	Longitude        *float64
	Width            *uint32
	Height           *uint32
	CreationDateTime string
}

// metadataType values per the wire schema.
const (
	metadataTypeGeneric    = 0
	metadataTypeMovie      = 1
	metadataTypeTvShow     = 2
	metadataTypeMusicTrack = 3
	metadataTypePhoto      = 4
)

// Metadata is a tagged union over the five media metadata variants; exactly
// one field is non-nil.
type Metadata struct {
	Generic    *GenericMetadata
	Movie      *MovieMetadata
	TvShow     *TvShowMetadata
	MusicTrack *MusicTrackMetadata
	Photo      *PhotoMetadata
}

// Media describes a piece of content to load or that is currently loaded.
type Media struct {
	ContentID   string
	StreamType  StreamType
	ContentType string
	Metadata    *Metadata
	Duration    *float64
}

// StatusEntry is one media session's detailed status.
type StatusEntry struct {
	MediaSessionID         int32
	Media                  *Media
	PlaybackRate           float64
	PlayerState            PlayerState
	IdleReason             *IdleReason
	CurrentTime            *float64
	SupportedMediaCommands uint32
}

// Status is the full reply to a GET_STATUS request, carrying every session
// entry the device reported.
type Status struct {
	RequestID uint32
	Entries   []StatusEntry
}

// Response is a tagged variant over the media channel's inbound message
// types.
type Response struct {
	Status             *Status
	LoadCancelled      *RequestError
	LoadFailed         *RequestError
	InvalidPlayerState *RequestError
	InvalidRequest     *RequestError
	NotImplemented     *NotImplemented
}

// RequestError carries the request id an error answers, and an optional
// device-supplied reason (only INVALID_REQUEST populates Reason on the
// wire).
type RequestError struct {
	RequestID uint32
	Reason    string
}

// NotImplemented is the passthrough variant for unrecognized message types.
type NotImplemented struct {
	Type  string
	Value json.RawMessage
}

// Channel is bound to one sender identity and borrows a transport.Manager;
// every operation is addressed to an explicit destination (the application
// transport id).
type Channel struct {
	sender  string
	manager *transport.Manager
}

// New returns a media channel using sender as the source identity.
func New(sender string, manager *transport.Manager) *Channel {
	return &Channel{sender: sender, manager: manager}
}

type customData struct{}

type wireImage struct {
	URL    string  `json:"url"`
	Width  *uint32 `json:"width,omitempty"`
	Height *uint32 `json:"height,omitempty"`
}

type wireMetadata struct {
	MetadataType int         `json:"metadataType"`
	Title        string      `json:"title,omitempty"`
	Subtitle     string      `json:"subtitle,omitempty"`
	Studio       string      `json:"studio,omitempty"`
	SeriesTitle  string      `json:"seriesTitle,omitempty"`
	Season       *uint32     `json:"season,omitempty"`
	Episode      *uint32     `json:"episode,omitempty"`
	AlbumName    string      `json:"albumName,omitempty"`
	AlbumArtist  string      `json:"albumArtist,omitempty"`
	Artist       string      `json:"artist,omitempty"`
	Composer     string      `json:"composer,omitempty"`
	TrackNumber  *uint32     `json:"trackNumber,omitempty"`
	DiscNumber   *uint32     `json:"discNumber,omitempty"`
	Location     string      `json:"location,omitempty"`
	Latitude     *float64    `json:"latitude,omitempty"`
	Longitude    *float64    `json:"longitude,omitempty"`
	Width        *uint32     `json:"width,omitempty"`
	Height       *uint32     `json:"height,omitempty"`
	Images       []wireImage `json:"images,omitempty"`
	ReleaseDate  string      `json:"releaseDate,omitempty"`
	AirDate      string      `json:"originalAirDate,omitempty"`
	CreationDate string      `json:"creationDateTime,omitempty"`
}

func encodeImages(images []Image) []wireImage {
	out := make([]wireImage, 0, len(images))
	for _, i := range images {
		out = append(out, wireImage{URL: i.URL, Width: i.Width, Height: i.Height})
	}
	return out
}

func encodeMetadata(m *Metadata) *wireMetadata {
	if m == nil {
		return nil
	}
	switch {
	case m.Generic != nil:
		g := m.Generic
		return &wireMetadata{MetadataType: metadataTypeGeneric, Title: g.Title, Subtitle: g.Subtitle, Images: encodeImages(g.Images), ReleaseDate: g.ReleaseDate}
	case m.Movie != nil:
		mv := m.Movie
		return &wireMetadata{MetadataType: metadataTypeMovie, Title: mv.Title, Subtitle: mv.Subtitle, Studio: mv.Studio, Images: encodeImages(mv.Images), ReleaseDate: mv.ReleaseDate}
	case m.TvShow != nil:
		tv := m.TvShow
		return &wireMetadata{MetadataType: metadataTypeTvShow, SeriesTitle: tv.SeriesTitle, Subtitle: tv.EpisodeTitle, Season: tv.Season, Episode: tv.Episode, Images: encodeImages(tv.Images), AirDate: tv.OriginalAirDate}
	case m.MusicTrack != nil:
		mt := m.MusicTrack
		return &wireMetadata{MetadataType: metadataTypeMusicTrack, AlbumName: mt.AlbumName, Title: mt.Title, AlbumArtist: mt.AlbumArtist, Artist: mt.Artist, Composer: mt.Composer, TrackNumber: mt.TrackNumber, DiscNumber: mt.DiscNumber, Images: encodeImages(mt.Images), ReleaseDate: mt.ReleaseDate}
	case m.Photo != nil:
		p := m.Photo
		return &wireMetadata{MetadataType: metadataTypePhoto, Title: p.Title, Artist: p.Artist, Location: p.Location, Latitude: p.Latitude, Longitude: p.Longitude, Width: p.Width, Height: p.Height, CreationDate: p.CreationDateTime}
	default:
		return nil
	}
}

func decodeMetadata(w *wireMetadata) *Metadata {
	if w == nil {
		return nil
	}
	decodeImages := func(imgs []wireImage) []Image {
		out := make([]Image, 0, len(imgs))
		for _, i := range imgs {
			out = append(out, Image{URL: i.URL, Width: i.Width, Height: i.Height})
		}
		return out
	}
	switch w.MetadataType {
	case metadataTypeGeneric:
		return &Metadata{Generic: &GenericMetadata{Title: w.Title, Subtitle: w.Subtitle, Images: decodeImages(w.Images), ReleaseDate: w.ReleaseDate}}
	case metadataTypeMovie:
		return &Metadata{Movie: &MovieMetadata{Title: w.Title, Subtitle: w.Subtitle, Studio: w.Studio, Images: decodeImages(w.Images), ReleaseDate: w.ReleaseDate}}
	case metadataTypeTvShow:
		return &Metadata{TvShow: &TvShowMetadata{SeriesTitle: w.SeriesTitle, EpisodeTitle: w.Subtitle, Season: w.Season, Episode: w.Episode, Images: decodeImages(w.Images), OriginalAirDate: w.AirDate}}
	case metadataTypeMusicTrack:
		return &Metadata{MusicTrack: &MusicTrackMetadata{AlbumName: w.AlbumName, Title: w.Title, AlbumArtist: w.AlbumArtist, Artist: w.Artist, Composer: w.Composer, TrackNumber: w.TrackNumber, DiscNumber: w.DiscNumber, Images: decodeImages(w.Images), ReleaseDate: w.ReleaseDate}}
	case metadataTypePhoto:
		return &Metadata{Photo: &PhotoMetadata{Title: w.Title, Artist: w.Artist, Location: w.Location, Latitude: w.Latitude, Longitude: w.Longitude, Width: w.Width, Height: w.Height, CreationDateTime: w.CreationDate}}
	default:
		return nil
	}
}

type wireMedia struct {
	ContentID   string        `json:"contentId"`
	StreamType  string        `json:"streamType"`
	ContentType string        `json:"contentType"`
	Metadata    *wireMetadata `json:"metadata,omitempty"`
	Duration    *float64      `json:"duration,omitempty"`
}

func encodeMedia(m Media) wireMedia {
	return wireMedia{
		ContentID:   m.ContentID,
		StreamType:  string(m.StreamType),
		ContentType: m.ContentType,
		Metadata:    encodeMetadata(m.Metadata),
		Duration:    m.Duration,
	}
}

type loadRequest struct {
	Type        string      `json:"type"`
	RequestID   uint32      `json:"requestId"`
	SessionID   string      `json:"sessionId"`
	Media       wireMedia   `json:"media"`
	CurrentTime float64     `json:"currentTime"`
	Autoplay    bool        `json:"autoplay"`
	CustomData  customData  `json:"customData"`
}

type getStatusRequest struct {
	Type            string `json:"type"`
	RequestID       uint32 `json:"requestId"`
	MediaSessionID  *int32 `json:"mediaSessionId,omitempty"`
}

type playbackGenericRequest struct {
	Type           string     `json:"type"`
	RequestID      uint32     `json:"requestId"`
	MediaSessionID int32      `json:"mediaSessionId"`
	CustomData     customData `json:"customData"`
}

type playbackSeekRequest struct {
	Type           string     `json:"type"`
	RequestID      uint32     `json:"requestId"`
	MediaSessionID int32      `json:"mediaSessionId"`
	CurrentTime    *float64   `json:"currentTime,omitempty"`
	ResumeState    string     `json:"resumeState,omitempty"`
	CustomData     customData `json:"customData"`
}

// GetStatus issues GET_STATUS addressed to destination, optionally scoped to
// one mediaSessionID, and awaits the matching MEDIA_STATUS.
func (c *Channel) GetStatus(destination string, mediaSessionID *int32) (Status, error) {
	requestID, err := c.manager.NextRequestID()
	if err != nil {
		return Status{}, err
	}
	payload, err := json.Marshal(getStatusRequest{Type: messageTypeGetStatus, RequestID: requestID, MediaSessionID: mediaSessionID})
	if err != nil {
		return Status{}, protoerr.NewSerializationError("media.encode", err)
	}
	if err := c.manager.Send(wire.NewStringEnvelope(c.sender, destination, Namespace, string(payload))); err != nil {
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
		switch {
		case resp.Status != nil && resp.Status.RequestID == requestID:
			return *resp.Status, true, nil
		case resp.InvalidRequest != nil && resp.InvalidRequest.RequestID == requestID:
			reason := resp.InvalidRequest.Reason
			if reason == "" {
				reason = "Unknown"
			}
			return nil, false, protoerr.NewProtocolResponseError(messageTypeInvalidRequest, requestID, reason)
		}
		return nil, false, nil
	})
	if err != nil {
		return Status{}, err
	}
	return val.(Status), nil
}

// Load serializes media and playback defaults (currentTime=0, autoplay=true,
// empty customData) and awaits a matching MEDIA_STATUS. Because some
// receivers omit the requestId echo on LOAD, a MEDIA_STATUS carrying an
// entry whose media content id matches is also accepted even when its
// requestId does not match (the documented LOAD workaround).
func (c *Channel) Load(destination, sessionID string, media Media) (Status, error) {
	requestID, err := c.manager.NextRequestID()
	if err != nil {
		return Status{}, err
	}
	payload, err := json.Marshal(loadRequest{
		Type:        messageTypeLoad,
		RequestID:   requestID,
		SessionID:   sessionID,
		Media:       encodeMedia(media),
		CurrentTime: 0,
		Autoplay:    true,
	})
	if err != nil {
		return Status{}, protoerr.NewSerializationError("media.encode", err)
	}
	if err := c.manager.Send(wire.NewStringEnvelope(c.sender, destination, Namespace, string(payload))); err != nil {
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
		switch {
		case resp.Status != nil && resp.Status.RequestID == requestID:
			return *resp.Status, true, nil
		case resp.Status != nil:
			for _, entry := range resp.Status.Entries {
				if entry.Media != nil && entry.Media.ContentID == media.ContentID {
					return *resp.Status, true, nil
				}
			}
		case resp.LoadFailed != nil && resp.LoadFailed.RequestID == requestID:
			return nil, false, protoerr.NewProtocolResponseError(messageTypeLoadFailed, requestID, "")
		case resp.LoadCancelled != nil && resp.LoadCancelled.RequestID == requestID:
			return nil, false, protoerr.NewProtocolResponseError(messageTypeLoadCancelled, requestID, "")
		case resp.InvalidPlayerState != nil && resp.InvalidPlayerState.RequestID == requestID:
			return nil, false, protoerr.NewProtocolResponseError(messageTypeInvalidPlayerState, requestID, "")
		case resp.InvalidRequest != nil && resp.InvalidRequest.RequestID == requestID:
			reason := resp.InvalidRequest.Reason
			if reason == "" {
				reason = "UNKNOWN"
			}
			return nil, false, protoerr.NewProtocolResponseError(messageTypeInvalidRequest, requestID, reason)
		}
		return nil, false, nil
	})
	if err != nil {
		return Status{}, err
	}
	return val.(Status), nil
}

// Pause sends PAUSE for mediaSessionID and returns its matching StatusEntry.
func (c *Channel) Pause(destination string, mediaSessionID int32) (StatusEntry, error) {
	return c.playbackGeneric(destination, messageTypePause, mediaSessionID)
}

// Play sends PLAY for mediaSessionID and returns its matching StatusEntry.
func (c *Channel) Play(destination string, mediaSessionID int32) (StatusEntry, error) {
	return c.playbackGeneric(destination, messageTypePlay, mediaSessionID)
}

// Stop sends STOP for mediaSessionID and returns its matching StatusEntry.
// After this the media session id is invalidated by the device.
func (c *Channel) Stop(destination string, mediaSessionID int32) (StatusEntry, error) {
	return c.playbackGeneric(destination, messageTypeStop, mediaSessionID)
}

func (c *Channel) playbackGeneric(destination, typ string, mediaSessionID int32) (StatusEntry, error) {
	requestID, err := c.manager.NextRequestID()
	if err != nil {
		return StatusEntry{}, err
	}
	payload, err := json.Marshal(playbackGenericRequest{Type: typ, RequestID: requestID, MediaSessionID: mediaSessionID})
	if err != nil {
		return StatusEntry{}, protoerr.NewSerializationError("media.encode", err)
	}
	if err := c.manager.Send(wire.NewStringEnvelope(c.sender, destination, Namespace, string(payload))); err != nil {
		return StatusEntry{}, err
	}
	return c.receiveStatusEntry(requestID, mediaSessionID)
}

// Seek sends SEEK for mediaSessionID, with optional currentTime and
// resumeState, and returns its matching StatusEntry.
func (c *Channel) Seek(destination string, mediaSessionID int32, currentTime *float64, resumeState *ResumeState) (StatusEntry, error) {
	requestID, err := c.manager.NextRequestID()
	if err != nil {
		return StatusEntry{}, err
	}
	rs := ""
	if resumeState != nil {
		rs = string(*resumeState)
	}
	payload, err := json.Marshal(playbackSeekRequest{
		Type:           messageTypeSeek,
		RequestID:      requestID,
		MediaSessionID: mediaSessionID,
		CurrentTime:    currentTime,
		ResumeState:    rs,
	})
	if err != nil {
		return StatusEntry{}, protoerr.NewSerializationError("media.encode", err)
	}
	if err := c.manager.Send(wire.NewStringEnvelope(c.sender, destination, Namespace, string(payload))); err != nil {
		return StatusEntry{}, err
	}
	return c.receiveStatusEntry(requestID, mediaSessionID)
}

// receiveStatusEntry awaits the MEDIA_STATUS matching requestID and extracts
// the entry whose mediaSessionId matches. If the matching status carries no
// such entry, it is skipped for this awaiter (left in the buffer via the
// normal not-matched path) and the loop continues waiting.
func (c *Channel) receiveStatusEntry(requestID uint32, mediaSessionID int32) (StatusEntry, error) {
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
			for _, entry := range resp.Status.Entries {
				if entry.MediaSessionID == mediaSessionID {
					return entry, true, nil
				}
			}
			return nil, false, nil
		case resp.InvalidPlayerState != nil && resp.InvalidPlayerState.RequestID == requestID:
			return nil, false, protoerr.NewProtocolResponseError(messageTypeInvalidPlayerState, requestID, "")
		case resp.InvalidRequest != nil && resp.InvalidRequest.RequestID == requestID:
			reason := resp.InvalidRequest.Reason
			if reason == "" {
				reason = "Unknown"
			}
			return nil, false, protoerr.NewProtocolResponseError(messageTypeInvalidRequest, requestID, reason)
		}
		return nil, false, nil
	})
	if err != nil {
		return StatusEntry{}, err
	}
	return val.(StatusEntry), nil
}

// CanHandle reports whether env belongs to this channel's namespace.
func (c *Channel) CanHandle(env *wire.Envelope) bool {
	return env.Namespace == Namespace
}

type wireStatusEntry struct {
	MediaSessionID         int32      `json:"mediaSessionId"`
	Media                  *wireMedia `json:"media,omitempty"`
	PlaybackRate           float64    `json:"playbackRate"`
	PlayerState            string     `json:"playerState"`
	IdleReason             string     `json:"idleReason,omitempty"`
	CurrentTime            *float64   `json:"currentTime,omitempty"`
	SupportedMediaCommands uint32     `json:"supportedMediaCommands"`
}

type mediaStatusReply struct {
	RequestID uint32            `json:"requestId"`
	Status    []wireStatusEntry `json:"status"`
}

type requestErrorReply struct {
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
		return nil, protoerr.NewSerializationError("media.decode", err)
	}

	switch generic.Type {
	case messageTypeMediaStatus:
		var reply mediaStatusReply
		if err := json.Unmarshal(raw, &reply); err != nil {
			return nil, protoerr.NewSerializationError("media.decode", err)
		}
		entries := make([]StatusEntry, 0, len(reply.Status))
		for _, e := range reply.Status {
			var media *Media
			if e.Media != nil {
				media = &Media{
					ContentID:   e.Media.ContentID,
					StreamType:  parseStreamType(e.Media.StreamType),
					ContentType: e.Media.ContentType,
					Metadata:    decodeMetadata(e.Media.Metadata),
					Duration:    e.Media.Duration,
				}
			}
			var idleReason *IdleReason
			if e.IdleReason != "" {
				ir := IdleReason(e.IdleReason)
				idleReason = &ir
			}
			entries = append(entries, StatusEntry{
				MediaSessionID:         e.MediaSessionID,
				Media:                  media,
				PlaybackRate:           e.PlaybackRate,
				PlayerState:            PlayerState(e.PlayerState),
				IdleReason:             idleReason,
				CurrentTime:            e.CurrentTime,
				SupportedMediaCommands: e.SupportedMediaCommands,
			})
		}
		return &Response{Status: &Status{RequestID: reply.RequestID, Entries: entries}}, nil
	case messageTypeLoadCancelled:
		var reply requestErrorReply
		if err := json.Unmarshal(raw, &reply); err != nil {
			return nil, protoerr.NewSerializationError("media.decode", err)
		}
		return &Response{LoadCancelled: &RequestError{RequestID: reply.RequestID}}, nil
	case messageTypeLoadFailed:
		var reply requestErrorReply
		if err := json.Unmarshal(raw, &reply); err != nil {
			return nil, protoerr.NewSerializationError("media.decode", err)
		}
		return &Response{LoadFailed: &RequestError{RequestID: reply.RequestID}}, nil
	case messageTypeInvalidPlayerState:
		var reply requestErrorReply
		if err := json.Unmarshal(raw, &reply); err != nil {
			return nil, protoerr.NewSerializationError("media.decode", err)
		}
		return &Response{InvalidPlayerState: &RequestError{RequestID: reply.RequestID}}, nil
	case messageTypeInvalidRequest:
		var reply requestErrorReply
		if err := json.Unmarshal(raw, &reply); err != nil {
			return nil, protoerr.NewSerializationError("media.decode", err)
		}
		return &Response{InvalidRequest: &RequestError{RequestID: reply.RequestID, Reason: reply.Reason}}, nil
	default:
		return &Response{NotImplemented: &NotImplemented{Type: generic.Type, Value: json.RawMessage(raw)}}, nil
	}
}

func parseStreamType(s string) StreamType {
	switch s {
	case "BUFFERED":
		return StreamTypeBuffered
	case "LIVE":
		return StreamTypeLive
	default:
		return StreamTypeNone
	}
}
