package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	protoerr "github.com/alxayo/go-cast/internal/errors"
)

// PayloadType mirrors the CastMessage.PayloadType enum: the envelope's
// payload is carried either as a UTF-8 string or as an opaque binary blob,
// never both.
type PayloadType int32

const (
	PayloadTypeString PayloadType = 0
	PayloadTypeBinary PayloadType = 1
)

// ProtocolVersion mirrors CastMessage.ProtocolVersion. Only one value is
// defined on the wire today.
type ProtocolVersion int32

const ProtocolVersionCastV2_1_0 ProtocolVersion = 0

// field numbers from the fixed CastMessage protobuf schema (cast_channel.proto).
const (
	fieldProtocolVersion = 1
	fieldSourceID        = 2
	fieldDestinationID   = 3
	fieldNamespace       = 4
	fieldPayloadType     = 5
	fieldPayloadUTF8     = 6
	fieldPayloadBinary   = 7
)

// Envelope is the outermost message exchanged on the TLS stream. Exactly one
// of PayloadUTF8 or PayloadBinary is populated, consistent with PayloadType.
type Envelope struct {
	ProtocolVersion ProtocolVersion
	SourceID        string
	DestinationID   string
	Namespace       string
	PayloadType     PayloadType
	PayloadUTF8     string
	PayloadBinary   []byte
}

// NewStringEnvelope builds an envelope carrying a UTF-8 string payload.
func NewStringEnvelope(source, destination, namespace, payload string) *Envelope {
	return &Envelope{
		ProtocolVersion: ProtocolVersionCastV2_1_0,
		SourceID:        source,
		DestinationID:   destination,
		Namespace:       namespace,
		PayloadType:     PayloadTypeString,
		PayloadUTF8:     payload,
	}
}

// Marshal encodes e as a protobuf CastMessage using raw wire primitives
// (tag + varint/length-delimited fields) rather than a generated .pb.go —
// the schema is small and fixed, and per design this is regenerated per
// target language rather than hand-ported field by field from a generated
// source file.
func (e *Envelope) Marshal() ([]byte, error) {
	if e.SourceID == "" || e.DestinationID == "" || e.Namespace == "" {
		return nil, protoerr.NewFramingError("envelope.marshal", fmt.Errorf("source, destination and namespace are required"))
	}
	switch e.PayloadType {
	case PayloadTypeString:
		if e.PayloadBinary != nil {
			return nil, protoerr.NewFramingError("envelope.marshal", fmt.Errorf("payload_type STRING but payload_binary is set"))
		}
	case PayloadTypeBinary:
		if e.PayloadUTF8 != "" {
			return nil, protoerr.NewFramingError("envelope.marshal", fmt.Errorf("payload_type BINARY but payload_utf8 is set"))
		}
	default:
		return nil, protoerr.NewFramingError("envelope.marshal", fmt.Errorf("unknown payload_type %d", e.PayloadType))
	}

	var b []byte
	b = protowire.AppendTag(b, fieldProtocolVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.ProtocolVersion))
	b = protowire.AppendTag(b, fieldSourceID, protowire.BytesType)
	b = protowire.AppendString(b, e.SourceID)
	b = protowire.AppendTag(b, fieldDestinationID, protowire.BytesType)
	b = protowire.AppendString(b, e.DestinationID)
	b = protowire.AppendTag(b, fieldNamespace, protowire.BytesType)
	b = protowire.AppendString(b, e.Namespace)
	b = protowire.AppendTag(b, fieldPayloadType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.PayloadType))
	switch e.PayloadType {
	case PayloadTypeString:
		b = protowire.AppendTag(b, fieldPayloadUTF8, protowire.BytesType)
		b = protowire.AppendString(b, e.PayloadUTF8)
	case PayloadTypeBinary:
		b = protowire.AppendTag(b, fieldPayloadBinary, protowire.BytesType)
		b = protowire.AppendBytes(b, e.PayloadBinary)
	}
	return b, nil
}

// Unmarshal decodes buf into e, rejecting anything that fails the required
// fields or the payload_type/payload pairing invariant.
func (e *Envelope) Unmarshal(buf []byte) error {
	var (
		haveSource, haveDestination, haveNamespace, havePayloadType bool
		havePayloadUTF8, havePayloadBinary                          bool
	)
	*e = Envelope{}

	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return protoerr.NewFramingError("envelope.unmarshal", fmt.Errorf("invalid tag: %w", protowire.ParseError(n)))
		}
		buf = buf[n:]

		switch num {
		case fieldProtocolVersion:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return protoerr.NewFramingError("envelope.unmarshal", fmt.Errorf("protocol_version: %w", protowire.ParseError(n)))
			}
			e.ProtocolVersion = ProtocolVersion(v)
			buf = buf[n:]
		case fieldSourceID:
			s, n := protowire.ConsumeString(buf)
			if n < 0 {
				return protoerr.NewFramingError("envelope.unmarshal", fmt.Errorf("source_id: %w", protowire.ParseError(n)))
			}
			e.SourceID, haveSource = s, true
			buf = buf[n:]
		case fieldDestinationID:
			s, n := protowire.ConsumeString(buf)
			if n < 0 {
				return protoerr.NewFramingError("envelope.unmarshal", fmt.Errorf("destination_id: %w", protowire.ParseError(n)))
			}
			e.DestinationID, haveDestination = s, true
			buf = buf[n:]
		case fieldNamespace:
			s, n := protowire.ConsumeString(buf)
			if n < 0 {
				return protoerr.NewFramingError("envelope.unmarshal", fmt.Errorf("namespace: %w", protowire.ParseError(n)))
			}
			e.Namespace, haveNamespace = s, true
			buf = buf[n:]
		case fieldPayloadType:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return protoerr.NewFramingError("envelope.unmarshal", fmt.Errorf("payload_type: %w", protowire.ParseError(n)))
			}
			e.PayloadType, havePayloadType = PayloadType(v), true
			buf = buf[n:]
		case fieldPayloadUTF8:
			s, n := protowire.ConsumeString(buf)
			if n < 0 {
				return protoerr.NewFramingError("envelope.unmarshal", fmt.Errorf("payload_utf8: %w", protowire.ParseError(n)))
			}
			e.PayloadUTF8, havePayloadUTF8 = s, true
			buf = buf[n:]
		case fieldPayloadBinary:
			bz, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return protoerr.NewFramingError("envelope.unmarshal", fmt.Errorf("payload_binary: %w", protowire.ParseError(n)))
			}
			e.PayloadBinary, havePayloadBinary = append([]byte(nil), bz...), true
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return protoerr.NewFramingError("envelope.unmarshal", fmt.Errorf("unknown field %d: %w", num, protowire.ParseError(n)))
			}
			buf = buf[n:]
		}
	}

	if !haveSource || !haveDestination || !haveNamespace || !havePayloadType {
		return protoerr.NewFramingError("envelope.unmarshal", fmt.Errorf("missing required field(s)"))
	}
	switch e.PayloadType {
	case PayloadTypeString:
		if !havePayloadUTF8 || havePayloadBinary {
			return protoerr.NewFramingError("envelope.unmarshal", fmt.Errorf("payload_type STRING requires payload_utf8 only"))
		}
	case PayloadTypeBinary:
		if !havePayloadBinary || havePayloadUTF8 {
			return protoerr.NewFramingError("envelope.unmarshal", fmt.Errorf("payload_type BINARY requires payload_binary only"))
		}
	default:
		return protoerr.NewFramingError("envelope.unmarshal", fmt.Errorf("unknown payload_type %d", e.PayloadType))
	}
	return nil
}

// DecodeEnvelope is a convenience wrapper combining allocation and Unmarshal.
func DecodeEnvelope(buf []byte) (*Envelope, error) {
	e := &Envelope{}
	if err := e.Unmarshal(buf); err != nil {
		return nil, err
	}
	return e, nil
}
