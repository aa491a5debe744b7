// Package transport implements the message manager: the single owner of the
// TLS byte stream, serializing writes and demultiplexing reads across every
// channel and caller that awaits a reply.
package transport

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/alxayo/go-cast/internal/cast/wire"
	protoerr "github.com/alxayo/go-cast/internal/errors"
	"github.com/alxayo/go-cast/internal/logger"
)

// Manager owns a bidirectional stream and multiplexes reads/writes across
// concurrent callers. Writes are serialized by writeMu and stream reads by
// readMu; the unmatched-message buffer is guarded by bufMu, and the
// request-id counter is updated atomically, apart from all three. Per the
// library's lock-ordering rule, its own code never holds more than one of
// these three locks at a time.
type Manager struct {
	rw io.ReadWriter

	writeMu sync.Mutex

	readMu sync.Mutex // serializes stream reads across receive/receiveFindMap

	bufMu sync.Mutex
	buf   []*wire.Envelope // unmatched envelopes, arrival order

	requestID uint32 // next id to hand out; atomic, guarded separately from buf

	log *instanceLogger
}

// New wires rw (typically a *tls.Conn) into a fresh Manager.
func New(rw io.ReadWriter) *Manager {
	return &Manager{rw: rw, log: newInstanceLogger()}
}

// Send serializes env and writes it as one framed message. Exclusive over
// the write half: concurrent Send calls never interleave header+body bytes.
func (m *Manager) Send(env *wire.Envelope) error {
	body, err := env.Marshal()
	if err != nil {
		return err
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return wire.WriteFrame(m.rw, body)
}

// Receive returns the oldest buffered unmatched envelope if one exists,
// otherwise blocks reading one fresh envelope from the stream.
func (m *Manager) Receive() (*wire.Envelope, error) {
	if env, ok := m.popBuffered(); ok {
		return env, nil
	}
	return m.readOne()
}

// MapFunc is applied to each envelope read by ReceiveFindMap. Returning
// (nil, false, nil) means "not interested": the envelope is appended to the
// buffer and the next one is read. Returning a non-nil error aborts the loop
// and propagates. Returning (v, true, nil) ends the loop with v.
type MapFunc func(*wire.Envelope) (value any, matched bool, err error)

// ReceiveFindMap repeatedly reads envelopes from the stream — never from the
// buffer — passing each to f until f matches, errors, or the stream fails.
// Preserving "stream-only, never buffer-first" here is intentional: a reply
// that arrived and was buffered before this call began is not considered.
func (m *Manager) ReceiveFindMap(f MapFunc) (any, error) {
	for {
		env, err := m.readOne()
		if err != nil {
			return nil, err
		}
		val, matched, err := f(env)
		if err != nil {
			return nil, err
		}
		if matched {
			return val, nil
		}
		m.pushBuffered(env)
	}
}

// NextRequestID returns the next non-zero request id and advances the
// counter. Wrapping past the 32-bit range is a hard error, never a silent
// reset, per the protocol's uniqueness invariant.
func (m *Manager) NextRequestID() (uint32, error) {
	for {
		cur := atomic.LoadUint32(&m.requestID)
		next := cur + 1
		if next == 0 {
			return 0, &protoerr.RequestIDOverflowError{}
		}
		if atomic.CompareAndSwapUint32(&m.requestID, cur, next) {
			return next, nil
		}
	}
}

func (m *Manager) readOne() (*wire.Envelope, error) {
	m.readMu.Lock()
	defer m.readMu.Unlock()
	body, err := wire.ReadFrame(m.rw)
	if err != nil {
		return nil, err
	}
	env, err := wire.DecodeEnvelope(body)
	wire.ReleaseFrame(body)
	if err != nil {
		return nil, err
	}
	m.log.logReceived(env)
	return env, nil
}

func (m *Manager) popBuffered() (*wire.Envelope, bool) {
	m.bufMu.Lock()
	defer m.bufMu.Unlock()
	if len(m.buf) == 0 {
		return nil, false
	}
	env := m.buf[0]
	m.buf = m.buf[1:]
	return env, true
}

func (m *Manager) pushBuffered(env *wire.Envelope) {
	m.bufMu.Lock()
	defer m.bufMu.Unlock()
	m.buf = append(m.buf, env)
}

// BufferedLen reports how many envelopes are currently parked in the
// unmatched-message buffer. Exposed so a long-running caller can monitor the
// unbounded-growth hazard called out by the protocol's design notes; the
// manager itself imposes no cap.
func (m *Manager) BufferedLen() int {
	m.bufMu.Lock()
	defer m.bufMu.Unlock()
	return len(m.buf)
}

type instanceLogger struct {
	id string
}

func newInstanceLogger() *instanceLogger {
	return &instanceLogger{id: newInstanceID()}
}

func (l *instanceLogger) logReceived(env *wire.Envelope) {
	logger.WithEndpoints(logger.WithNamespace(logger.Logger(), env.Namespace), env.SourceID, env.DestinationID).
		Debug("envelope received", "manager_id", l.id)
}
