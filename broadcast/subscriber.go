package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/LuisPassosRamos/IoT-Ecosystem/errors"
)

// Conn is the transport connection behind a subscriber. The production
// implementation wraps a WebSocket connection; tests substitute fakes.
// WriteMessage must be safe to call from the subscriber's writer goroutine
// only; the Manager never calls it directly. Close must be safe to call
// concurrently with an in-flight WriteMessage and must not wait for it:
// closing is what interrupts a write parked on a dead peer, and the
// Manager calls it on the fanout path.
type Conn interface {
	WriteMessage(data []byte) error
	Close() error
}

// State is the subscriber lifecycle state.
type State int32

// Subscriber states. Closed is terminal.
const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Subscriber is one live delivery channel. Events are enqueued to a bounded
// send buffer and written by a dedicated writer goroutine, which preserves
// per-subscriber ordering without ever holding a Manager lock across a
// blocking send.
type Subscriber struct {
	id    string
	conn  Conn
	send  chan []byte
	done  chan struct{}
	state atomic.Int32

	closeOnce sync.Once
}

// NewSubscriber creates a subscriber in the Connecting state. bufferSize
// bounds the outbound queue; a subscriber that falls behind by more than
// this many events is considered slow and removed.
func NewSubscriber(conn Conn, bufferSize int) *Subscriber {
	if bufferSize < 1 {
		bufferSize = DefaultSendBuffer
	}
	s := &Subscriber{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, bufferSize),
		done: make(chan struct{}),
	}
	s.state.Store(int32(StateConnecting))
	return s
}

// ID returns the subscriber's unique identity.
func (s *Subscriber) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Subscriber) State() State {
	return State(s.state.Load())
}

// open transitions Connecting -> Open. Only the Manager calls this, from
// Register.
func (s *Subscriber) open() bool {
	return s.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen))
}

// enqueue places data on the outbound buffer without blocking. A full
// buffer or a non-open subscriber is an error for the caller to act on.
func (s *Subscriber) enqueue(data []byte) error {
	if s.State() != StateOpen {
		return errors.ErrSubscriberClosed
	}
	select {
	case s.send <- data:
		return nil
	default:
		return errors.ErrSubscriberSlow
	}
}

// close transitions to the terminal Closed state and closes the underlying
// connection. Safe to call more than once.
func (s *Subscriber) close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		close(s.done)
		_ = s.conn.Close()
	})
}

// writePump drains the send buffer to the connection in order. A write
// error reports the failure and exits; the Manager then tears down the
// registration.
func (s *Subscriber) writePump(onFailure func(id string, err error)) {
	for {
		select {
		case data := <-s.send:
			if err := s.conn.WriteMessage(data); err != nil {
				onFailure(s.id, err)
				return
			}
		case <-s.done:
			return
		}
	}
}
