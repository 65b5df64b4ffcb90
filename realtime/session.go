package realtime

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	errs "github.com/techagentng/collera/errors"
	"github.com/techagentng/collera/models"
)

// State is the lifecycle position of a realtime connection.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateActive:
		return "ACTIVE"
	case StateClosed:
		return "CLOSED"
	}
	return "UNKNOWN"
}

// Transport is a bidirectional JSON message stream. Reads happen on one
// goroutine and writes on another; Ping and Close may be called from any.
type Transport interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	Ping() error
	Close() error
}

// Session is one client connection. It never owns registry state; the
// manager registers and deregisters it.
type Session struct {
	id     string
	userID uuid.UUID
	state  atomic.Int32

	transport Transport
	send      chan models.Envelope
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(buffer int) *Session {
	if buffer <= 0 {
		buffer = 1
	}
	return &Session{
		id:   uuid.NewString(),
		send: make(chan models.Envelope, buffer),
		done: make(chan struct{}),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) UserID() uuid.UUID {
	return s.userID
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Push enqueues env without blocking. A session whose buffer is full is
// closed and the event is lost.
func (s *Session) Push(env models.Envelope) bool {
	if s.State() != StateActive {
		return false
	}
	select {
	case <-s.done:
		return false
	case s.send <- env:
		return true
	default:
		log.Printf("closing slow connection %s of user %s", s.id, s.userID)
		s.Close()
		return false
	}
}

func (s *Session) emit(event string, data interface{}) bool {
	env, err := models.NewEnvelope(event, data)
	if err != nil {
		log.Printf("couldn't encode %s event: %v", event, err)
		return false
	}
	return s.Push(env)
}

// Close moves the session to CLOSED and severs the transport. Safe to call
// more than once and from any goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.setState(StateClosed)
		close(s.done)
		if s.transport != nil {
			_ = s.transport.Close()
		}
	})
}

// readPump decodes inbound envelopes in arrival order. Payloads that are
// not valid JSON are reported back without ending the session.
func (s *Session) readPump(inbound chan<- models.Envelope) {
	defer close(inbound)
	defer s.Close()

	for {
		var env models.Envelope
		if err := s.transport.ReadJSON(&env); err != nil {
			if isDecodeError(err) {
				s.emit(models.EventError, models.ErrorPayload{Code: errs.CodeValidation, Message: "malformed event"})
				continue
			}
			return
		}
		select {
		case inbound <- env:
		case <-s.done:
			return
		}
	}
}

func (s *Session) writePump(pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer s.Close()

	for {
		select {
		case <-s.done:
			return
		case env := <-s.send:
			if err := s.transport.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.transport.Ping(); err != nil {
				return
			}
		}
	}
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
