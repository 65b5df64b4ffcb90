package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/techagentng/collera/config"
	errs "github.com/techagentng/collera/errors"
	"github.com/techagentng/collera/models"
	"github.com/techagentng/collera/services"
	"golang.org/x/sync/semaphore"
)

var ErrManagerClosed = errors.New("realtime manager is closed")

// Manager authenticates realtime connections, keeps presence in the
// registry and routes inbound events to the chat service.
type Manager struct {
	Config   *config.Config
	identity services.IdentityService
	chat     services.ChatService
	registry *Registry
	presence *keyedMutex
	storage  *semaphore.Weighted
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
	wg       sync.WaitGroup
}

func NewManager(identity services.IdentityService, chat services.ChatService, registry *Registry, conf *config.Config) *Manager {
	inflight := conf.MaxInflightStorage
	if inflight <= 0 {
		inflight = 1
	}
	return &Manager{
		Config:   conf,
		identity: identity,
		chat:     chat,
		registry: registry,
		presence: newKeyedMutex(),
		storage:  semaphore.NewWeighted(inflight),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Accept authenticates credential for a new connection. On failure the
// returned session is already CLOSED and nothing was registered.
func (m *Manager) Accept(ctx context.Context, credential string) (*Session, error) {
	s := newSession(m.Config.SendBuffer)
	s.setState(StateAuthenticating)

	var userID uuid.UUID
	err := m.withStorage(ctx, func(ctx context.Context) error {
		var err error
		userID, err = m.identity.Authenticate(ctx, credential)
		return err
	})
	if err != nil {
		s.Close()
		return s, err
	}
	s.userID = userID
	return s, nil
}

// Serve runs an authenticated session over t until either side closes it.
// Inbound events are handled one at a time in arrival order.
func (m *Manager) Serve(ctx context.Context, s *Session, t Transport) error {
	if s.State() != StateAuthenticating {
		_ = t.Close()
		return errs.ErrAuthentication
	}
	s.transport = t
	if err := m.track(s); err != nil {
		s.Close()
		return err
	}
	defer m.wg.Done()

	// Cleanup must finish even when ctx is cancelled by shutdown.
	cleanupCtx := context.WithoutCancel(ctx)

	m.activate(ctx, s)

	inbound := make(chan models.Envelope, 16)
	go s.writePump(m.pingPeriod())
	go s.readPump(inbound)

loop:
	for {
		select {
		case env, ok := <-inbound:
			if !ok {
				break loop
			}
			m.dispatch(ctx, s, env)
		case <-s.done:
			break loop
		}
	}

	s.Close()
	m.release(cleanupCtx, s)
	return nil
}

func (m *Manager) track(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrManagerClosed
	}
	m.sessions[s.id] = s
	m.wg.Add(1)
	return nil
}

// activate and release run under the user's presence lock so the persisted
// flag and the last presence event always agree with the registry.
func (m *Manager) activate(ctx context.Context, s *Session) {
	unlock := m.presence.Lock(s.userID)
	defer unlock()

	s.setState(StateActive)
	m.registry.Register(s.userID, s)

	now := m.now()
	if err := m.withStorage(ctx, func(ctx context.Context) error {
		return m.identity.SetPresence(ctx, s.userID, true, now)
	}); err != nil {
		log.Printf("error marking user %s online: %v", s.userID, err)
	}
	m.notifyConnections(ctx, s.userID, models.EventUserOnline, models.PresencePayload{UserID: s.userID})
}

// release deregisters s and, when it was the user's last connection,
// persists the user as offline and tells their connections.
func (m *Manager) release(ctx context.Context, s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.id)
	m.mu.Unlock()

	unlock := m.presence.Lock(s.userID)
	defer unlock()

	if !m.registry.Deregister(s.userID, s.id) {
		return
	}

	lastSeen := m.now()
	if err := m.withStorage(ctx, func(ctx context.Context) error {
		return m.identity.SetPresence(ctx, s.userID, false, lastSeen)
	}); err != nil {
		log.Printf("error marking user %s offline: %v", s.userID, err)
	}
	m.notifyConnections(ctx, s.userID, models.EventUserOffline, models.PresencePayload{UserID: s.userID, LastSeen: &lastSeen})
}

func (m *Manager) notifyConnections(ctx context.Context, userID uuid.UUID, event string, data interface{}) {
	var friends []uuid.UUID
	if err := m.withStorage(ctx, func(ctx context.Context) error {
		var err error
		friends, err = m.identity.EstablishedConnectionsOf(ctx, userID)
		return err
	}); err != nil {
		log.Printf("error loading connections of %s for %s: %v", userID, event, err)
		return
	}
	for _, id := range friends {
		m.NotifyUser(id, event, data)
	}
}

func (m *Manager) dispatch(ctx context.Context, s *Session, env models.Envelope) {
	switch env.Event {
	case models.EventSendMessage:
		m.handleSendMessage(ctx, s, env)
	case models.EventTypingStart:
		m.handleTyping(s, env, models.EventUserTyping)
	case models.EventTypingStop:
		m.handleTyping(s, env, models.EventUserStoppedTyping)
	case models.EventMarkRead:
		m.handleMarkRead(ctx, s, env)
	case models.EventConnectionRequest:
		m.handleRelay(s, env, models.EventNewConnectionRequest)
	case models.EventConnectionAccepted:
		m.handleRelay(s, env, models.EventConnectionAcceptedNotification)
	default:
		m.sendError(s, env.Event, errs.ErrUnknownEvent, "")
	}
}

func (m *Manager) handleSendMessage(ctx context.Context, s *Session, env models.Envelope) {
	var ev models.SendMessageEvent
	if err := decode(env, &ev); err != nil {
		m.sendError(s, env.Event, errs.New("invalid send_message payload", http.StatusBadRequest), "")
		return
	}

	req := &models.SendMessageRequest{Content: ev.Content, MessageType: ev.MessageType}
	var (
		msg  *models.Message
		conv *models.Conversation
	)
	err := m.withStorage(ctx, func(ctx context.Context) error {
		var err error
		msg, conv, err = m.chat.SendMessage(ctx, s.userID, ev.RecipientID, ev.ConversationID, req)
		return err
	})
	if err != nil {
		if errs.StatusOf(err) >= http.StatusInternalServerError {
			log.Printf("send_message from %s to %s failed: %v", s.userID, ev.RecipientID, err)
			err = errs.ErrDeliveryFailed
		}
		m.sendError(s, env.Event, err, ev.ClientRef)
		return
	}

	m.NotifyUser(ev.RecipientID, models.EventNewMessage, models.NewMessagePayload{Message: msg, ConversationID: conv.ID})
	s.emit(models.EventMessageSent, models.NewMessagePayload{Message: msg, ConversationID: conv.ID, ClientRef: ev.ClientRef})
}

func (m *Manager) handleTyping(s *Session, env models.Envelope, out string) {
	var ev models.TypingEvent
	if err := decode(env, &ev); err != nil {
		return
	}
	m.NotifyUser(ev.RecipientID, out, models.TypingPayload{UserID: s.userID, ConversationID: ev.ConversationID})
}

func (m *Manager) handleMarkRead(ctx context.Context, s *Session, env models.Envelope) {
	var ev models.MarkReadEvent
	if err := decode(env, &ev); err != nil {
		m.sendError(s, env.Event, errs.New("invalid mark_read payload", http.StatusBadRequest), "")
		return
	}

	var res *services.ReadResult
	err := m.withStorage(ctx, func(ctx context.Context) error {
		var err error
		res, err = m.chat.MarkRead(ctx, ev.ConversationID, s.userID)
		return err
	})
	if err != nil {
		if errs.StatusOf(err) >= http.StatusInternalServerError {
			log.Printf("mark_read by %s on %s failed: %v", s.userID, ev.ConversationID, err)
		}
		m.sendError(s, env.Event, err, "")
		return
	}

	m.NotifyUser(res.OtherID, models.EventMessagesRead, models.MessagesReadPayload{
		ConversationID: res.ConversationID,
		ReaderID:       res.ReaderID,
		ReadAt:         res.ReadAt,
	})
}

func (m *Manager) handleRelay(s *Session, env models.Envelope, out string) {
	var ev models.RelayEvent
	if err := decode(env, &ev); err != nil || ev.TargetUserID == uuid.Nil {
		m.sendError(s, env.Event, errs.New("targetUserId is required", http.StatusBadRequest), "")
		return
	}
	m.NotifyUser(ev.TargetUserID, out, models.RelayPayload{FromUserID: s.userID, Payload: ev.Payload})
}

// sendError reports err on the originating session only.
func (m *Manager) sendError(s *Session, event string, err error, clientRef string) {
	pub := errs.Public(err, errs.ErrDeliveryFailed)
	s.emit(models.EventError, models.ErrorPayload{
		Event:     event,
		Code:      errs.Code(pub),
		Message:   pub.Message,
		ClientRef: clientRef,
	})
}

// NotifyUser pushes an event to every live connection of userID and returns
// the number of connections it was queued on. Offline users are skipped.
func (m *Manager) NotifyUser(userID uuid.UUID, event string, data interface{}) int {
	env, err := models.NewEnvelope(event, data)
	if err != nil {
		log.Printf("couldn't encode %s event: %v", event, err)
		return 0
	}
	return m.registry.Broadcast(userID, env)
}

func (m *Manager) Online(userID uuid.UUID) bool {
	return m.registry.Online(userID)
}

// OnlineCount returns how many users this process currently sees online.
func (m *Manager) OnlineCount() int {
	return m.registry.OnlineCount()
}

// Close ends every live session and waits for their cleanup. Later
// Serve calls fail with ErrManagerClosed.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()

	for _, s := range live {
		s.Close()
	}
	m.wg.Wait()
}

// withStorage bounds how many storage calls run at once across all sessions.
func (m *Manager) withStorage(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := m.storage.Acquire(ctx, 1); err != nil {
		return err
	}
	defer m.storage.Release(1)
	return fn(ctx)
}

func (m *Manager) pingPeriod() time.Duration {
	period := m.Config.PongWait * 9 / 10
	if period <= 0 {
		period = 54 * time.Second
	}
	return period
}

func decode(env models.Envelope, v interface{}) error {
	if len(env.Data) == 0 {
		return json.Unmarshal([]byte("{}"), v)
	}
	return json.Unmarshal(env.Data, v)
}
