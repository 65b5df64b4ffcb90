package services

import (
	"context"
	"errors"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/techagentng/collera/config"
	"github.com/techagentng/collera/db"
	errs "github.com/techagentng/collera/errors"
	"github.com/techagentng/collera/models"
	"gorm.io/gorm"
)

// ConnectionChecker is the part of the identity oracle the chat service needs.
type ConnectionChecker interface {
	IsConnection(ctx context.Context, userID, otherID uuid.UUID) (bool, error)
}

// ChatService holds the conversation and message rules shared by the
// realtime channel and the REST facade.
type ChatService interface {
	FindOrCreateConversation(ctx context.Context, userA, userB uuid.UUID) (*models.Conversation, error)
	OpenConversation(ctx context.Context, userID, otherID uuid.UUID) (*models.OpenConversationResponse, error)
	SendMessage(ctx context.Context, senderID, recipientID uuid.UUID, conversationID *uuid.UUID, req *models.SendMessageRequest) (*models.Message, *models.Conversation, error)
	MarkRead(ctx context.Context, conversationID, readerID uuid.UUID) (*ReadResult, error)
	SoftDelete(ctx context.Context, messageID, userID uuid.UUID) error
	ListConversations(ctx context.Context, userID uuid.UUID) ([]models.ConversationSummary, error)
	GetMessages(ctx context.Context, conversationID, userID uuid.UUID, page, limit int) (*models.MessagePage, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
}

// ReadResult describes a completed mark-read.
type ReadResult struct {
	ConversationID uuid.UUID
	ReaderID       uuid.UUID
	OtherID        uuid.UUID
	ReadAt         time.Time
	Marked         int64
}

type chatService struct {
	Config      *config.Config
	chatRepo    db.ChatRepository
	userRepo    db.UserRepository
	connections ConnectionChecker
	validator   *Validator
	now         func() time.Time
}

func NewChatService(chatRepo db.ChatRepository, userRepo db.UserRepository, connections ConnectionChecker, conf *config.Config) ChatService {
	return &chatService{
		Config:      conf,
		chatRepo:    chatRepo,
		userRepo:    userRepo,
		connections: connections,
		validator:   NewValidator(conf.MaxMessageLength),
		now:         time.Now,
	}
}

func (s *chatService) FindOrCreateConversation(ctx context.Context, userA, userB uuid.UUID) (*models.Conversation, error) {
	conv, created, err := s.chatRepo.FindOrCreateConversation(ctx, userA, userB)
	if err != nil {
		log.Printf("FindOrCreateConversation error for %s/%s: %v", userA, userB, err)
		return nil, errs.ErrInternalServerError
	}
	if created {
		log.Printf("Created conversation %s", conv.ID)
	}
	return conv, nil
}

func (s *chatService) OpenConversation(ctx context.Context, userID, otherID uuid.UUID) (*models.OpenConversationResponse, error) {
	if userID == otherID {
		return nil, errs.ErrSelfMessage
	}
	other, err := s.userRepo.FindUserByID(ctx, otherID)
	if err != nil {
		return nil, s.notFoundOr(err, errs.ErrUserNotFound, "OpenConversation")
	}
	if err := s.requireConnection(ctx, userID, otherID); err != nil {
		return nil, err
	}

	conv, err := s.FindOrCreateConversation(ctx, userID, otherID)
	if err != nil {
		return nil, err
	}
	summary := other.Summary()
	return &models.OpenConversationResponse{ConversationID: conv.ID, Participant: &summary}, nil
}

// SendMessage validates, authorises and persists a message, then applies the
// conversation side effects. The counter and last-message writes are separate
// from the append; a failure there is logged and the message still counts as sent.
func (s *chatService) SendMessage(ctx context.Context, senderID, recipientID uuid.UUID, conversationID *uuid.UUID, req *models.SendMessageRequest) (*models.Message, *models.Conversation, error) {
	if senderID == recipientID {
		return nil, nil, errs.ErrSelfMessage
	}
	if err := s.validator.SendMessage(req); err != nil {
		return nil, nil, err
	}
	if err := s.authoriseSend(ctx, senderID, recipientID); err != nil {
		return nil, nil, err
	}

	conv, err := s.resolveConversation(ctx, senderID, recipientID, conversationID)
	if err != nil {
		return nil, nil, err
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		Content:        req.Content,
		MessageType:    req.MessageType,
	}
	if err := s.chatRepo.AppendMessage(ctx, msg); err != nil {
		log.Printf("SendMessage error saving message from %s: %v", senderID, err)
		return nil, nil, errs.ErrDeliveryFailed
	}

	if err := s.chatRepo.IncrementUnread(ctx, conv.ID, recipientID); err != nil {
		log.Printf("SendMessage error incrementing unread for %s in %s: %v", recipientID, conv.ID, err)
	} else {
		bumpUnread(conv, recipientID)
	}
	if err := s.chatRepo.TouchLastMessage(ctx, conv.ID, msg.ID, msg.CreatedAt); err != nil {
		log.Printf("SendMessage error updating conversation %s: %v", conv.ID, err)
	} else {
		conv.LastMessageID = &msg.ID
		conv.LastMessageAt = msg.CreatedAt
	}

	return msg, conv, nil
}

// authoriseSend reports a missing recipient as not found rather than as an
// absent connection.
func (s *chatService) authoriseSend(ctx context.Context, senderID, recipientID uuid.UUID) error {
	ok, err := s.connections.IsConnection(ctx, senderID, recipientID)
	if err != nil {
		log.Printf("SendMessage error checking connection %s/%s: %v", senderID, recipientID, err)
		return errs.ErrDeliveryFailed
	}
	if ok {
		return nil
	}
	if _, err := s.userRepo.FindUserByID(ctx, recipientID); err != nil {
		return s.notFoundOr(err, errs.ErrUserNotFound, "authoriseSend")
	}
	return errs.ErrNotConnection
}

func (s *chatService) resolveConversation(ctx context.Context, senderID, recipientID uuid.UUID, conversationID *uuid.UUID) (*models.Conversation, error) {
	if conversationID == nil || *conversationID == uuid.Nil {
		return s.FindOrCreateConversation(ctx, senderID, recipientID)
	}

	conv, err := s.chatRepo.FindConversationByID(ctx, *conversationID)
	if err != nil {
		return nil, s.notFoundOr(err, errs.ErrConversationNotFound, "resolveConversation")
	}
	if !conv.HasParticipant(senderID) || !conv.HasParticipant(recipientID) {
		return nil, errs.ErrConversationNotFound
	}
	return conv, nil
}

func (s *chatService) MarkRead(ctx context.Context, conversationID, readerID uuid.UUID) (*ReadResult, error) {
	conv, err := s.conversationFor(ctx, conversationID, readerID)
	if err != nil {
		return nil, err
	}

	at := s.now()
	marked, err := s.chatRepo.MarkRead(ctx, conv.ID, readerID, at)
	if err != nil {
		log.Printf("MarkRead error for %s in %s: %v", readerID, conv.ID, err)
		return nil, errs.ErrInternalServerError
	}
	return &ReadResult{
		ConversationID: conv.ID,
		ReaderID:       readerID,
		OtherID:        conv.OtherParticipant(readerID),
		ReadAt:         at,
		Marked:         marked,
	}, nil
}

func (s *chatService) SoftDelete(ctx context.Context, messageID, userID uuid.UUID) error {
	msg, err := s.chatRepo.FindMessageByID(ctx, messageID)
	if err != nil {
		return s.notFoundOr(err, errs.ErrMessageNotFound, "SoftDelete")
	}
	if msg.SenderID != userID {
		return errs.ErrNotMessageSender
	}
	if msg.IsDeleted {
		return nil
	}
	if err := s.chatRepo.SoftDelete(ctx, messageID); err != nil {
		log.Printf("SoftDelete error for message %s: %v", messageID, err)
		return errs.ErrInternalServerError
	}
	return nil
}

func (s *chatService) ListConversations(ctx context.Context, userID uuid.UUID) ([]models.ConversationSummary, error) {
	convs, err := s.chatRepo.ListConversationsForUser(ctx, userID)
	if err != nil {
		log.Printf("ListConversations error for %s: %v", userID, err)
		return nil, errs.ErrInternalServerError
	}

	otherIDs := make([]uuid.UUID, 0, len(convs))
	lastIDs := make([]uuid.UUID, 0, len(convs))
	for i := range convs {
		otherIDs = append(otherIDs, convs[i].OtherParticipant(userID))
		if convs[i].LastMessageID != nil {
			lastIDs = append(lastIDs, *convs[i].LastMessageID)
		}
	}

	users, err := s.userRepo.FindUsersByIDs(ctx, otherIDs)
	if err != nil {
		log.Printf("ListConversations error loading participants: %v", err)
		return nil, errs.ErrInternalServerError
	}
	lastMessages, err := s.chatRepo.FindMessagesByIDs(ctx, lastIDs)
	if err != nil {
		log.Printf("ListConversations error loading last messages: %v", err)
		return nil, errs.ErrInternalServerError
	}

	summaries := make([]models.ConversationSummary, 0, len(convs))
	for i := range convs {
		conv := &convs[i]
		summary := models.ConversationSummary{
			ID:            conv.ID,
			LastMessageAt: conv.LastMessageAt,
			UnreadCount:   conv.UnreadFor(userID),
		}
		if u, ok := users[conv.OtherParticipant(userID)]; ok {
			p := u.Summary()
			summary.Participant = &p
		}
		if conv.LastMessageID != nil {
			if m, ok := lastMessages[*conv.LastMessageID]; ok {
				summary.LastMessage = m.Summary()
			}
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// GetMessages returns one chronological page of history and, as a side
// effect, marks everything in the conversation read for userID.
func (s *chatService) GetMessages(ctx context.Context, conversationID, userID uuid.UUID, page, limit int) (*models.MessagePage, error) {
	conv, err := s.conversationFor(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = s.Config.HistoryPageSize
	}
	if limit > s.Config.MaxHistoryPageSize {
		limit = s.Config.MaxHistoryPageSize
	}
	// keeps (page-1)*limit from overflowing into a negative offset
	if page > math.MaxInt32/limit {
		page = math.MaxInt32 / limit
	}

	msgs, total, err := s.chatRepo.ListMessages(ctx, conv.ID, (page-1)*limit, limit)
	if err != nil {
		log.Printf("GetMessages error for %s: %v", conv.ID, err)
		return nil, errs.ErrInternalServerError
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	if _, err := s.chatRepo.MarkRead(ctx, conv.ID, userID, s.now()); err != nil {
		log.Printf("GetMessages error marking %s read for %s: %v", conv.ID, userID, err)
		return nil, errs.ErrInternalServerError
	}

	pages := int(total) / limit
	if int(total)%limit != 0 {
		pages++
	}
	return &models.MessagePage{
		Messages: msgs,
		Pagination: models.Pagination{
			Page:  page,
			Limit: limit,
			Total: total,
			Pages: pages,
		},
	}, nil
}

func (s *chatService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	total, err := s.chatRepo.TotalUnread(ctx, userID)
	if err != nil {
		log.Printf("UnreadCount error for %s: %v", userID, err)
		return 0, errs.ErrInternalServerError
	}
	return total, nil
}

// conversationFor loads a conversation userID takes part in. Conversations
// the user is not part of are reported as missing.
func (s *chatService) conversationFor(ctx context.Context, conversationID, userID uuid.UUID) (*models.Conversation, error) {
	conv, err := s.chatRepo.FindConversationByID(ctx, conversationID)
	if err != nil {
		return nil, s.notFoundOr(err, errs.ErrConversationNotFound, "conversationFor")
	}
	if !conv.HasParticipant(userID) {
		return nil, errs.ErrConversationNotFound
	}
	return conv, nil
}

func (s *chatService) requireConnection(ctx context.Context, userID, otherID uuid.UUID) error {
	ok, err := s.connections.IsConnection(ctx, userID, otherID)
	if err != nil {
		log.Printf("IsConnection error for %s/%s: %v", userID, otherID, err)
		return errs.ErrInternalServerError
	}
	if !ok {
		return errs.ErrNotConnection
	}
	return nil
}

func (s *chatService) notFoundOr(err error, notFound *errs.Error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	log.Printf("%s error: %v", op, err)
	return errs.ErrInternalServerError
}

func bumpUnread(conv *models.Conversation, userID uuid.UUID) {
	for i := range conv.Unread {
		if conv.Unread[i].UserID == userID {
			conv.Unread[i].UnreadCount++
			return
		}
	}
	conv.Unread = append(conv.Unread, models.ConversationUnread{ConversationID: conv.ID, UserID: userID, UnreadCount: 1})
}
