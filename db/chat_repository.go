package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/techagentng/collera/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const receiptBatchSize = 200

// ChatRepository persists conversations, messages, read receipts and the
// cached per-participant unread counters.
type ChatRepository interface {
	FindConversationByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	FindConversationByPair(ctx context.Context, userA, userB uuid.UUID) (*models.Conversation, error)
	FindOrCreateConversation(ctx context.Context, userA, userB uuid.UUID) (*models.Conversation, bool, error)
	ListConversationsForUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error)
	AppendMessage(ctx context.Context, msg *models.Message) error
	IncrementUnread(ctx context.Context, conversationID, userID uuid.UUID) error
	TouchLastMessage(ctx context.Context, conversationID, messageID uuid.UUID, at time.Time) error
	FindMessageByID(ctx context.Context, id uuid.UUID) (*models.Message, error)
	FindMessagesByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Message, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID, offset, limit int) ([]models.Message, int64, error)
	MarkRead(ctx context.Context, conversationID, readerID uuid.UUID, at time.Time) (int64, error)
	SoftDelete(ctx context.Context, messageID uuid.UUID) error
	TotalUnread(ctx context.Context, userID uuid.UUID) (int64, error)
}

type chatRepo struct {
	DB *gorm.DB
}

func NewChatRepo(db *GormDB) ChatRepository {
	return &chatRepo{db.DB}
}

func (r *chatRepo) FindConversationByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	if err := r.DB.WithContext(ctx).Preload("Unread").Where("id = ?", id).First(&conv).Error; err != nil {
		return nil, errors.Wrapf(err, "find conversation %s", id)
	}
	return &conv, nil
}

func (r *chatRepo) FindConversationByPair(ctx context.Context, userA, userB uuid.UUID) (*models.Conversation, error) {
	a, b := models.SortedPair(userA, userB)

	var conv models.Conversation
	err := r.DB.WithContext(ctx).Preload("Unread").
		Where("participant_a = ? AND participant_b = ?", a, b).
		First(&conv).Error
	if err != nil {
		return nil, errors.Wrap(err, "find conversation by participants")
	}
	return &conv, nil
}

// FindOrCreateConversation returns the conversation for the unordered pair,
// creating it with zeroed counters when absent. A concurrent creator losing
// the race on the pair's unique index falls back to the winner's row.
func (r *chatRepo) FindOrCreateConversation(ctx context.Context, userA, userB uuid.UUID) (*models.Conversation, bool, error) {
	conv, err := r.FindConversationByPair(ctx, userA, userB)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	conv, err = r.createConversation(ctx, userA, userB)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		conv, err = r.FindConversationByPair(ctx, userA, userB)
		return conv, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return conv, true, nil
}

func (r *chatRepo) createConversation(ctx context.Context, userA, userB uuid.UUID) (*models.Conversation, error) {
	a, b := models.SortedPair(userA, userB)
	conv := &models.Conversation{
		ParticipantA:  a,
		ParticipantB:  b,
		LastMessageAt: time.Now(),
	}

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Unread").Create(conv).Error; err != nil {
			return err
		}
		conv.Unread = []models.ConversationUnread{
			{ConversationID: conv.ID, UserID: a},
			{ConversationID: conv.ID, UserID: b},
		}
		return tx.Create(&conv.Unread).Error
	})
	if err != nil {
		return nil, errors.Wrap(err, "create conversation")
	}
	return conv, nil
}

func (r *chatRepo) ListConversationsForUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := r.DB.WithContext(ctx).Preload("Unread").
		Where("participant_a = ? OR participant_b = ?", userID, userID).
		Order("last_message_at DESC").
		Find(&convs).Error
	if err != nil {
		return nil, errors.Wrap(err, "list conversations")
	}
	return convs, nil
}

// AppendMessage stores msg together with the sender's own read receipt.
func (r *chatRepo) AppendMessage(ctx context.Context, msg *models.Message) error {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("ReadBy").Create(msg).Error; err != nil {
			return err
		}
		msg.ReadBy = []models.ReadReceipt{{
			MessageID: msg.ID,
			UserID:    msg.SenderID,
			ReadAt:    msg.CreatedAt,
		}}
		return tx.Create(&msg.ReadBy).Error
	})
	return errors.Wrap(err, "append message")
}

func (r *chatRepo) IncrementUnread(ctx context.Context, conversationID, userID uuid.UUID) error {
	db := r.DB.WithContext(ctx)
	result := db.Model(&models.ConversationUnread{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		UpdateColumn("unread_count", gorm.Expr("unread_count + ?", 1))
	if result.Error != nil {
		return errors.Wrap(result.Error, "increment unread")
	}
	if result.RowsAffected > 0 {
		return nil
	}

	row := models.ConversationUnread{ConversationID: conversationID, UserID: userID, UnreadCount: 1}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "conversation_id"}, {Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"unread_count": gorm.Expr("conversation_unreads.unread_count + 1")}),
	}).Create(&row).Error
	return errors.Wrap(err, "create unread counter")
}

func (r *chatRepo) TouchLastMessage(ctx context.Context, conversationID, messageID uuid.UUID, at time.Time) error {
	err := r.DB.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Updates(map[string]interface{}{"last_message_id": messageID, "last_message_at": at}).Error
	return errors.Wrap(err, "update last message")
}

func (r *chatRepo) FindMessageByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	var msg models.Message
	if err := r.DB.WithContext(ctx).Preload("ReadBy").Where("id = ?", id).First(&msg).Error; err != nil {
		return nil, errors.Wrapf(err, "find message %s", id)
	}
	return &msg, nil
}

func (r *chatRepo) FindMessagesByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Message, error) {
	found := make(map[uuid.UUID]*models.Message, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	var msgs []models.Message
	if err := r.DB.WithContext(ctx).Where("id IN ?", ids).Find(&msgs).Error; err != nil {
		return nil, errors.Wrap(err, "find messages")
	}
	for i := range msgs {
		found[msgs[i].ID] = &msgs[i]
	}
	return found, nil
}

// ListMessages returns one page of visible messages, newest first, and the
// total number of visible messages in the conversation.
func (r *chatRepo) ListMessages(ctx context.Context, conversationID uuid.UUID, offset, limit int) ([]models.Message, int64, error) {
	visible := func() *gorm.DB {
		return r.DB.WithContext(ctx).Model(&models.Message{}).
			Where("conversation_id = ? AND is_deleted = ?", conversationID, false)
	}

	var total int64
	if err := visible().Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count messages")
	}

	var msgs []models.Message
	err := visible().
		Preload("ReadBy", func(db *gorm.DB) *gorm.DB { return db.Order("read_at ASC") }).
		Order("created_at DESC").Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "list messages")
	}
	return msgs, total, nil
}

// MarkRead records a receipt for every visible message in the conversation
// that was sent by someone else and not yet read by readerID, then zeroes the
// reader's counter. It returns the number of receipts written.
func (r *chatRepo) MarkRead(ctx context.Context, conversationID, readerID uuid.UUID, at time.Time) (int64, error) {
	var marked int64
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uuid.UUID
		err := tx.Model(&models.Message{}).
			Where("conversation_id = ? AND sender_id <> ? AND is_deleted = ?", conversationID, readerID, false).
			Where("NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = messages.id AND r.user_id = ?)", readerID).
			Pluck("id", &ids).Error
		if err != nil {
			return err
		}

		if len(ids) > 0 {
			receipts := make([]models.ReadReceipt, 0, len(ids))
			for _, id := range ids {
				receipts = append(receipts, models.ReadReceipt{MessageID: id, UserID: readerID, ReadAt: at})
			}
			result := tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&receipts, receiptBatchSize)
			if result.Error != nil {
				return result.Error
			}
			marked = result.RowsAffected
		}

		return tx.Model(&models.ConversationUnread{}).
			Where("conversation_id = ? AND user_id = ? AND unread_count <> ?", conversationID, readerID, 0).
			UpdateColumn("unread_count", 0).Error
	})
	if err != nil {
		return 0, errors.Wrap(err, "mark read")
	}
	return marked, nil
}

func (r *chatRepo) SoftDelete(ctx context.Context, messageID uuid.UUID) error {
	err := r.DB.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND is_deleted = ?", messageID, false).
		Updates(map[string]interface{}{"is_deleted": true, "content": models.DeletedPlaceholder}).Error
	return errors.Wrap(err, "soft delete message")
}

func (r *chatRepo) TotalUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	var total int64
	err := r.DB.WithContext(ctx).Model(&models.ConversationUnread{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(unread_count), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, errors.Wrap(err, "total unread")
	}
	return total, nil
}
