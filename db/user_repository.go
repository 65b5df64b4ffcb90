package db

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/techagentng/collera/models"
	"gorm.io/gorm"
)

// UserRepository is the chat core's view of the identity store: user lookup,
// the accepted-connection graph and presence columns.
type UserRepository interface {
	FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindUsersByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.User, error)
	AreConnected(ctx context.Context, userID, otherID uuid.UUID) (bool, error)
	ConnectionIDsOf(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	SetPresence(ctx context.Context, userID uuid.UUID, online bool, lastSeen time.Time) error
	GetOnlineUserCount(ctx context.Context) (int64, error)
}

type userRepo struct {
	DB *gorm.DB
}

func NewUserRepo(db *GormDB) UserRepository {
	return &userRepo{db.DB}
}

func (u *userRepo) FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := u.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, errors.Wrapf(err, "find user %s", id)
	}
	return &user, nil
}

func (u *userRepo) FindUsersByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.User, error) {
	found := make(map[uuid.UUID]*models.User, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	var users []models.User
	if err := u.DB.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, errors.Wrap(err, "find users")
	}
	for i := range users {
		found[users[i].ID] = &users[i]
	}
	return found, nil
}

func (u *userRepo) AreConnected(ctx context.Context, userID, otherID uuid.UUID) (bool, error) {
	var count int64
	err := u.DB.WithContext(ctx).Model(&models.UserConnection{}).
		Where("user_id = ? AND connection_id = ?", userID, otherID).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "check connection")
	}
	return count > 0, nil
}

func (u *userRepo) ConnectionIDsOf(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := u.DB.WithContext(ctx).Model(&models.UserConnection{}).
		Where("user_id = ?", userID).
		Pluck("connection_id", &ids).Error
	if err != nil {
		return nil, errors.Wrap(err, "list connections")
	}
	return ids, nil
}

func (u *userRepo) SetPresence(ctx context.Context, userID uuid.UUID, online bool, lastSeen time.Time) error {
	result := u.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		Updates(map[string]interface{}{"is_online": online, "last_seen": lastSeen})
	if result.Error != nil {
		log.Printf("Error updating presence for user %s: %v", userID, result.Error)
		return errors.Wrap(result.Error, "set presence")
	}
	if result.RowsAffected == 0 {
		log.Printf("No rows affected when updating presence for user ID: %s", userID)
		return errors.Wrapf(gorm.ErrRecordNotFound, "set presence for %s", userID)
	}
	return nil
}

func (u *userRepo) GetOnlineUserCount(ctx context.Context) (int64, error) {
	var count int64
	if err := u.DB.WithContext(ctx).Model(&models.User{}).Where("is_online = ?", true).Count(&count).Error; err != nil {
		return 0, errors.Wrap(err, "count online users")
	}
	return count, nil
}
