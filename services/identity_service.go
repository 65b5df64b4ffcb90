package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/techagentng/collera/config"
	"github.com/techagentng/collera/db"
	errs "github.com/techagentng/collera/errors"
	"github.com/techagentng/collera/services/jwt"
	"gorm.io/gorm"
)

// IdentityService answers who a credential belongs to and who may message whom.
// The user records and the connection graph are owned by the account service;
// the chat core only reads them and updates presence.
type IdentityService interface {
	Authenticate(ctx context.Context, credential string) (uuid.UUID, error)
	IsConnection(ctx context.Context, userID, otherID uuid.UUID) (bool, error)
	EstablishedConnectionsOf(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	SetPresence(ctx context.Context, userID uuid.UUID, online bool, lastSeen time.Time) error
}

type identityService struct {
	Config   *config.Config
	userRepo db.UserRepository
}

func NewIdentityService(userRepo db.UserRepository, conf *config.Config) IdentityService {
	return &identityService{
		Config:   conf,
		userRepo: userRepo,
	}
}

func (s *identityService) Authenticate(ctx context.Context, credential string) (uuid.UUID, error) {
	if credential == "" {
		return uuid.Nil, errs.ErrAuthentication
	}

	claims, err := jwt.ValidateAndGetClaims(credential, s.Config.JWTSecret)
	if err != nil {
		return uuid.Nil, errs.ErrAuthentication
	}
	userID, err := jwt.UserIDFromClaims(claims)
	if err != nil {
		return uuid.Nil, errs.ErrAuthentication
	}

	user, err := s.userRepo.FindUserByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("Authenticate error loading user %s: %v", userID, err)
		}
		return uuid.Nil, errs.ErrAuthentication
	}
	if !user.IsVerified {
		return uuid.Nil, errs.New("please verify your email first", errs.ErrAuthentication.Status)
	}
	return user.ID, nil
}

func (s *identityService) IsConnection(ctx context.Context, userID, otherID uuid.UUID) (bool, error) {
	if userID == otherID {
		return false, nil
	}
	return s.userRepo.AreConnected(ctx, userID, otherID)
}

func (s *identityService) EstablishedConnectionsOf(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	return s.userRepo.ConnectionIDsOf(ctx, userID)
}

func (s *identityService) SetPresence(ctx context.Context, userID uuid.UUID, online bool, lastSeen time.Time) error {
	return s.userRepo.SetPresence(ctx, userID, online, lastSeen)
}
