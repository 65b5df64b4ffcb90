// Package dbtest opens throwaway in-memory databases for repository and
// service tests.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/techagentng/collera/db"
	"github.com/techagentng/collera/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// New returns a migrated, isolated in-memory database that is closed when t ends.
func New(t testing.TB) *db.GormDB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	gormDB, err := gorm.Open(sqlite.Open(dsn), db.GormConfig("test"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.Migrate(gormDB); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return &db.GormDB{DB: gormDB}
}

// CreateUser inserts a verified user with the given first name.
func CreateUser(t testing.TB, g *db.GormDB, name string) *models.User {
	t.Helper()

	u := &models.User{
		FirstName:   name,
		LastName:    "Student",
		Email:       fmt.Sprintf("%s-%s@college.edu", name, uuid.NewString()[:8]),
		CollegeName: "IIT Test",
		IsVerified:  true,
	}
	if err := g.DB.Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

// Connect records an accepted connection in both directions.
func Connect(t testing.TB, g *db.GormDB, a, b uuid.UUID) {
	t.Helper()

	rows := []models.UserConnection{
		{UserID: a, ConnectionID: b},
		{UserID: b, ConnectionID: a},
	}
	if err := g.DB.Create(&rows).Error; err != nil {
		t.Fatalf("connect users: %v", err)
	}
}
