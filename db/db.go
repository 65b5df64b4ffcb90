package db

import (
	"fmt"
	"log"

	"github.com/techagentng/collera/config"
	"github.com/techagentng/collera/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type GormDB struct {
	DB *gorm.DB
}

func GetDB(c *config.Config) *GormDB {
	gormDB := &GormDB{}
	gormDB.Init(c)
	return gormDB
}

func (g *GormDB) Init(c *config.Config) {
	g.DB = getPostgresDB(c)

	if err := Migrate(g.DB); err != nil {
		log.Fatalf("unable to run migrations: %v", err)
	}
}

func getPostgresDB(c *config.Config) *gorm.DB {
	log.Printf("Connecting to postgres: host=%s db=%s port=%d", c.PostgresHost, c.PostgresDB, c.PostgresPort)
	postgresDSN := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d TimeZone=UTC",
		c.PostgresHost, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresPort)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		DSN: postgresDSN,
	}), GormConfig(c.Env))
	if err != nil {
		log.Fatal(err)
	}

	return gormDB
}

// GormConfig is shared by every dialect so that unique violations surface as
// gorm.ErrDuplicatedKey.
func GormConfig(env string) *gorm.Config {
	gormConfig := &gorm.Config{TranslateError: true}
	if env != "prod" && env != "test" {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	} else {
		gormConfig.Logger = logger.Default.LogMode(logger.Silent)
	}
	return gormConfig
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.UserConnection{},
		&models.Conversation{},
		&models.ConversationUnread{},
		&models.Message{},
		&models.ReadReceipt{},
	)
}
