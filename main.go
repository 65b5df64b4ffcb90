package main

import (
	"log"

	"github.com/techagentng/collera/config"
	"github.com/techagentng/collera/db"
	"github.com/techagentng/collera/realtime"
	"github.com/techagentng/collera/server"
	"github.com/techagentng/collera/services"
)

func main() {
	conf, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	gormDB := db.GetDB(conf)
	userRepo := db.NewUserRepo(gormDB)
	chatRepo := db.NewChatRepo(gormDB)

	identityService := services.NewIdentityService(userRepo, conf)
	chatService := services.NewChatService(chatRepo, userRepo, identityService, conf)
	manager := realtime.NewManager(identityService, chatService, realtime.NewRegistry(), conf)

	s := &server.Server{
		Config:          conf,
		DB:              gormDB,
		UserRepository:  userRepo,
		IdentityService: identityService,
		ChatService:     chatService,
		Realtime:        manager,
		Upgrader:        realtime.NewUpgrader(conf.AccessControlAllowOrigin),
	}
	s.Start()
}
