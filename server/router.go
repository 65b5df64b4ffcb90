package server

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	errs "github.com/techagentng/collera/errors"
)

func (s *Server) setupRouter() *gin.Engine {
	ginMode := os.Getenv("GIN_MODE")
	if ginMode == "test" || s.Config.Env == "test" {
		r := gin.New()
		s.defineRoutes(r)
		return r
	}

	r := gin.New()

	// LoggerWithFormatter middleware will write the logs to gin.DefaultWriter
	// By default gin.DefaultWriter = os.Stdout
	r.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.Printf("panic recovered: %v", recovered)
		errs.ErrorHandler(c, errs.ErrInternalServerError)
	}))
	r.Use(cors.New(s.corsConfig()))
	s.defineRoutes(r)

	return r
}

func (s *Server) corsConfig() cors.Config {
	conf := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	origin := s.Config.AccessControlAllowOrigin
	if origin == "" || origin == "*" {
		// credentials cannot be combined with a wildcard origin
		conf.AllowOriginFunc = func(string) bool { return true }
	} else {
		conf.AllowOrigins = []string{origin}
	}
	return conf
}

func (s *Server) defineRoutes(router *gin.Engine) {
	router.GET("/health", s.handleHealth())
	router.GET("/ws", s.handleWebsocket())

	chat := router.Group("/api/chat")
	chat.Use(s.Authorize())
	chat.GET("/conversations", s.handleGetConversations())
	chat.GET("/messages/:conversationId", s.handleGetMessages())
	chat.POST("/send/:userId", s.handleSendMessage())
	chat.GET("/conversation/:userId", s.handleOpenConversation())
	chat.GET("/unread", s.handleGetUnreadCount())
	chat.PUT("/read/:conversationId", s.handleMarkRead())
	chat.DELETE("/message/:messageId", s.handleDeleteMessage())
	chat.GET("/online", s.handleGetOnlineCount())
}
