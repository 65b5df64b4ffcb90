package server

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	errs "github.com/techagentng/collera/errors"
	"github.com/techagentng/collera/models"
	"github.com/techagentng/collera/realtime"
	"github.com/techagentng/collera/server/response"
)

func (s *Server) handleGetConversations() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			respondAndAbort(c, "", http.StatusUnauthorized, nil, errs.ErrUnauthorized)
			return
		}

		conversations, err := s.ChatService.ListConversations(c.Request.Context(), userID)
		if err != nil {
			respondWithError(c, "failed to fetch conversations", err)
			return
		}
		response.JSON(c, "conversations retrieved successfully", http.StatusOK, conversations, nil)
	}
}

func (s *Server) handleGetMessages() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			respondAndAbort(c, "", http.StatusUnauthorized, nil, errs.ErrUnauthorized)
			return
		}
		conversationID, err := uuid.Parse(c.Param("conversationId"))
		if err != nil {
			response.JSON(c, "invalid conversation id", http.StatusBadRequest, nil, errs.ErrBadRequest)
			return
		}

		page := queryInt(c, "page", 1)
		limit := queryInt(c, "limit", s.Config.HistoryPageSize)

		result, err := s.ChatService.GetMessages(c.Request.Context(), conversationID, userID, page, limit)
		if err != nil {
			respondWithError(c, "failed to fetch messages", err)
			return
		}
		response.JSON(c, "messages retrieved successfully", http.StatusOK, result, nil)
	}
}

func (s *Server) handleSendMessage() gin.HandlerFunc {
	return func(c *gin.Context) {
		senderID, ok := currentUserID(c)
		if !ok {
			respondAndAbort(c, "", http.StatusUnauthorized, nil, errs.ErrUnauthorized)
			return
		}
		recipientID, err := uuid.Parse(c.Param("userId"))
		if err != nil {
			response.JSON(c, "invalid user id", http.StatusBadRequest, nil, errs.ErrBadRequest)
			return
		}

		var req models.SendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.JSON(c, "invalid request body", http.StatusBadRequest, nil, err)
			return
		}

		msg, conv, err := s.ChatService.SendMessage(c.Request.Context(), senderID, recipientID, nil, &req)
		if err != nil {
			respondWithError(c, "failed to send message", err)
			return
		}

		s.Realtime.NotifyUser(recipientID, models.EventNewMessage, models.NewMessagePayload{Message: msg, ConversationID: conv.ID})
		response.JSON(c, "message sent successfully", http.StatusCreated, models.SendMessageResponse{Message: msg, ConversationID: conv.ID}, nil)
	}
}

func (s *Server) handleOpenConversation() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			respondAndAbort(c, "", http.StatusUnauthorized, nil, errs.ErrUnauthorized)
			return
		}
		otherID, err := uuid.Parse(c.Param("userId"))
		if err != nil {
			response.JSON(c, "invalid user id", http.StatusBadRequest, nil, errs.ErrBadRequest)
			return
		}

		opened, err := s.ChatService.OpenConversation(c.Request.Context(), userID, otherID)
		if err != nil {
			respondWithError(c, "failed to open conversation", err)
			return
		}
		opened.Participant.IsOnline = opened.Participant.IsOnline || s.Realtime.Online(otherID)
		response.JSON(c, "conversation retrieved successfully", http.StatusOK, opened, nil)
	}
}

func (s *Server) handleGetUnreadCount() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			respondAndAbort(c, "", http.StatusUnauthorized, nil, errs.ErrUnauthorized)
			return
		}

		count, err := s.ChatService.UnreadCount(c.Request.Context(), userID)
		if err != nil {
			respondWithError(c, "failed to fetch unread count", err)
			return
		}
		response.JSON(c, "unread count retrieved successfully", http.StatusOK, models.UnreadCountResponse{UnreadCount: count}, nil)
	}
}

func (s *Server) handleMarkRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			respondAndAbort(c, "", http.StatusUnauthorized, nil, errs.ErrUnauthorized)
			return
		}
		conversationID, err := uuid.Parse(c.Param("conversationId"))
		if err != nil {
			response.JSON(c, "invalid conversation id", http.StatusBadRequest, nil, errs.ErrBadRequest)
			return
		}

		res, err := s.ChatService.MarkRead(c.Request.Context(), conversationID, userID)
		if err != nil {
			respondWithError(c, "failed to mark messages as read", err)
			return
		}

		s.Realtime.NotifyUser(res.OtherID, models.EventMessagesRead, models.MessagesReadPayload{
			ConversationID: res.ConversationID,
			ReaderID:       res.ReaderID,
			ReadAt:         res.ReadAt,
		})
		response.JSON(c, "messages marked as read", http.StatusOK, gin.H{"marked": res.Marked}, nil)
	}
}

func (s *Server) handleDeleteMessage() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			respondAndAbort(c, "", http.StatusUnauthorized, nil, errs.ErrUnauthorized)
			return
		}
		messageID, err := uuid.Parse(c.Param("messageId"))
		if err != nil {
			response.JSON(c, "invalid message id", http.StatusBadRequest, nil, errs.ErrBadRequest)
			return
		}

		if err := s.ChatService.SoftDelete(c.Request.Context(), messageID, userID); err != nil {
			respondWithError(c, "failed to delete message", err)
			return
		}
		response.JSON(c, "message deleted successfully", http.StatusOK, nil, nil)
	}
}

// handleGetOnlineCount reports the persisted online count next to what this
// process can see in its own registry.
func (s *Server) handleGetOnlineCount() gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := s.UserRepository.GetOnlineUserCount(c.Request.Context())
		if err != nil {
			log.Printf("Error fetching online user count: %v", err)
			response.JSON(c, "failed to fetch online users", http.StatusInternalServerError, nil, errs.ErrInternalServerError)
			return
		}
		response.JSON(c, "online users retrieved successfully", http.StatusOK, gin.H{
			"online_users": count,
			"connected":    s.Realtime.OnlineCount(),
		}, nil)
	}
}

// handleWebsocket authenticates before upgrading; a bad credential gets a
// plain 401 and never reaches the realtime channel.
func (s *Server) handleWebsocket() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := s.Realtime.Accept(c.Request.Context(), credentialFromRequest(c))
		if err != nil {
			e := errs.Public(err, errs.ErrAuthentication)
			response.JSON(c, "", e.Status, nil, e)
			return
		}

		conn, err := s.Upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade has already written the error response.
			log.Printf("Error upgrading websocket for %s: %v", session.UserID(), err)
			session.Close()
			return
		}

		transport := realtime.NewWebsocketTransport(conn, s.Config.PongWait, s.Config.WriteWait)
		if err := s.Realtime.Serve(c.Request.Context(), session, transport); err != nil {
			log.Printf("Error serving websocket for %s: %v", session.UserID(), err)
		}
	}
}

func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)})
	}
}

// respondWithError maps err to its status; anything unexpected is logged
// and hidden behind a 500.
func respondWithError(c *gin.Context, message string, err error) {
	e := errs.Public(err, errs.ErrInternalServerError)
	if e.Status >= http.StatusInternalServerError {
		log.Printf("%s: %v", message, err)
	}
	response.JSON(c, message, e.Status, nil, e)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v < 1 {
		return fallback
	}
	return v
}
