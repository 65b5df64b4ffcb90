package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	errs "github.com/techagentng/collera/errors"
	"github.com/techagentng/collera/server/response"
)

// Authorize resolves the bearer credential to a user id and stores it on
// the context as "userID".
func (s *Server) Authorize() gin.HandlerFunc {
	return func(c *gin.Context) {
		accessToken := credentialFromRequest(c)
		if accessToken == "" {
			respondAndAbort(c, "", http.StatusUnauthorized, nil, errs.ErrUnauthorized)
			return
		}

		userID, err := s.IdentityService.Authenticate(c.Request.Context(), accessToken)
		if err != nil {
			e := errs.Public(err, errs.ErrUnauthorized)
			respondAndAbort(c, "", e.Status, nil, e)
			return
		}

		c.Set("userID", userID)
		c.Set("access_token", accessToken)
		c.Next()
	}
}

// respondAndAbort calls response.JSON and aborts the Context
func respondAndAbort(c *gin.Context, message string, status int, data interface{}, e *errs.Error) {
	response.JSON(c, message, status, data, e)
	c.Abort()
}

// getTokenFromHeader returns the token string in the authorization header
func getTokenFromHeader(c *gin.Context) string {
	authHeader := c.Request.Header.Get("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}

// credentialFromRequest checks the Authorization header, then the token
// query parameter, then the token cookie.
func credentialFromRequest(c *gin.Context) string {
	if token := getTokenFromHeader(c); token != "" {
		return token
	}
	if token := c.Query("token"); token != "" {
		return token
	}
	if token, err := c.Cookie("token"); err == nil {
		return token
	}
	return ""
}

func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get("userID")
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
