package errors

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Error is an error that knows the HTTP status it should be reported with.
type Error struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (e *Error) Error() string {
	return e.Message
}

// New creates an *Error.
func New(message string, status int) *Error {
	return &Error{
		Message: message,
		Status:  status,
	}
}

var (
	ErrUnauthorized        = New("unauthorized", http.StatusUnauthorized)
	ErrBadRequest          = New("bad request", http.StatusBadRequest)
	ErrInternalServerError = New("internal server error", http.StatusInternalServerError)

	ErrAuthentication       = New("invalid token, please log in again", http.StatusUnauthorized)
	ErrNotConnection        = New("you can only message your connections", http.StatusForbidden)
	ErrNotMessageSender     = New("you cannot delete this message", http.StatusForbidden)
	ErrUserNotFound         = New("user not found", http.StatusNotFound)
	ErrConversationNotFound = New("conversation not found", http.StatusNotFound)
	ErrMessageNotFound      = New("message not found", http.StatusNotFound)
	ErrEmptyContent         = New("message content is required", http.StatusBadRequest)
	ErrContentTooLong       = New("message content is too long", http.StatusBadRequest)
	ErrSelfMessage          = New("you cannot message yourself", http.StatusBadRequest)
	ErrDeliveryFailed       = New("message could not be delivered", http.StatusInternalServerError)
	ErrUnknownEvent         = New("unknown event", http.StatusBadRequest)
)

// Realtime error codes carried by the "error" event.
const (
	CodeAuthentication = "authentication_failed"
	CodeForbidden      = "forbidden"
	CodeNotFound       = "not_found"
	CodeValidation     = "validation_failed"
	CodeDeliveryFailed = "delivery_failed"
)

// StatusOf returns the HTTP status for err, defaulting to 500.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// Code returns the realtime error code for err.
func Code(err error) string {
	switch StatusOf(err) {
	case http.StatusUnauthorized:
		return CodeAuthentication
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return CodeValidation
	default:
		return CodeDeliveryFailed
	}
}

// Public returns the *Error that may be shown to a client. Anything that is
// not already an *Error is hidden behind fallback.
func Public(err error, fallback *Error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return fallback
}

// ErrorHandler writes err as the JSON body of an aborted request.
func ErrorHandler(c *gin.Context, err error) {
	e := Public(err, ErrInternalServerError)
	c.AbortWithStatusJSON(e.Status, gin.H{
		"errors": e.Message,
		"status": http.StatusText(e.Status),
	})
}
