package errors

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusForbidden, StatusOf(ErrNotConnection))
	assert.Equal(t, http.StatusNotFound, StatusOf(fmt.Errorf("lookup: %w", ErrConversationNotFound)))
	assert.Equal(t, http.StatusNotFound, StatusOf(pkgerrors.Wrap(gorm.ErrRecordNotFound, "find")))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("boom")))
}

func TestCode(t *testing.T) {
	tests := map[string]error{
		CodeAuthentication: ErrAuthentication,
		CodeForbidden:      ErrNotMessageSender,
		CodeNotFound:       ErrMessageNotFound,
		CodeValidation:     ErrContentTooLong,
		CodeDeliveryFailed: errors.New("connection refused"),
	}
	for want, err := range tests {
		assert.Equal(t, want, Code(err), err.Error())
	}
}

func TestPublic(t *testing.T) {
	assert.Same(t, ErrEmptyContent, Public(fmt.Errorf("send: %w", ErrEmptyContent), ErrDeliveryFailed))
	assert.Same(t, ErrDeliveryFailed, Public(errors.New("pq: connection reset"), ErrDeliveryFailed))
}

func TestErrorHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	ErrorHandler(c, errors.New("leaked detail"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "leaked detail")
	assert.True(t, c.IsAborted())
}
