package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "github.com/techagentng/collera/errors"
	"github.com/techagentng/collera/models"
)

func TestValidator_SendMessage(t *testing.T) {
	v := NewValidator(10)

	req := &models.SendMessageRequest{Content: "  hello \n"}
	require.NoError(t, v.SendMessage(req))
	assert.Equal(t, "hello", req.Content)
	assert.Equal(t, models.MessageTypeText, req.MessageType)

	assert.ErrorIs(t, v.SendMessage(nil), errs.ErrEmptyContent)
	assert.ErrorIs(t, v.SendMessage(&models.SendMessageRequest{Content: " \t "}), errs.ErrEmptyContent)
	assert.ErrorIs(t, v.SendMessage(&models.SendMessageRequest{Content: strings.Repeat("x", 11)}), errs.ErrContentTooLong)
	assert.NoError(t, v.SendMessage(&models.SendMessageRequest{Content: strings.Repeat("ü", 10)}))

	err := v.SendMessage(&models.SendMessageRequest{Content: "hi", MessageType: "video"})
	require.Error(t, err)
	assert.Equal(t, 400, errs.StatusOf(err))
}

func TestNewValidator_ClampsLimit(t *testing.T) {
	v := NewValidator(0)
	assert.Equal(t, models.MaxContentLength, v.maxLength)
	v = NewValidator(5000)
	assert.Equal(t, models.MaxContentLength, v.maxLength)
}
