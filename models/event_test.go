package models

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keysOf(t *testing.T, v interface{}) map[string]json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	var keys map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &keys))
	return keys
}

func TestJSONKeysAreSnakeCase(t *testing.T) {
	convID := uuid.New()
	msg := &Message{ID: uuid.New(), ConversationID: convID, SenderID: uuid.New()}

	tests := map[string]struct {
		value interface{}
		keys  []string
	}{
		"new message":   {NewMessagePayload{Message: msg, ConversationID: convID, ClientRef: "r1"}, []string{"message", "conversation_id", "client_ref"}},
		"send response": {SendMessageResponse{Message: msg, ConversationID: convID}, []string{"message", "conversation_id"}},
		"messages read": {MessagesReadPayload{ConversationID: convID}, []string{"conversation_id", "reader_id", "read_at"}},
		"summary":       {ConversationSummary{ID: convID}, []string{"id", "participant", "last_message", "unread_count"}},
		"last message":  {msg.Summary(), []string{"id", "content", "sender_id", "created_at"}},
		"message":       {msg, []string{"id", "conversation_id", "sender_id"}},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			keys := keysOf(t, tt.value)
			for _, k := range tt.keys {
				assert.Contains(t, keys, k)
			}
			assert.NotContains(t, keys, "_id")
			assert.NotContains(t, keys, "conversationId")
		})
	}
}

func TestSendMessageEventDecodes(t *testing.T) {
	recipient, conv := uuid.New(), uuid.New()
	raw := `{"recipient_id":"` + recipient.String() + `","content":"hi","conversation_id":"` + conv.String() + `","client_ref":"r9"}`

	var ev SendMessageEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &ev))
	assert.Equal(t, recipient, ev.RecipientID)
	require.NotNil(t, ev.ConversationID)
	assert.Equal(t, conv, *ev.ConversationID)
	assert.Equal(t, "r9", ev.ClientRef)
}
