package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/techagentng/collera/config"
	"github.com/techagentng/collera/db"
	"github.com/techagentng/collera/db/dbtest"
	"github.com/techagentng/collera/models"
	"github.com/techagentng/collera/realtime"
	"github.com/techagentng/collera/services"
	"github.com/techagentng/collera/services/jwt"
)

type envelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  string          `json:"errors"`
	Status  string          `json:"status"`
}

type testServer struct {
	*Server
	router *gin.Engine
	g      *db.GormDB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	g := dbtest.New(t)
	conf := &config.Config{
		Env:                "test",
		JWTSecret:          "server-secret",
		MaxMessageLength:   2000,
		HistoryPageSize:    50,
		MaxHistoryPageSize: 100,
		SendBuffer:         16,
		MaxInflightStorage: 4,
		PongWait:           time.Minute,
		WriteWait:          time.Second,
		ShutdownTimeout:    time.Second,
	}
	userRepo := db.NewUserRepo(g)
	identity := services.NewIdentityService(userRepo, conf)
	chat := services.NewChatService(db.NewChatRepo(g), userRepo, identity, conf)
	manager := realtime.NewManager(identity, chat, realtime.NewRegistry(), conf)
	t.Cleanup(manager.Close)

	s := &Server{
		Config:          conf,
		DB:              g,
		UserRepository:  userRepo,
		IdentityService: identity,
		ChatService:     chat,
		Realtime:        manager,
		Upgrader:        realtime.NewUpgrader("*"),
	}
	return &testServer{Server: s, router: s.setupRouter(), g: g}
}

func (ts *testServer) token(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token, err := jwt.GenerateToken(userID, ts.Config.JWTSecret, time.Hour)
	require.NoError(t, err)
	return token
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestAuthorize(t *testing.T) {
	ts := newTestServer(t)

	w, _ := ts.do(t, http.MethodGet, "/api/chat/unread", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = ts.do(t, http.MethodGet, "/api/chat/unread", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	u := dbtest.CreateUser(t, ts.g, "asha")
	req := httptest.NewRequest(http.MethodGet, "/api/chat/unread?token="+ts.token(t, u.ID), nil)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChatFlow(t *testing.T) {
	ts := newTestServer(t)
	a := dbtest.CreateUser(t, ts.g, "asha")
	b := dbtest.CreateUser(t, ts.g, "bilal")
	c := dbtest.CreateUser(t, ts.g, "chen")
	dbtest.Connect(t, ts.g, a.ID, b.ID)
	tokenA, tokenB := ts.token(t, a.ID), ts.token(t, b.ID)

	w, env := ts.do(t, http.MethodPost, "/api/chat/send/"+b.ID.String(), tokenA, gin.H{"content": " hello bilal "})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var sent models.SendMessageResponse
	require.NoError(t, json.Unmarshal(env.Data, &sent))
	assert.Equal(t, "hello bilal", sent.Message.Content)
	assert.NotEqual(t, uuid.Nil, sent.ConversationID)

	w, _ = ts.do(t, http.MethodPost, "/api/chat/send/"+c.ID.String(), tokenA, gin.H{"content": "hi"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = ts.do(t, http.MethodPost, "/api/chat/send/"+b.ID.String(), tokenA, gin.H{"content": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = ts.do(t, http.MethodPost, "/api/chat/send/not-a-uuid", tokenA, gin.H{"content": "hi"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = ts.do(t, http.MethodGet, "/api/chat/unread", tokenB, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var unread models.UnreadCountResponse
	require.NoError(t, json.Unmarshal(env.Data, &unread))
	assert.EqualValues(t, 1, unread.UnreadCount)

	w, env = ts.do(t, http.MethodGet, "/api/chat/conversations", tokenB, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.ConversationSummary
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, sent.ConversationID, list[0].ID)
	assert.Equal(t, 1, list[0].UnreadCount)
	assert.Equal(t, a.ID, list[0].Participant.ID)

	w, env = ts.do(t, http.MethodGet, "/api/chat/messages/"+sent.ConversationID.String()+"?page=1&limit=10", tokenB, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page models.MessagePage
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Messages, 1)
	assert.Equal(t, 10, page.Pagination.Limit)

	w, env = ts.do(t, http.MethodGet, "/api/chat/unread", tokenB, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &unread))
	assert.Zero(t, unread.UnreadCount)

	w, _ = ts.do(t, http.MethodGet, "/api/chat/messages/"+sent.ConversationID.String(), ts.token(t, c.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = ts.do(t, http.MethodPut, "/api/chat/read/"+sent.ConversationID.String(), tokenB, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = ts.do(t, http.MethodDelete, "/api/chat/message/"+sent.Message.ID.String(), tokenB, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = ts.do(t, http.MethodDelete, "/api/chat/message/"+sent.Message.ID.String(), tokenA, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = ts.do(t, http.MethodDelete, "/api/chat/message/"+sent.Message.ID.String(), tokenA, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = ts.do(t, http.MethodDelete, "/api/chat/message/"+uuid.NewString(), tokenA, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = ts.do(t, http.MethodGet, "/api/chat/messages/"+sent.ConversationID.String(), tokenA, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Empty(t, page.Messages)
}

func TestOpenConversation(t *testing.T) {
	ts := newTestServer(t)
	a := dbtest.CreateUser(t, ts.g, "asha")
	b := dbtest.CreateUser(t, ts.g, "bilal")
	dbtest.Connect(t, ts.g, a.ID, b.ID)

	w, env := ts.do(t, http.MethodGet, "/api/chat/conversation/"+b.ID.String(), ts.token(t, a.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var opened models.OpenConversationResponse
	require.NoError(t, json.Unmarshal(env.Data, &opened))
	assert.Equal(t, b.ID, opened.Participant.ID)

	w, _ = ts.do(t, http.MethodGet, "/api/chat/conversation/"+uuid.NewString(), ts.token(t, a.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func wsURL(srv *httptest.Server, token string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
}

func readEvent(t *testing.T, conn *websocket.Conn, event string) models.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var env models.Envelope
		require.NoError(t, conn.ReadJSON(&env))
		if env.Event == event {
			return env
		}
	}
}

func TestWebsocket_RejectsBadCredentialBeforeUpgrade(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "nope"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, ts.Realtime.OnlineCount())
}

func TestWebsocket_RESTSendReachesSocket(t *testing.T) {
	ts := newTestServer(t)
	a := dbtest.CreateUser(t, ts.g, "asha")
	b := dbtest.CreateUser(t, ts.g, "bilal")
	dbtest.Connect(t, ts.g, a.ID, b.ID)

	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, ts.token(t, a.ID)), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return ts.Realtime.Online(a.ID) }, 2*time.Second, 5*time.Millisecond)

	w, _ := ts.do(t, http.MethodPost, "/api/chat/send/"+a.ID.String(), ts.token(t, b.ID), gin.H{"content": "over rest"})
	require.Equal(t, http.StatusCreated, w.Code)

	var got models.NewMessagePayload
	require.NoError(t, json.Unmarshal(readEvent(t, conn, models.EventNewMessage).Data, &got))
	assert.Equal(t, "over rest", got.Message.Content)

	require.NoError(t, conn.WriteJSON(models.Envelope{Event: models.EventMarkRead, Data: json.RawMessage(`{"conversation_id":"` + got.ConversationID.String() + `"}`)}))
	require.Eventually(t, func() bool {
		n, err := ts.ChatService.UnreadCount(context.Background(), a.ID)
		return err == nil && n == 0
	}, 2*time.Second, 5*time.Millisecond)

	var online map[string]interface{}
	w, env := ts.do(t, http.MethodGet, "/api/chat/online", ts.token(t, b.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &online))
	assert.EqualValues(t, 1, online["connected"])
	assert.EqualValues(t, 1, online["online_users"])
}
