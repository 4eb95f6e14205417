package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"shopping-assistant-backend/internal/assistant"
	"shopping-assistant-backend/internal/bootstrap"
	"shopping-assistant-backend/internal/config"
	"shopping-assistant-backend/internal/conversation"
	"shopping-assistant-backend/internal/store"
	"shopping-assistant-backend/internal/types"
	"shopping-assistant-backend/internal/upstream"
	"shopping-assistant-backend/internal/validator"
)

type fakeAssistant struct {
	mu   sync.Mutex
	reqs []types.ChatRequest
	err  error
}

func (f *fakeAssistant) record(req types.ChatRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
}

func (f *fakeAssistant) last() types.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reqs[len(f.reqs)-1]
}

func (f *fakeAssistant) reply(req types.ChatRequest) *types.ChatReply {
	resp := validator.Fallback("test")
	resp.Message = "echo: " + req.Message
	return &types.ChatReply{ConversationID: req.ConversationID, Contract: config.ContractStaged, Response: &resp}
}

func (f *fakeAssistant) Chat(_ context.Context, req types.ChatRequest) (*types.ChatReply, error) {
	f.record(req)
	if f.err != nil {
		return nil, f.err
	}
	return f.reply(req), nil
}

func (f *fakeAssistant) ChatStream(_ context.Context, req types.ChatRequest, emit func(types.StreamEvent)) (*types.ChatReply, error) {
	f.record(req)
	if f.err != nil {
		emit(types.StreamEvent{Type: types.EventError, Message: f.err.Error()})
		return nil, f.err
	}
	emit(types.StreamEvent{Type: types.EventContent, Delta: "Hel"})
	emit(types.StreamEvent{Type: types.EventContent, Delta: "lo"})
	reply := f.reply(req)
	emit(types.StreamEvent{Type: types.EventMetadata, Reply: reply})
	emit(types.StreamEvent{Type: types.EventDone})
	return reply, nil
}

func (f *fakeAssistant) Contract() string { return config.ContractStaged }

type fakeBootstrap struct {
	refetched  int
	refetchErr error
}

func (f *fakeBootstrap) Snapshot() bootstrap.Snapshot {
	return bootstrap.Snapshot{State: bootstrap.StateReady, IsInitialized: true, Categories: []string{"car", "backpack"}, Source: bootstrap.SourceCache}
}

func (f *fakeBootstrap) Refetch(ctx context.Context) bootstrap.Snapshot {
	f.refetched++
	f.refetchErr = ctx.Err()
	snap := f.Snapshot()
	snap.Source = bootstrap.SourceRemote
	return snap
}

type fakeCatalog struct {
	err error
}

func (f *fakeCatalog) ProductsByName(_ context.Context, name string) ([]upstream.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []upstream.Product{{ID: 1, Name: name + " one"}}, nil
}

func (f *fakeCatalog) Product(_ context.Context, id int) (*upstream.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &upstream.Product{ID: id, Name: "Trail"}, nil
}

func (f *fakeCatalog) Options(context.Context, string) ([]string, error) {
	return upstream.CapOptions([]string{"red", "blue", "green", "black", "white"}), nil
}

type pingFunc func(ctx context.Context) error

func (p pingFunc) Ping(ctx context.Context) error { return p(ctx) }

type fixture struct {
	server    *Server
	assistant *fakeAssistant
	boot      *fakeBootstrap
	convs     *store.MemoryConversations
}

func newFixture(t *testing.T, mutate ...func(*Deps)) *fixture {
	t.Helper()
	f := &fixture{
		assistant: &fakeAssistant{},
		boot:      &fakeBootstrap{},
		convs:     store.NewMemoryConversations(0),
	}
	deps := Deps{
		Assistant:     f.assistant,
		Bootstrap:     f.boot,
		Conversations: f.convs,
		Catalog:       &fakeCatalog{},
		Pinger:        pingFunc(func(context.Context) error { return nil }),
		Model:         "gpt-4o-mini",
		Logger:        zaptest.NewLogger(t),
	}
	for _, m := range mutate {
		m(&deps)
	}
	cfg := config.Config{
		Server:   config.ServerConfig{Port: "0", AllowedOrigins: []string{"*"}},
		Upstream: config.UpstreamConfig{Provider: config.ProviderBackend, BaseURL: "http://shop", ChatPath: "/api/chat/anthropic", Streaming: true},
	}
	f.server = NewServer(cfg, deps)
	return f
}

func (f *fixture) do(method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	rec := newFixture(t).do(http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestChatAssignsConversation(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/chat", `{"message":"backpacks"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	id := rec.Header().Get(ConversationHeader)
	require.NotEmpty(t, id)
	reply := decodeJSON[types.ChatReply](t, rec)
	assert.Equal(t, id, reply.ConversationID)
	assert.Equal(t, "echo: backpacks", reply.Message())

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.Equal(t, id, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestChatReusesActiveConversation(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/chat", `{"message":"hi"}`, &http.Cookie{Name: CookieName, Value: "conv-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "conv-1", f.assistant.last().ConversationID)

	rec = f.do(http.MethodPost, "/api/chat", `{"message":"hi","conversationId":"conv-2"}`, &http.Cookie{Name: CookieName, Value: "conv-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "conv-2", f.assistant.last().ConversationID)
}

func TestChatErrors(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/chat", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/chat", `{"message":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"message is required"}`, rec.Body.String())

	f.assistant.err = errors.New("chat turn: HTTP error! status: 503")
	rec = f.do(http.MethodPost, "/api/chat", `{"message":"hi"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "chat turn: HTTP error! status: 503", decodeJSON[types.ErrorResponse](t, rec).Error)

	f.assistant.err = assistant.ErrEmptyMessage
	rec = f.do(http.MethodPost, "/api/chat", `{"message":"hi"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func readEvents(t *testing.T, body string) []types.StreamEvent {
	t.Helper()
	var events []types.StreamEvent
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev types.StreamEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	return events
}

func TestChatStreamRelaysEvents(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/chat/stream", `{"message":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get(ConversationHeader))

	events := readEvents(t, rec.Body.String())
	require.Len(t, events, 4)
	assert.Equal(t, "Hel", events[0].Delta)
	assert.Equal(t, "lo", events[1].Delta)
	assert.Equal(t, types.EventMetadata, events[2].Type)
	require.NotNil(t, events[2].Reply)
	assert.Equal(t, "echo: hi", events[2].Reply.Message())
	assert.Equal(t, types.EventDone, events[3].Type)
}

func TestChatStreamError(t *testing.T) {
	f := newFixture(t)
	f.assistant.err = errors.New("upstream down")
	rec := f.do(http.MethodPost, "/api/chat/stream", `{"message":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	events := readEvents(t, rec.Body.String())
	require.Len(t, events, 1)
	assert.Equal(t, types.EventError, events[0].Type)
	assert.Equal(t, "upstream down", events[0].Message)
}

func TestChatStreamRejectsEmptyMessage(t *testing.T) {
	rec := newFixture(t).do(http.MethodPost, "/api/chat/stream", `{"message":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatWebSocket(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.server.Router())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var connected types.StreamEvent
	require.NoError(t, conn.ReadJSON(&connected))
	assert.Equal(t, types.EventConnected, connected.Type)
	require.NotEmpty(t, connected.ConversationID)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	var bad types.StreamEvent
	require.NoError(t, conn.ReadJSON(&bad))
	assert.Equal(t, types.EventError, bad.Type)

	for _, msg := range []string{"first", "second"} {
		require.NoError(t, conn.WriteJSON(types.ChatRequest{Message: msg}))
		var got []string
		for {
			var ev types.StreamEvent
			require.NoError(t, conn.ReadJSON(&ev))
			got = append(got, ev.Type)
			if ev.Type == types.EventDone {
				break
			}
		}
		assert.Equal(t, []string{"content", "content", "metadata", "done"}, got)
		assert.Equal(t, connected.ConversationID, f.assistant.last().ConversationID)
		assert.Equal(t, msg, f.assistant.last().Message)
	}
}

func TestCheckOrigin(t *testing.T) {
	f := newFixture(t)
	f.server.cfg.Server.AllowedOrigins = []string{"http://shop.example"}

	req := httptest.NewRequest(http.MethodGet, "/api/chat/ws", nil)
	assert.True(t, f.server.checkOrigin(req))
	req.Header.Set("Origin", "http://shop.example")
	assert.True(t, f.server.checkOrigin(req))
	req.Header.Set("Origin", "http://evil.example")
	assert.False(t, f.server.checkOrigin(req))
}

func seedConversation(t *testing.T, convs *store.MemoryConversations, id string, created time.Time) {
	t.Helper()
	c := conversation.New(created)
	c.ID = id
	c.AddUserMessage("show me backpacks", created)
	require.NoError(t, convs.Save(context.Background(), c))
}

func TestConversations(t *testing.T) {
	f := newFixture(t)
	base := time.UnixMilli(1700000000000)
	seedConversation(t, f.convs, "old", base)
	seedConversation(t, f.convs, "new", base.Add(time.Minute))

	rec := f.do(http.MethodGet, "/api/conversations", "", &http.Cookie{Name: CookieName, Value: "old"})
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeJSON[struct {
		Conversations []conversationSummary `json:"conversations"`
		ActiveID      string                `json:"activeId"`
	}](t, rec)
	require.Len(t, list.Conversations, 2)
	assert.Equal(t, "new", list.Conversations[0].ID)
	assert.True(t, list.Conversations[1].Active)
	assert.Equal(t, "old", list.ActiveID)
	assert.Equal(t, 1, list.Conversations[0].MessageCount)

	rec = f.do(http.MethodGet, "/api/conversations/new", "")
	require.Equal(t, http.StatusOK, rec.Code)
	conv := decodeJSON[conversation.Conversation](t, rec)
	assert.Equal(t, "show me backpacks", conv.Title)
	require.Len(t, rec.Result().Cookies(), 1)
	assert.Equal(t, "new", rec.Result().Cookies()[0].Value)

	rec = f.do(http.MethodPatch, "/api/conversations/new/title", `{"title":"  Backpacks "}`)
	require.Equal(t, http.StatusOK, rec.Code)
	got, err := f.convs.Get(context.Background(), "new")
	require.NoError(t, err)
	assert.Equal(t, "Backpacks", got.Title)

	rec = f.do(http.MethodPatch, "/api/conversations/new/title", `{"title":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodDelete, "/api/conversations/old", "", &http.Cookie{Name: CookieName, Value: "old"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, -1, cleared[0].MaxAge)

	for _, path := range []string{"/api/conversations/old"} {
		assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, path, "").Code)
		assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, path, "").Code)
		assert.Equal(t, http.StatusNotFound, f.do(http.MethodPatch, path+"/title", `{"title":"x"}`).Code)
	}
}

func TestCatalogRoutes(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/products?name=backpack", "")
	require.Equal(t, http.StatusOK, rec.Code)
	products := decodeJSON[struct {
		Products []upstream.Product `json:"products"`
		Total    int                `json:"total"`
	}](t, rec)
	require.Len(t, products.Products, 1)
	assert.Equal(t, "backpack one", products.Products[0].Name)
	assert.Equal(t, 1, products.Total)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/products", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/products/abc", "").Code)

	rec = f.do(http.MethodGet, "/api/products/7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 7, decodeJSON[upstream.Product](t, rec).ID)

	rec = f.do(http.MethodGet, "/api/options/color", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"column":"color","options":["red","blue","green","black","More"]}`, rec.Body.String())
}

func TestCatalogFailures(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Catalog = &fakeCatalog{err: errors.New("boom")} })
	assert.Equal(t, http.StatusBadGateway, f.do(http.MethodGet, "/api/products?name=car", "").Code)
	assert.Equal(t, http.StatusBadGateway, f.do(http.MethodGet, "/api/products/1", "").Code)

	f = newFixture(t, func(d *Deps) { d.Catalog = nil })
	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodGet, "/api/products?name=car", "").Code)
}

func TestValidateEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/validate", `not json`)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeJSON[struct {
		Response   validator.ChatResponse     `json:"response"`
		Validation validator.ValidationResult `json:"validation"`
	}](t, rec)
	assert.False(t, out.Validation.IsValid)
	assert.Equal(t, "general", out.Response.ProductName)

	rec = f.do(http.MethodPost, "/api/validate", `{"stage":0,"message":"Hi","summary":"User greeted the shopping assistant warmly","product_name":"general","quick_actions":["A","B","C","D","E","F","G"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	out = decodeJSON[struct {
		Response   validator.ChatResponse     `json:"response"`
		Validation validator.ValidationResult `json:"validation"`
	}](t, rec)
	assert.True(t, out.Validation.IsValid)
	assert.Equal(t, []string{"A", "B", "C", "D"}, out.Response.QuickActions)
}

func TestInitRoutes(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/init", "")
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decodeJSON[bootstrap.Snapshot](t, rec)
	assert.Equal(t, []string{"car", "backpack"}, snap.Categories)
	assert.Equal(t, bootstrap.SourceCache, snap.Source)

	rec = f.do(http.MethodPost, "/api/init/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, bootstrap.SourceRemote, decodeJSON[bootstrap.Snapshot](t, rec).Source)
	assert.Equal(t, 1, f.boot.refetched)
}

func TestInitRefreshOutlivesClient(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/init/refresh", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.boot.refetched)
	assert.NoError(t, f.boot.refetchErr)
}

func TestSettings(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeJSON[settingsResponse](t, rec)
	assert.True(t, got.Upstream.Reachable)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, "/api/chat/anthropic", got.Endpoints["chat"])

	f = newFixture(t, func(d *Deps) {
		d.Pinger = pingFunc(func(context.Context) error { return errors.New("ping upstream: connection refused") })
	})
	got = decodeJSON[settingsResponse](t, f.do(http.MethodGet, "/api/settings", ""))
	assert.False(t, got.Upstream.Reachable)
	assert.Equal(t, "ping upstream: connection refused", got.Upstream.Error)
}
