package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourbook-chat/internal/dto"
	"tourbook-chat/internal/pkg/logger"
	"tourbook-chat/internal/pkg/serverutils"
	"tourbook-chat/internal/repository/memory"
	"tourbook-chat/internal/service"
	"tourbook-chat/pkg/llm"
	"tourbook-chat/pkg/supportchat"
	"tourbook-chat/pkg/supportchat/api"
)

const secret = "controller-secret"

type cannedLLM struct{}

func (cannedLLM) Chat(context.Context, []llm.Message, ...llm.Option) (string, error) {
	return "The Danube cruise has seats left.", nil
}

type fixture struct {
	app      *fiber.App
	user     uuid.UUID
	userTok  string
	operator string
}

func newFixture(t *testing.T, provider llm.LLMProvider) *fixture {
	t.Helper()
	svc := service.NewSupportChatService(
		memory.NewRepositoryFactory(memory.NewDatabase()),
		nil,
		provider,
		nil,
		logger.NewNopLogger(),
		service.SupportChatOptions{},
	)

	app := fiber.New()
	app.Use(serverutils.ErrorHandlerMiddleware(ClassifySupportChatError))
	router := app.Group("/api")
	NewSupportChatController(svc, secret, nil).RegisterRoutes(router)
	NewOperatorController(svc, secret).RegisterRoutes(router)

	user := uuid.New()
	return &fixture{
		app:      app,
		user:     user,
		userTok:  token(t, user, ""),
		operator: token(t, uuid.New(), serverutils.RoleOperator),
	}
}

func token(t *testing.T, user uuid.UUID, role string) string {
	t.Helper()
	claims := jwt.MapClaims{"user_id": user.String(), "exp": time.Now().Add(time.Hour).Unix()}
	if role != "" {
		claims["role"] = role
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func (f *fixture) do(t *testing.T, method, path, tok string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := f.app.Test(req)
	require.NoError(t, err)
	return resp
}

// serve runs the app on a loopback port so the real client can talk to it.
func (f *fixture) serve(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = f.app.Listener(ln) }()
	t.Cleanup(func() { _ = f.app.Shutdown() })
	return "http://" + ln.Addr().String()
}

func TestClientContract_SupportLifecycle(t *testing.T) {
	f := newFixture(t, cannedLLM{})
	client := api.NewClient(f.serve(t), api.StaticToken(f.userTok), 5*time.Second)
	ctx := context.Background()

	info, err := client.SessionStatus(ctx)
	require.NoError(t, err)
	assert.Nil(t, info)

	res, err := client.Send(ctx, supportchat.ModeSupport, "Is the Danube cruise full?")
	require.NoError(t, err)
	require.NotNil(t, res.Message)
	_, confirmed := res.Message.Confirmed()
	assert.True(t, confirmed)

	info, err = client.SessionStatus(ctx)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, supportchat.SessionActive, info.Status)

	path := "/api/support/v1/operator/users/" + f.user.String()
	resp := f.do(t, http.MethodPost, path+"/messages", f.operator, dto.OperatorReplyRequest{Text: "Two seats left."})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	history, err := client.History(ctx, supportchat.ModeSupport)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[1].AuthoredBySupport)

	resp = f.do(t, http.MethodPost, path+"/session/close", f.operator, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, err = client.Send(ctx, supportchat.ModeSupport, "hello?")
	var rejected *api.WriteRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, supportchat.SessionClosed, rejected.Status)
	assert.Equal(t, "This conversation was closed by support", rejected.Error())

	require.NoError(t, client.StartSession(ctx))
	history, err = client.History(ctx, supportchat.ModeSupport)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestClientContract_AIMode(t *testing.T) {
	f := newFixture(t, cannedLLM{})
	client := api.NewClient(f.serve(t), api.StaticToken(f.userTok), 5*time.Second)
	ctx := context.Background()

	res, err := client.Send(ctx, supportchat.ModeAI, "Any seats on the cruise?")
	require.NoError(t, err)
	assert.Nil(t, res.Message)
	require.Len(t, res.Messages, 2)
	assert.True(t, res.Messages[1].AuthoredByAI)

	require.NoError(t, client.ClearHistory(ctx, supportchat.ModeAI))
	history, err := client.History(ctx, supportchat.ModeAI)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestClientContract_Unauthorized(t *testing.T) {
	f := newFixture(t, nil)
	client := api.NewClient(f.serve(t), api.StaticToken("not-a-jwt"), 5*time.Second)

	_, err := client.History(context.Background(), supportchat.ModeSupport)
	assert.ErrorIs(t, err, api.ErrUnauthorized)
}

func TestSend_AIDisabledIs503(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.do(t, http.MethodPost, "/api/support/v1/messages", f.userTok, supportchat.SendRequest{Mode: supportchat.ModeAI, Text: "hi"})

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRequestValidation(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"history without mode", http.MethodGet, "/api/support/v1/messages", nil, http.StatusBadRequest},
		{"history unknown mode", http.MethodGet, "/api/support/v1/messages?mode=email", nil, http.StatusBadRequest},
		{"send unknown mode", http.MethodPost, "/api/support/v1/messages", map[string]string{"mode": "email", "text": "x"}, http.StatusBadRequest},
		{"send blank text", http.MethodPost, "/api/support/v1/messages", map[string]string{"mode": "support", "text": "   "}, http.StatusBadRequest},
		{"clear support history", http.MethodDelete, "/api/support/v1/messages?mode=support", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, tt.method, tt.path, f.userTok, tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestSend_RateLimitedPerUser(t *testing.T) {
	svc := service.NewSupportChatService(
		memory.NewRepositoryFactory(memory.NewDatabase()),
		nil,
		nil,
		nil,
		logger.NewNopLogger(),
		service.SupportChatOptions{},
	)
	app := fiber.New()
	app.Use(serverutils.ErrorHandlerMiddleware(ClassifySupportChatError))
	NewSupportChatController(svc, secret, serverutils.NewUserRateLimiter(0.001, 2, time.Minute)).RegisterRoutes(app.Group("/api"))
	f := &fixture{app: app, userTok: token(t, uuid.New(), "")}
	other := token(t, uuid.New(), "")

	body := supportchat.SendRequest{Mode: supportchat.ModeSupport, Text: "Any seats left?"}
	for i := 0; i < 2; i++ {
		resp := f.do(t, http.MethodPost, "/api/support/v1/messages", f.userTok, body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp := f.do(t, http.MethodPost, "/api/support/v1/messages", f.userTok, body)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// buckets are per user
	resp = f.do(t, http.MethodPost, "/api/support/v1/messages", other, body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// reads are not throttled
	resp = f.do(t, http.MethodGet, "/api/support/v1/messages?mode=support", f.userTok, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
