package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatledger/chatledger-go/internal/middleware"
	"github.com/chatledger/chatledger-go/internal/model"
	"github.com/chatledger/chatledger-go/internal/repository"
	"github.com/chatledger/chatledger-go/internal/service"
)

const testSecret = "test-secret"

type fixedRetriever struct{ context string }

func (r fixedRetriever) RelevantContext(_ context.Context, _ string, _ int) (string, error) {
	return r.context, nil
}

type fixedLLM struct{ answer string }

func (l fixedLLM) GetContext(_ context.Context, history []model.MessageData, _ int) ([]model.MessageData, error) {
	return history, nil
}

func (l fixedLLM) GetAnswer(_ context.Context, _ []model.MessageData) (model.MessageData, error) {
	return model.MessageData{Role: model.RoleAssistant, Content: l.answer}, nil
}

// newTestRouter wires the full API surface over the in-memory store,
// mirroring cmd/api.
func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	store := repository.NewMemoryStore()

	authService := service.NewAuthService(store, testSecret, time.Hour, 24*time.Hour)
	ledgerService := service.NewLedgerService(store)
	chatService := service.NewChatService(store, store,
		fixedRetriever{context: "doc1\ndoc2"}, fixedLLM{answer: "model reply"}, 5, 5000, 10)

	authHandler := NewAuthHandler(authService)
	ledgerHandler := NewLedgerHandler(ledgerService)
	chatHandler := NewChatHandler(chatService)

	r := chi.NewRouter()
	r.Post("/api/v1/users", authHandler.HandleRegister)
	r.Post("/api/v1/users/login", authHandler.HandleLogin)
	r.Post("/api/v1/users/refresh", authHandler.HandleRefresh)

	r.Group(func(r chi.Router) {
		r.Use(middleware.JWTAuth(testSecret))
		r.Get("/api/v1/users/me", authHandler.HandleMe)
		r.Delete("/api/v1/users", authHandler.HandleDeleteUser)
		r.Post("/api/v1/users/pay", ledgerHandler.HandlePay)
		r.Get("/api/v1/users/balance", ledgerHandler.HandleBalance)
		r.Get("/api/v1/users/transactions", ledgerHandler.HandleTransactions)
		r.Get("/api/v1/chats", chatHandler.HandleListChats)
		r.Post("/api/v1/chats", chatHandler.HandleCreateChat)
		r.Get("/api/v1/chats/{chat_id}", chatHandler.HandleListMessages)
		r.Delete("/api/v1/chats/{chat_id}", chatHandler.HandleDeleteChat)
		r.Post("/api/v1/chats/chat/{chat_id}", chatHandler.HandleConverse)
	})

	return r
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func registerAndLogin(t *testing.T, router http.Handler, email, password string) model.TokenPairResponse {
	t.Helper()

	creds := model.CredentialsRequest{Email: email, Password: password}
	rec := doJSON(t, router, http.MethodPost, "/api/v1/users", "", creds)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/users/login", "", creds)
	require.Equal(t, http.StatusOK, rec.Code)

	var pair model.TokenPairResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	return pair
}

func TestEndToEnd_OnlyRAGConversation(t *testing.T) {
	router := newTestRouter(t)
	pair := registerAndLogin(t, router, "a@x.com", "p")
	token := pair.AccessToken

	rec := doJSON(t, router, http.MethodPost, "/api/v1/users/pay", token, model.PayRequest{Amount: 100})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/users/balance", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var balance model.BalanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &balance))
	assert.Equal(t, 100.0, balance.Balance)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/chats", token, model.CreateChatRequest{Type: model.ChatOnlyRAG})
	require.Equal(t, http.StatusCreated, rec.Code)
	var chat model.Chat
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chat))

	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/v1/chats/chat/%d", chat.ID), token,
		model.ConverseRequest{Message: "hello"})
	require.Equal(t, http.StatusOK, rec.Code)
	var reply model.ConverseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, "doc1\ndoc2", reply.Content)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/users/balance", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &balance))
	assert.Equal(t, 90.0, balance.Balance)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/users/transactions", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var transactions []model.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &transactions))
	require.Len(t, transactions, 2)
	assert.Equal(t, model.TransactionIncome, transactions[0].TransactionType)
	assert.Equal(t, model.TransactionExpense, transactions[1].TransactionType)
}

func TestEndToEnd_InsufficientFunds(t *testing.T) {
	router := newTestRouter(t)
	pair := registerAndLogin(t, router, "a@x.com", "p")
	token := pair.AccessToken

	rec := doJSON(t, router, http.MethodPost, "/api/v1/users/pay", token, model.PayRequest{Amount: 5})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/chats", token, model.CreateChatRequest{Type: model.ChatOnlyRAG})
	require.Equal(t, http.StatusCreated, rec.Code)
	var chat model.Chat
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chat))

	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/v1/chats/chat/%d", chat.ID), token,
		model.ConverseRequest{Message: "hello"})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	// Nothing persisted: no message, no expense transaction.
	rec = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/v1/chats/%d", chat.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var messages []model.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &messages))
	assert.Empty(t, messages)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/users/transactions", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var transactions []model.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &transactions))
	assert.Len(t, transactions, 1)
}

func TestEndToEnd_WithLLMConversation(t *testing.T) {
	router := newTestRouter(t)
	pair := registerAndLogin(t, router, "a@x.com", "p")
	token := pair.AccessToken

	rec := doJSON(t, router, http.MethodPost, "/api/v1/users/pay", token, model.PayRequest{Amount: 50})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/chats", token, model.CreateChatRequest{Type: model.ChatWithLLM})
	require.Equal(t, http.StatusCreated, rec.Code)
	var chat model.Chat
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chat))

	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/v1/chats/chat/%d", chat.ID), token,
		model.ConverseRequest{Message: "hello"})
	require.Equal(t, http.StatusOK, rec.Code)
	var reply model.ConverseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, "model reply", reply.Content)
}

func TestEndToEnd_EmptyMessageRejected(t *testing.T) {
	router := newTestRouter(t)
	pair := registerAndLogin(t, router, "a@x.com", "p")
	token := pair.AccessToken

	rec := doJSON(t, router, http.MethodPost, "/api/v1/users/pay", token, model.PayRequest{Amount: 100})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/chats", token, model.CreateChatRequest{Type: model.ChatOnlyRAG})
	require.Equal(t, http.StatusCreated, rec.Code)
	var chat model.Chat
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chat))

	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/v1/chats/chat/%d", chat.ID), token,
		model.ConverseRequest{Message: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshTokenRejectedAsAccessToken(t *testing.T) {
	router := newTestRouter(t)
	pair := registerAndLogin(t, router, "a@x.com", "p")

	rec := doJSON(t, router, http.MethodGet, "/api/v1/users/balance", pair.RefreshToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshEndpointMintsAccessToken(t *testing.T) {
	router := newTestRouter(t)
	pair := registerAndLogin(t, router, "a@x.com", "p")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/users/refresh", pair.RefreshToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp model.AccessTokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)

	// The minted token works where an access token is required.
	rec = doJSON(t, router, http.MethodGet, "/api/v1/users/me", resp.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// An access token is not accepted by the refresh endpoint.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/users/refresh", pair.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginSetsHTTPOnlyCookie(t *testing.T) {
	router := newTestRouter(t)
	creds := model.CredentialsRequest{Email: "a@x.com", Password: "p"}

	rec := doJSON(t, router, http.MethodPost, "/api/v1/users", "", creds)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/users/login", "", creds)
	require.Equal(t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "jwt_token", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
}

func TestOwnershipMappedTo403And404(t *testing.T) {
	router := newTestRouter(t)
	owner := registerAndLogin(t, router, "a@x.com", "p")
	intruder := registerAndLogin(t, router, "b@x.com", "p")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/chats", owner.AccessToken, model.CreateChatRequest{Type: model.ChatOnlyRAG})
	require.Equal(t, http.StatusCreated, rec.Code)
	var chat model.Chat
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chat))

	rec = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/v1/chats/%d", chat.ID), intruder.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, fmt.Sprintf("/api/v1/chats/%d", chat.ID), intruder.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/chats/999", intruder.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	router := newTestRouter(t)
	creds := model.CredentialsRequest{Email: "a@x.com", Password: "p"}

	rec := doJSON(t, router, http.MethodPost, "/api/v1/users", "", creds)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/users", "", creds)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPayRejectsNonPositiveAmount(t *testing.T) {
	router := newTestRouter(t)
	pair := registerAndLogin(t, router, "a@x.com", "p")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/users/pay", pair.AccessToken, model.PayRequest{Amount: -10})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/users/balance", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/chats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDeleteUserCascades(t *testing.T) {
	router := newTestRouter(t)
	pair := registerAndLogin(t, router, "a@x.com", "p")
	token := pair.AccessToken

	rec := doJSON(t, router, http.MethodDelete, "/api/v1/users", token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// The token still verifies but the user row is gone.
	rec = doJSON(t, router, http.MethodGet, "/api/v1/users/me", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
