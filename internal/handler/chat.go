package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/chatledger/chatledger-go/internal/middleware"
	"github.com/chatledger/chatledger-go/internal/model"
	"github.com/chatledger/chatledger-go/internal/rag"
	"github.com/chatledger/chatledger-go/internal/service"
)

// ChatHandler handles HTTP requests for chats, messages, and conversation.
type ChatHandler struct {
	service *service.ChatService
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(svc *service.ChatService) *ChatHandler {
	return &ChatHandler{service: svc}
}

// HandleListChats handles GET /api/v1/chats requests.
func (h *ChatHandler) HandleListChats(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse("unauthorized"))
		return
	}

	chats, err := h.service.ListChats(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
		return
	}
	if chats == nil {
		chats = []model.Chat{}
	}

	writeJSON(w, http.StatusOK, chats)
}

// HandleCreateChat handles POST /api/v1/chats requests.
func (h *ChatHandler) HandleCreateChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse("unauthorized"))
		return
	}

	var req model.CreateChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	chat, err := h.service.CreateChat(r.Context(), userID, req.Type)
	if err != nil {
		if errors.Is(err, service.ErrInvalidChatType) {
			writeJSON(w, http.StatusBadRequest, errorResponse(err.Error()))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
		return
	}

	writeJSON(w, http.StatusCreated, chat)
}

// HandleListMessages handles GET /api/v1/chats/{chat_id} requests.
func (h *ChatHandler) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse("unauthorized"))
		return
	}

	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}

	messages, err := h.service.Messages(r.Context(), chatID, userID)
	if err != nil {
		writeChatError(w, err)
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}

	writeJSON(w, http.StatusOK, messages)
}

// HandleDeleteChat handles DELETE /api/v1/chats/{chat_id} requests.
func (h *ChatHandler) HandleDeleteChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse("unauthorized"))
		return
	}

	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteChat(r.Context(), chatID, userID); err != nil {
		writeChatError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleConverse handles POST /api/v1/chats/chat/{chat_id} requests:
// one balance-gated conversation turn.
func (h *ChatHandler) HandleConverse(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse("unauthorized"))
		return
	}

	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}

	var req model.ConverseRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	content, err := h.service.Converse(r.Context(), chatID, userID, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyMessage):
			writeJSON(w, http.StatusBadRequest, errorResponse(err.Error()))
		case errors.Is(err, service.ErrInsufficientFunds):
			writeJSON(w, http.StatusPaymentRequired, errorResponse(err.Error()))
		case errors.Is(err, rag.ErrUpstream):
			writeJSON(w, http.StatusBadGateway, errorResponse(err.Error()))
		default:
			writeChatError(w, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, model.ConverseResponse{Content: content})
}

func chatIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	chatID, err := strconv.ParseInt(chi.URLParam(r, "chat_id"), 10, 64)
	if err != nil || chatID <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid chat id"))
		return 0, false
	}
	return chatID, true
}

// writeChatError maps chat error kinds to statuses. Absence and wrong
// ownership stay distinct: 404 versus 403.
func writeChatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrChatNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotChatOwner):
		writeJSON(w, http.StatusForbidden, errorResponse(err.Error()))
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
	}
}
