package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/chatbridge-backend/internal/platform/apierr"
	"github.com/yungbote/chatbridge-backend/internal/requestdata"
	"github.com/yungbote/chatbridge-backend/internal/services"
)

type ChatHandler struct {
	chatService services.ChatService
}

func NewChatHandler(chatService services.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// principal pulls the authenticated user out of the request context.
func principal(c *gin.Context) (uuid.UUID, bool) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, apierr.CodeUnauthorized, fmt.Errorf("not authenticated"))
		return uuid.Nil, false
	}
	return rd.UserID, true
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		RespondError(c, http.StatusBadRequest, apierr.CodeInvalidRequest, fmt.Errorf("invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func (ch *ChatHandler) Create(c *gin.Context) {
	userID, ok := principal(c)
	if !ok {
		return
	}
	var input services.ChatCreateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, http.StatusBadRequest, apierr.CodeInvalidRequest, fmt.Errorf("invalid request body"))
		return
	}
	chat, err := ch.chatService.Create(c.Request.Context(), userID, input)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondCreated(c, chat)
}

func (ch *ChatHandler) Get(c *gin.Context) {
	userID, ok := principal(c)
	if !ok {
		return
	}
	chatID, ok := pathUUID(c, "chat_id")
	if !ok {
		return
	}
	chat, err := ch.chatService.Get(c.Request.Context(), userID, chatID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, chat)
}

func (ch *ChatHandler) List(c *gin.Context) {
	userID, ok := principal(c)
	if !ok {
		return
	}
	includeArchived := c.Query("include_archived") == "true"
	chats, err := ch.chatService.List(c.Request.Context(), userID, includeArchived, queryInt(c, "limit", 50), queryInt(c, "offset", 0))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"chats": chats})
}

func (ch *ChatHandler) Update(c *gin.Context) {
	userID, ok := principal(c)
	if !ok {
		return
	}
	chatID, ok := pathUUID(c, "chat_id")
	if !ok {
		return
	}
	var input services.ChatUpdateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, http.StatusBadRequest, apierr.CodeInvalidRequest, fmt.Errorf("invalid request body"))
		return
	}
	chat, err := ch.chatService.Update(c.Request.Context(), userID, chatID, input)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, chat)
}

func (ch *ChatHandler) Delete(c *gin.Context) {
	userID, ok := principal(c)
	if !ok {
		return
	}
	chatID, ok := pathUUID(c, "chat_id")
	if !ok {
		return
	}
	if err := ch.chatService.Delete(c.Request.Context(), userID, chatID); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"message": "chat deleted"})
}

func (ch *ChatHandler) Messages(c *gin.Context) {
	userID, ok := principal(c)
	if !ok {
		return
	}
	chatID, ok := pathUUID(c, "chat_id")
	if !ok {
		return
	}
	messages, err := ch.chatService.Messages(c.Request.Context(), userID, chatID, queryInt(c, "limit", 100), queryInt(c, "offset", 0))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"messages": messages})
}

func (ch *ChatHandler) GenerateTitle(c *gin.Context) {
	userID, ok := principal(c)
	if !ok {
		return
	}
	chatID, ok := pathUUID(c, "chat_id")
	if !ok {
		return
	}
	title, err := ch.chatService.GenerateTitle(c.Request.Context(), userID, chatID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"title": title})
}
