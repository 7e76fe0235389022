package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/chatbridge-backend/internal/platform/apierr"
	"github.com/yungbote/chatbridge-backend/internal/repos"
	"github.com/yungbote/chatbridge-backend/internal/services"
)

type MemoryHandler struct {
	memoryService services.MemoryService
}

func NewMemoryHandler(memoryService services.MemoryService) *MemoryHandler {
	return &MemoryHandler{memoryService: memoryService}
}

func (mh *MemoryHandler) Create(c *gin.Context) {
	userID, ok := principal(c)
	if !ok {
		return
	}
	var input services.MemoryCreateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, http.StatusBadRequest, apierr.CodeInvalidRequest, fmt.Errorf("invalid request body"))
		return
	}
	memory, err := mh.memoryService.Create(c.Request.Context(), userID, input)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondCreated(c, memory)
}

func (mh *MemoryHandler) Get(c *gin.Context) {
	userID, ok := principal(c)
	if !ok {
		return
	}
	memoryID, ok := pathUUID(c, "memory_id")
	if !ok {
		return
	}
	memory, err := mh.memoryService.Get(c.Request.Context(), userID, memoryID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, memory)
}

func (mh *MemoryHandler) List(c *gin.Context) {
	userID, ok := principal(c)
	if !ok {
		return
	}
	filter := repos.MemoryFilter{Kind: c.Query("kind")}
	if raw := c.Query("chat_id"); raw != "" {
		chatID, err := uuid.Parse(raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, apierr.CodeInvalidRequest, fmt.Errorf("invalid chat_id"))
			return
		}
		filter.ChatID = &chatID
	}
	memories, err := mh.memoryService.List(c.Request.Context(), userID, filter, queryInt(c, "limit", 50), queryInt(c, "offset", 0))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"memories": memories})
}

func (mh *MemoryHandler) Update(c *gin.Context) {
	userID, ok := principal(c)
	if !ok {
		return
	}
	memoryID, ok := pathUUID(c, "memory_id")
	if !ok {
		return
	}
	var input services.MemoryUpdateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, http.StatusBadRequest, apierr.CodeInvalidRequest, fmt.Errorf("invalid request body"))
		return
	}
	memory, err := mh.memoryService.Update(c.Request.Context(), userID, memoryID, input)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, memory)
}

func (mh *MemoryHandler) Delete(c *gin.Context) {
	userID, ok := principal(c)
	if !ok {
		return
	}
	memoryID, ok := pathUUID(c, "memory_id")
	if !ok {
		return
	}
	if err := mh.memoryService.Delete(c.Request.Context(), userID, memoryID); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"message": "memory deleted"})
}

func (mh *MemoryHandler) Search(c *gin.Context) {
	userID, ok := principal(c)
	if !ok {
		return
	}
	var req struct {
		Query    string     `json:"query"`
		Kind     string     `json:"kind"`
		ChatID   *uuid.UUID `json:"chat_id"`
		Limit    int        `json:"limit"`
		MinScore float64    `json:"min_score"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, apierr.CodeInvalidRequest, fmt.Errorf("invalid request body"))
		return
	}
	hits, err := mh.memoryService.Search(c.Request.Context(), userID, req.Query, repos.MemoryFilter{Kind: req.Kind, ChatID: req.ChatID}, req.Limit, req.MinScore)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"results": hits})
}
