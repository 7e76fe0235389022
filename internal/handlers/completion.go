package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/chatbridge-backend/internal/platform/ai"
	"github.com/yungbote/chatbridge-backend/internal/platform/apierr"
	"github.com/yungbote/chatbridge-backend/internal/platform/logger"
	"github.com/yungbote/chatbridge-backend/internal/services"
)

type CompletionHandler struct {
	log         *logger.Logger
	chatService services.ChatService
}

func NewCompletionHandler(baseLog *logger.Logger, chatService services.ChatService) *CompletionHandler {
	return &CompletionHandler{
		log:         baseLog.With("handler", "CompletionHandler"),
		chatService: chatService,
	}
}

// Complete serves POST /chat/completions in both modes. Non-streaming
// requests get a single JSON result; streaming requests get SSE frames
// ending with a done or error event.
func (h *CompletionHandler) Complete(c *gin.Context) {
	userID, ok := principal(c)
	if !ok {
		return
	}
	var input services.CompletionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, http.StatusBadRequest, apierr.CodeInvalidRequest, fmt.Errorf("invalid request body"))
		return
	}

	if !input.Stream {
		completion, err := h.chatService.Complete(c.Request.Context(), userID, input)
		if err != nil {
			RespondServiceError(c, err)
			return
		}
		RespondOK(c, completion)
		return
	}

	events, err := h.chatService.CompleteStream(c.Request.Context(), userID, input)
	if err != nil {
		RespondServiceError(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			raw, err := json.Marshal(ev)
			if err != nil {
				h.log.Error("stream event marshal failed", "error", err.Error())
				return
			}
			fmt.Fprintf(c.Writer, "data: %s\n\n", raw)
			c.Writer.Flush()
			if ev.Type == ai.EventDone || ev.Type == ai.EventError {
				return
			}
		}
	}
}
