package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/chatbridge-backend/internal/platform/apierr"
	"github.com/yungbote/chatbridge-backend/internal/services"
)

type DocumentHandler struct {
	documentService services.DocumentService
}

func NewDocumentHandler(documentService services.DocumentService) *DocumentHandler {
	return &DocumentHandler{documentService: documentService}
}

func (dh *DocumentHandler) Ingest(c *gin.Context) {
	userID, ok := principal(c)
	if !ok {
		return
	}
	var input services.DocumentIngestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, http.StatusBadRequest, apierr.CodeInvalidRequest, fmt.Errorf("invalid request body"))
		return
	}
	doc, err := dh.documentService.Ingest(c.Request.Context(), userID, input)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondCreated(c, doc)
}

func (dh *DocumentHandler) Get(c *gin.Context) {
	userID, ok := principal(c)
	if !ok {
		return
	}
	docID, ok := pathUUID(c, "document_id")
	if !ok {
		return
	}
	doc, err := dh.documentService.Get(c.Request.Context(), userID, docID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, doc)
}

func (dh *DocumentHandler) List(c *gin.Context) {
	userID, ok := principal(c)
	if !ok {
		return
	}
	docs, err := dh.documentService.List(c.Request.Context(), userID, queryInt(c, "limit", 50), queryInt(c, "offset", 0))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"documents": docs})
}

func (dh *DocumentHandler) Update(c *gin.Context) {
	userID, ok := principal(c)
	if !ok {
		return
	}
	docID, ok := pathUUID(c, "document_id")
	if !ok {
		return
	}
	var input services.DocumentUpdateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, http.StatusBadRequest, apierr.CodeInvalidRequest, fmt.Errorf("invalid request body"))
		return
	}
	doc, err := dh.documentService.Update(c.Request.Context(), userID, docID, input)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, doc)
}

func (dh *DocumentHandler) Delete(c *gin.Context) {
	userID, ok := principal(c)
	if !ok {
		return
	}
	docID, ok := pathUUID(c, "document_id")
	if !ok {
		return
	}
	if err := dh.documentService.Delete(c.Request.Context(), userID, docID); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"message": "document deleted"})
}

func (dh *DocumentHandler) Search(c *gin.Context) {
	userID, ok := principal(c)
	if !ok {
		return
	}
	var req struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, apierr.CodeInvalidRequest, fmt.Errorf("invalid request body"))
		return
	}
	hits, err := dh.documentService.Search(c.Request.Context(), userID, req.Query, req.Limit)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"results": hits})
}
