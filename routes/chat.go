package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tracebrief/internal/ai"
	"tracebrief/middleware"
	"tracebrief/models"
	"tracebrief/services"
	"tracebrief/utils"
)

func SetupChatRoutes(
	router *gin.Engine,
	docSvc *services.DocumentService,
	qaSvc *services.QAService,
	sessionMW *middleware.SessionMiddleware,
) {
	chat := router.Group("/api/documents")
	chat.Use(sessionMW.RequireSession())

	chat.POST("/:id/chat", func(c *gin.Context) {
		var req models.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "A non-empty 'question' is required (max 2000 chars)", gin.H{"error": err.Error()})
			return
		}

		doc, ok := loadDocument(c, docSvc)
		if !ok {
			return
		}

		resp, err := qaSvc.Answer(c.Request.Context(), doc, &req)
		if err != nil {
			if errors.Is(err, ai.ErrUnavailable) {
				utils.RespondWithLLMUnavailable(c, gin.H{"error": err.Error()})
				return
			}
			utils.RespondWithInternalError(c, "Failed to answer question", gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, resp)
	})

	chat.GET("/:id/conversations", func(c *gin.Context) {
		doc, ok := loadDocument(c, docSvc)
		if !ok {
			return
		}

		ids, err := qaSvc.Conversations(c.Request.Context(), doc.SessionID, doc.ID)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list conversations", gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"conversations": ids,
			"total":         len(ids),
		})
	})

	chat.GET("/:id/conversations/:conversation_id", func(c *gin.Context) {
		doc, ok := loadDocument(c, docSvc)
		if !ok {
			return
		}

		history, err := qaSvc.History(c.Request.Context(), doc.SessionID, c.Param("conversation_id"))
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to load conversation", gin.H{"error": err.Error()})
			return
		}
		if len(history.Messages) == 0 {
			utils.RespondWithNotFound(c, "Conversation not found")
			return
		}

		c.JSON(http.StatusOK, history)
	})
}
