package routes

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"tracebrief/internal/ai"
	"tracebrief/internal/auth"
	"tracebrief/internal/config"
	"tracebrief/internal/logger"
	"tracebrief/internal/queue"
	"tracebrief/middleware"
	"tracebrief/models"
	"tracebrief/services"
	"tracebrief/utils"

	"github.com/redis/go-redis/v9"
)

type URLIngestRequest struct {
	URL string `json:"url" binding:"required,url"`
}

func SetupDocumentRoutes(
	router *gin.Engine,
	cfg *config.Config,
	docSvc *services.DocumentService,
	briefSvc *services.BriefService,
	queueClient *asynq.Client,
	sessionMW *middleware.SessionMiddleware,
	rdb *redis.Client,
) {
	// Upload endpoints mint the session; everything else requires it.
	router.POST("/api/documents", func(c *gin.Context) {
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			utils.RespondWithBadRequest(c, "A PDF file is required under the 'file' field", gin.H{"error": err.Error()})
			return
		}
		defer file.Close()

		sessionID := resolveUploadSession(c, rdb)
		doc, err := docSvc.IngestPDF(c.Request.Context(), file, header, sessionID)
		if err != nil {
			respondIngestError(c, err)
			return
		}

		// Re-uploaded duplicates belong to an existing session
		sessionID = doc.SessionID

		token, err := auth.IssueSessionToken(sessionID, time.Duration(cfg.SessionTTL)*time.Hour, rdb)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to create session", gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"document":      doc,
			"session_token": token.Token,
			"expires_at":    token.ExpiresAt,
		})
	})

	router.POST("/api/documents/url", func(c *gin.Context) {
		var req URLIngestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "A valid 'url' field is required", gin.H{"error": err.Error()})
			return
		}

		sessionID := resolveUploadSession(c, rdb)
		doc, err := docSvc.IngestURL(c.Request.Context(), req.URL, sessionID)
		if err != nil {
			respondIngestError(c, err)
			return
		}
		sessionID = doc.SessionID

		token, err := auth.IssueSessionToken(sessionID, time.Duration(cfg.SessionTTL)*time.Hour, rdb)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to create session", gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"document":      doc,
			"session_token": token.Token,
			"expires_at":    token.ExpiresAt,
		})
	})

	docs := router.Group("/api/documents")
	docs.Use(sessionMW.RequireSession())

	docs.GET("/:id", func(c *gin.Context) {
		doc, ok := loadDocument(c, docSvc)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, doc)
	})

	docs.GET("/:id/source/:beacon", func(c *gin.Context) {
		doc, ok := loadDocument(c, docSvc)
		if !ok {
			return
		}

		beacon := c.Param("beacon")
		index := services.NewBeaconIndex(doc.Paragraphs)
		p, found := index.Lookup(beacon)
		if !found {
			utils.RespondWithError(c, http.StatusNotFound, "beacon_not_found",
				fmt.Sprintf("No paragraph carries beacon %q in this document", beacon), nil)
			return
		}

		c.JSON(http.StatusOK, models.SourceLookupResult{
			Beacon: p.Beacon,
			Page:   p.Page,
			Index:  p.Index,
			Text:   p.Text,
		})
	})

	docs.POST("/:id/brief", func(c *gin.Context) {
		doc, ok := loadDocument(c, docSvc)
		if !ok {
			return
		}
		force := c.Query("force") == "1"

		if c.Query("async") == "1" {
			task, err := queue.NewGenerateBriefTask(doc.ID.Hex(), doc.SessionID, force)
			if err != nil {
				utils.RespondWithInternalError(c, "Failed to build task", gin.H{"error": err.Error()})
				return
			}
			info, err := queueClient.Enqueue(task)
			if err != nil {
				utils.RespondWithInternalError(c, "Failed to enqueue brief generation", gin.H{"error": err.Error()})
				return
			}
			if err := docSvc.SetBriefStatus(c.Request.Context(), doc.ID, models.BriefStatusQueued, ""); err != nil {
				logger.Warn("Failed to mark brief queued", "document_id", doc.ID.Hex(), "error", err)
			}

			c.JSON(http.StatusAccepted, gin.H{
				"brief_status": models.BriefStatusQueued,
				"task_id":      info.ID,
			})
			return
		}

		brief, cached, err := briefSvc.GenerateAndStore(c.Request.Context(), doc, force)
		if err != nil {
			respondBriefError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"brief":   brief,
			"cached":  cached,
			"metrics": services.ComputeMetrics(doc, brief),
		})
	})

	docs.GET("/:id/brief", func(c *gin.Context) {
		doc, ok := loadDocument(c, docSvc)
		if !ok {
			return
		}

		brief, err := briefSvc.Latest(c.Request.Context(), doc.ID)
		if err == mongo.ErrNoDocuments {
			utils.RespondWithError(c, http.StatusNotFound, "brief_not_generated",
				"No brief has been generated for this document yet", gin.H{"brief_status": doc.BriefStatus})
			return
		}
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to load brief", gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"brief":   brief,
			"metrics": services.ComputeMetrics(doc, brief),
		})
	})

	docs.GET("/:id/brief/export", func(c *gin.Context) {
		doc, ok := loadDocument(c, docSvc)
		if !ok {
			return
		}

		brief, err := briefSvc.Latest(c.Request.Context(), doc.ID)
		if err == mongo.ErrNoDocuments {
			utils.RespondWithError(c, http.StatusNotFound, "brief_not_generated",
				"Generate a brief before exporting it", nil)
			return
		}
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to load brief", gin.H{"error": err.Error()})
			return
		}

		buf, err := services.BuildBriefWorkbook(doc, brief, services.ComputeMetrics(doc, brief))
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to build workbook", gin.H{"error": err.Error()})
			return
		}

		name := strings.TrimSuffix(doc.OriginalName, ".pdf")
		if name == "" {
			name = "brief"
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+"_brief.xlsx"))
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
	})

	docs.GET("/:id/metrics", func(c *gin.Context) {
		doc, ok := loadDocument(c, docSvc)
		if !ok {
			return
		}

		brief, err := briefSvc.Latest(c.Request.Context(), doc.ID)
		if err == mongo.ErrNoDocuments {
			utils.RespondWithError(c, http.StatusNotFound, "brief_not_generated",
				"Metrics require a generated brief", nil)
			return
		}
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to load brief", gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, services.ComputeMetrics(doc, brief))
	})

	docs.GET("/:id/dashboard", func(c *gin.Context) {
		doc, ok := loadDocument(c, docSvc)
		if !ok {
			return
		}

		payload := gin.H{
			"document": doc,
		}

		brief, err := briefSvc.Latest(c.Request.Context(), doc.ID)
		if err == nil {
			metrics := services.ComputeMetrics(doc, brief)

			riskBreakdown := map[string]int{}
			var flagged []models.Claim
			for _, claim := range brief.Claims() {
				riskBreakdown[string(claim.Category)]++
				if claim.Unverifiable {
					flagged = append(flagged, claim)
				}
			}

			payload["brief"] = brief
			payload["metrics"] = metrics
			payload["risk_breakdown"] = riskBreakdown
			payload["unverifiable_claims"] = flagged
		} else if err != mongo.ErrNoDocuments {
			utils.RespondWithInternalError(c, "Failed to load brief", gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, payload)
	})
}

// resolveUploadSession reuses the caller's session when a valid token comes
// with the upload, so re-uploads deduplicate; otherwise a fresh session
// starts.
func resolveUploadSession(c *gin.Context, rdb *redis.Client) string {
	if tok := utils.ExtractTokenFromHeader(c.GetHeader("Authorization")); tok != "" {
		if claims, err := auth.ValidateSessionToken(tok, rdb); err == nil {
			return claims.SessionID
		}
	}
	return uuid.NewString()
}

// loadDocument resolves :id within the caller's session, writing the error
// response itself when the document cannot be served.
func loadDocument(c *gin.Context, docSvc *services.DocumentService) (*models.Document, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.RespondWithBadRequest(c, "Invalid document id", gin.H{"id": c.Param("id")})
		return nil, false
	}

	doc, err := docSvc.Get(c.Request.Context(), id, middleware.GetSessionID(c))
	if err == mongo.ErrNoDocuments {
		utils.RespondWithNotFound(c, "Document not found in this session")
		return nil, false
	}
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to load document", gin.H{"error": err.Error()})
		return nil, false
	}
	return doc, true
}

func respondIngestError(c *gin.Context, err error) {
	var extractErr *services.ExtractionError
	if errors.As(err, &extractErr) {
		utils.RespondWithExtractionFailed(c, "The document could not be processed", gin.H{"reason": extractErr.Reason})
		return
	}
	utils.RespondWithInternalError(c, "Ingestion failed", gin.H{"error": err.Error()})
}

func respondBriefError(c *gin.Context, err error) {
	var malformed *services.MalformedResponseError
	if errors.As(err, &malformed) {
		utils.RespondWithBriefParseFailed(c, malformed.Raw)
		return
	}
	if errors.Is(err, ai.ErrUnavailable) {
		utils.RespondWithLLMUnavailable(c, gin.H{"error": err.Error()})
		return
	}
	utils.RespondWithInternalError(c, "Brief generation failed", gin.H{"error": err.Error()})
}
