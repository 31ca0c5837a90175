package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	ErrorCode string      `json:"error_code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

// RespondWithError sends a standardized error response
func RespondWithError(c *gin.Context, statusCode int, errorCode, message string, details interface{}) {
	c.JSON(statusCode, ErrorResponse{
		ErrorCode: errorCode,
		Message:   message,
		Details:   details,
	})
}

// RespondWithBadRequest sends a 400 Bad Request error
func RespondWithBadRequest(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusBadRequest, "bad_request", message, details)
}

// RespondWithUnauthorized sends a 401 Unauthorized error
func RespondWithUnauthorized(c *gin.Context, message string) {
	RespondWithError(c, http.StatusUnauthorized, "unauthorized", message, nil)
}

// RespondWithNotFound sends a 404 Not Found error
func RespondWithNotFound(c *gin.Context, message string) {
	RespondWithError(c, http.StatusNotFound, "not_found", message, nil)
}

// RespondWithInternalError sends a 500 Internal Server Error
func RespondWithInternalError(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusInternalServerError, "internal_error", message, details)
}

// RespondWithExtractionFailed sends a 422 for documents that cannot be parsed
func RespondWithExtractionFailed(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusUnprocessableEntity, "extraction_failed", message, details)
}

// RespondWithLLMUnavailable sends a 502 when the language model cannot be reached
func RespondWithLLMUnavailable(c *gin.Context, details interface{}) {
	RespondWithError(c, http.StatusBadGateway, "llm_unavailable",
		"The language model is temporarily unavailable. Please try again.", details)
}

// RespondWithBriefParseFailed sends a 502 carrying the raw model output so
// the caller can inspect what came back
func RespondWithBriefParseFailed(c *gin.Context, raw string) {
	RespondWithError(c, http.StatusBadGateway, "brief_parse_failed",
		"The model returned a response that could not be parsed as a brief.",
		gin.H{"raw_response": raw})
}
