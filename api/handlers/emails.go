package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/aware88/fresh-ai-crm-sub016/interfaces"
	mailsync_errors "github.com/aware88/fresh-ai-crm-sub016/internal/errors"
	"github.com/aware88/fresh-ai-crm-sub016/internal/tracing"
	"github.com/aware88/fresh-ai-crm-sub016/internal/utils"
)

type markReadRequest struct {
	Read *bool `json:"read" binding:"required"`
}

type analysisResponse struct {
	EmailID    string         `json:"emailId"`
	Analysis   map[string]any `json:"analysis"`
	Draft      map[string]any `json:"draft"`
	ComputedAt time.Time      `json:"computedAt"`
	ExpiresAt  time.Time      `json:"expiresAt"`
}

// MarkRead sets the local read flag on one email. The mutation never reaches
// the remote provider.
func MarkRead(readStatusService interfaces.ReadStatusService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		span, ctx := opentracing.StartSpanFromContext(ctx, "MarkRead")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		messageId := c.Param("id")
		tracing.TagEntity(span, messageId)

		var request markReadRequest
		if err := c.ShouldBindJSON(&request); err != nil || request.Read == nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "read flag is required"})
			return
		}

		userId := utils.GetUserIdFromContext(ctx)
		err := readStatusService.SetReadStatus(ctx, userId, messageId, *request.Read)
		if err != nil {
			tracing.TraceErr(span, err)
			switch {
			case errors.Is(err, mailsync_errors.ErrUserIDMissing), errors.Is(err, mailsync_errors.ErrValidation):
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			case errors.Is(err, mailsync_errors.ErrAccessDenied):
				c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
			case errors.Is(err, mailsync_errors.ErrNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "email not found"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update read status"})
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{"messageId": messageId, "read": *request.Read})
	}
}

// GetAnalysis serves the cached AI analysis for an email, computing it on a
// cache miss. Concurrent requests for the same email share one computation.
func GetAnalysis(analysisCache interfaces.AnalysisCache, analysisService interfaces.AnalysisService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		span, ctx := opentracing.StartSpanFromContext(ctx, "GetAnalysis")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		emailId := c.Param("id")
		tracing.TagEntity(span, emailId)

		entry, err := analysisCache.GetOrCompute(ctx, emailId, func(ctx context.Context) (*interfaces.AnalysisResult, error) {
			return analysisService.AnalyzeEmail(ctx, emailId)
		})
		if err != nil {
			tracing.TraceErr(span, err)
			switch {
			case errors.Is(err, mailsync_errors.ErrNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "email not found"})
			case errors.Is(err, mailsync_errors.ErrComputeFailure):
				c.JSON(http.StatusBadGateway, gin.H{"error": "analysis service unavailable"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get analysis"})
			}
			return
		}

		c.JSON(http.StatusOK, analysisResponse{
			EmailID:    entry.EmailID,
			Analysis:   entry.AnalysisResult,
			Draft:      entry.DraftResult,
			ComputedAt: entry.ComputedAt,
			ExpiresAt:  entry.ExpiresAt,
		})
	}
}
