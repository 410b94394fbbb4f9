package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/aware88/fresh-ai-crm-sub016/interfaces"
	"github.com/aware88/fresh-ai-crm-sub016/internal/tracing"
	"github.com/aware88/fresh-ai-crm-sub016/internal/utils"
)

// StartSync starts sync sessions for every active account of the caller.
// One failing account yields an error entry in the result list and never
// blocks its siblings.
func StartSync(syncService interfaces.SyncService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		span, ctx := opentracing.StartSpanFromContext(ctx, "StartSync")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		userId := utils.GetUserIdFromContext(ctx)
		if userId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user id header is required"})
			return
		}
		tenant := utils.GetTenantFromContext(ctx)

		results := syncService.StartAllForUser(ctx, tenant, userId)
		c.JSON(http.StatusOK, gin.H{"accounts": results})
	}
}

// StopSync stops every live session belonging to the caller.
func StopSync(syncService interfaces.SyncService, accountRepository interfaces.AccountRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		span, ctx := opentracing.StartSpanFromContext(ctx, "StopSync")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		userId := utils.GetUserIdFromContext(ctx)
		if userId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user id header is required"})
			return
		}
		tenant := utils.GetTenantFromContext(ctx)

		accounts, err := accountRepository.ListActiveForUser(ctx, tenant, userId)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list accounts"})
			return
		}

		stopped := make([]string, 0, len(accounts))
		for _, account := range accounts {
			if err := syncService.StopSession(ctx, account.ID); err != nil {
				tracing.TraceErr(span, err)
				continue
			}
			stopped = append(stopped, account.ID)
		}
		c.JSON(http.StatusOK, gin.H{"stopped": stopped})
	}
}
