package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/aware88/fresh-ai-crm-sub016/interfaces"
	"github.com/aware88/fresh-ai-crm-sub016/internal/enum"
	"github.com/aware88/fresh-ai-crm-sub016/internal/logger"
	"github.com/aware88/fresh-ai-crm-sub016/internal/tracing"
)

// graphNotification is the Microsoft Graph change notification envelope.
type graphNotification struct {
	Value []graphNotificationItem `json:"value"`
}

type graphNotificationItem struct {
	SubscriptionID string `json:"subscriptionId"`
	ClientState    string `json:"clientState"`
	Resource       string `json:"resource"`
	ChangeType     string `json:"changeType"`
}

// pubSubPush is the Google Pub/Sub push envelope delivering Gmail
// notifications.
type pubSubPush struct {
	Message struct {
		Data      string `json:"data"`
		MessageID string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type gmailNotificationData struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// ProviderWebhook receives provider push notifications and turns them into
// coalesced sync triggers. The payload itself is only a hint; the actual
// changes are fetched through the normal cursor pass.
func ProviderWebhook(
	syncService interfaces.SyncService,
	webhookSubRepository interfaces.WebhookSubscriptionRepository,
	accountRepository interfaces.AccountRepository,
	log logger.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		span, ctx := opentracing.StartSpanFromContext(ctx, "ProviderWebhook")
		defer span.Finish()
		tracing.TagComponentRest(span)

		provider := enum.GetEmailProvider(c.Param("provider"))
		span.SetTag("provider", provider.String())

		switch provider {
		case enum.EmailProviderOutlook:
			handleGraphNotification(c, ctx, syncService, webhookSubRepository, log)
		case enum.EmailProviderGmail:
			handleGmailNotification(c, ctx, syncService, webhookSubRepository, accountRepository, log)
		default:
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
		}
	}
}

func handleGraphNotification(
	c *gin.Context,
	ctx context.Context,
	syncService interfaces.SyncService,
	webhookSubRepository interfaces.WebhookSubscriptionRepository,
	log logger.Logger,
) {
	// Subscription handshake: Graph expects the token echoed back as plain text
	if token := c.Query("validationToken"); token != "" {
		c.String(http.StatusOK, token)
		return
	}

	var notification graphNotification
	if err := c.ShouldBindJSON(&notification); err != nil || len(notification.Value) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification payload"})
		return
	}

	for _, item := range notification.Value {
		sub, err := webhookSubRepository.GetByChannelID(ctx, item.SubscriptionID)
		if err != nil {
			log.Warnf("Webhook subscription lookup failed for channel %s: %v", item.SubscriptionID, err)
			continue
		}
		if sub == nil {
			log.Warnf("Notification for unknown channel %s dropped", item.SubscriptionID)
			continue
		}
		if sub.ClientState != item.ClientState {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "client state mismatch"})
			return
		}
		syncService.TriggerSync(sub.AccountID)
	}

	// Graph retries on anything but a fast 2xx
	c.Status(http.StatusAccepted)
}

func handleGmailNotification(
	c *gin.Context,
	ctx context.Context,
	syncService interfaces.SyncService,
	webhookSubRepository interfaces.WebhookSubscriptionRepository,
	accountRepository interfaces.AccountRepository,
	log logger.Logger,
) {
	var push pubSubPush
	if err := c.ShouldBindJSON(&push); err != nil || push.Message.Data == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification payload"})
		return
	}

	raw, err := base64.StdEncoding.DecodeString(push.Message.Data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification payload"})
		return
	}
	var data gmailNotificationData
	if err := json.Unmarshal(raw, &data); err != nil || data.EmailAddress == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification payload"})
		return
	}

	account, err := accountRepository.GetByEmailAddress(ctx, data.EmailAddress)
	if err != nil {
		log.Warnf("Account lookup failed for gmail notification: %v", err)
		c.Status(http.StatusOK)
		return
	}
	if account == nil {
		log.Warnf("Gmail notification for unknown mailbox %s dropped", data.EmailAddress)
		c.Status(http.StatusOK)
		return
	}

	sub, err := webhookSubRepository.GetByAccountID(ctx, account.ID)
	if err != nil || sub == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no active channel for mailbox"})
		return
	}
	// The pub/sub push endpoint carries the per-account secret as a query token
	if c.Query("token") != sub.ClientState {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "client state mismatch"})
		return
	}

	syncService.TriggerSync(account.ID)
	c.Status(http.StatusOK)
}
