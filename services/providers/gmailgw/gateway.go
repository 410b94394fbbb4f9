package gmailgw

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/aware88/fresh-ai-crm-sub016/interfaces"
	"github.com/aware88/fresh-ai-crm-sub016/internal/enum"
	mailsync_errors "github.com/aware88/fresh-ai-crm-sub016/internal/errors"
	"github.com/aware88/fresh-ai-crm-sub016/internal/logger"
	"github.com/aware88/fresh-ai-crm-sub016/internal/models"
	"github.com/aware88/fresh-ai-crm-sub016/internal/tracing"
	"github.com/aware88/fresh-ai-crm-sub016/internal/utils"
)

const (
	labelUnread = "UNREAD"
	labelInbox  = "INBOX"
	// initialWindow bounds the first pass on a mailbox with no cursor yet.
	initialWindow = 200
)

// Gateway syncs through the Gmail API. The cursor is the mailbox historyId.
type Gateway struct {
	svc     *gmail.Service
	account *models.Account
	user    string
	// pubsubTopic is the Cloud Pub/Sub topic Gmail pushes into; empty
	// disables push for this gateway.
	pubsubTopic string
	logger      logger.Logger
}

func NewGateway(ctx context.Context, account *models.Account, token *oauth2.Token, pubsubTopic string, log logger.Logger) (*Gateway, error) {
	config := &oauth2.Config{
		Scopes: []string{gmail.GmailReadonlyScope},
	}
	httpClient := config.Client(ctx, token)

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &Gateway{
		svc:         svc,
		account:     account,
		user:        account.EmailAddress,
		pubsubTopic: pubsubTopic,
		logger:      log,
	}, nil
}

func (g *Gateway) Provider() enum.EmailProvider {
	return enum.EmailProviderGmail
}

func (g *Gateway) FetchChangesSince(ctx context.Context, cursor string) (*interfaces.ChangeBatch, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "gmailGateway.FetchChangesSince")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, g.account.ID)

	if cursor == "" {
		return g.initialBackfill(ctx)
	}

	startHistoryID, err := strconv.ParseUint(cursor, 10, 64)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("invalid history ID in cursor: %w", err)
	}
	span.SetTag("start_history_id", startHistoryID)

	call := g.svc.Users.History.List(g.user).StartHistoryId(startHistoryID).MaxResults(100)

	latestHistoryID := startHistoryID
	processedMessages := make(map[string]bool)
	var messageIDs []string

	err = call.Pages(ctx, func(page *gmail.ListHistoryResponse) error {
		for _, history := range page.History {
			if history.Id > latestHistoryID {
				latestHistoryID = history.Id
			}
			for _, record := range history.MessagesAdded {
				if record.Message != nil && !processedMessages[record.Message.Id] {
					processedMessages[record.Message.Id] = true
					messageIDs = append(messageIDs, record.Message.Id)
				}
			}
			// Read state flips surface as UNREAD label changes
			for _, record := range history.LabelsAdded {
				if record.Message != nil && containsLabel(record.LabelIds, labelUnread) && !processedMessages[record.Message.Id] {
					processedMessages[record.Message.Id] = true
					messageIDs = append(messageIDs, record.Message.Id)
				}
			}
			for _, record := range history.LabelsRemoved {
				if record.Message != nil && containsLabel(record.LabelIds, labelUnread) && !processedMessages[record.Message.Id] {
					processedMessages[record.Message.Id] = true
					messageIDs = append(messageIDs, record.Message.Id)
				}
			}
		}
		return nil
	})
	if err != nil {
		// A stale historyId means the provider can no longer serve the delta
		if strings.Contains(err.Error(), "404") || strings.Contains(err.Error(), "historyId") {
			g.logger.Warnf("History cursor for %s is stale, falling back to backfill", g.account.ID)
			return g.initialBackfill(ctx)
		}
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to sync history: %w", err)
	}

	changeTime := utils.Now()
	var changes []interfaces.EmailChange
	for _, messageID := range messageIDs {
		meta, err := g.svc.Users.Messages.Get(g.user, messageID).Format("metadata").Do()
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, fmt.Errorf("failed to get message %s: %w", messageID, err)
		}
		change := g.normalize(meta)
		// The history record is the provider-side modification we just saw
		change.ProviderUpdatedAt = changeTime
		changes = append(changes, change)
	}

	return &interfaces.ChangeBatch{
		Changes:    changes,
		NextCursor: strconv.FormatUint(latestHistoryID, 10),
	}, nil
}

func (g *Gateway) initialBackfill(ctx context.Context) (*interfaces.ChangeBatch, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "gmailGateway.initialBackfill")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, g.account.ID)

	list, err := g.svc.Users.Messages.List(g.user).IncludeSpamTrash(false).MaxResults(initialWindow).Do()
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	var changes []interfaces.EmailChange
	for _, m := range list.Messages {
		meta, err := g.svc.Users.Messages.Get(g.user, m.Id).Format("metadata").Do()
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, fmt.Errorf("failed to get message %s: %w", m.Id, err)
		}
		changes = append(changes, g.normalize(meta))
	}

	profile, err := g.svc.Users.GetProfile(g.user).Do()
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	return &interfaces.ChangeBatch{
		Changes:    changes,
		NextCursor: strconv.FormatUint(profile.HistoryId, 10),
	}, nil
}

func (g *Gateway) OpenPushChannel(ctx context.Context, notificationURL string) (*interfaces.PushChannel, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "gmailGateway.OpenPushChannel")
	defer span.Finish()
	tracing.TagAccount(span, g.account.ID)

	if g.pubsubTopic == "" {
		return nil, mailsync_errors.ErrPushNotSupported
	}

	watch, err := g.svc.Users.Watch(g.user, &gmail.WatchRequest{
		TopicName: g.pubsubTopic,
		LabelIds:  []string{labelInbox},
	}).Do()
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to open watch: %w", err)
	}

	return &interfaces.PushChannel{
		ID:          utils.GenerateNanoIDWithPrefix("chan", 16),
		Resource:    g.pubsubTopic,
		ClientState: utils.GenerateNanoIDWithPrefix("secret", 21),
		ExpiresAt:   time.UnixMilli(watch.Expiration).UTC(),
	}, nil
}

func (g *Gateway) ClosePushChannel(ctx context.Context, channelID string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "gmailGateway.ClosePushChannel")
	defer span.Finish()
	tracing.TagAccount(span, g.account.ID)

	if err := g.svc.Users.Stop(g.user).Do(); err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to stop watch: %w", err)
	}
	return nil
}

func (g *Gateway) normalize(m *gmail.Message) interfaces.EmailChange {
	headers := make(map[string]string)
	if m.Payload != nil {
		for _, kv := range m.Payload.Headers {
			headers[kv.Name] = kv.Value
		}
	}

	fromAddress, fromName := splitFromHeader(headers["From"])

	return interfaces.EmailChange{
		ProviderMessageID: m.Id,
		ThreadID:          m.ThreadId,
		Subject:           headers["Subject"],
		FromAddress:       fromAddress,
		FromName:          fromName,
		Snippet:           m.Snippet,
		Read:              !containsLabel(m.LabelIds, labelUnread),
		Labels:            m.LabelIds,
		ReceivedAt:        time.UnixMilli(m.InternalDate).UTC(),
	}
}

// splitFromHeader separates `Name <addr>` into its parts.
func splitFromHeader(from string) (address, name string) {
	from = strings.TrimSpace(from)
	if from == "" {
		return "", ""
	}
	open := strings.LastIndex(from, "<")
	end := strings.LastIndex(from, ">")
	if open >= 0 && end > open {
		address = strings.TrimSpace(from[open+1 : end])
		name = strings.Trim(strings.TrimSpace(from[:open]), `"`)
		return address, name
	}
	return from, ""
}

func containsLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}
