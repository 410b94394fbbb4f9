package graphgw

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	graphmodels "github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/users"
	"github.com/opentracing/opentracing-go"
	"golang.org/x/oauth2"

	"github.com/aware88/fresh-ai-crm-sub016/interfaces"
	"github.com/aware88/fresh-ai-crm-sub016/internal/enum"
	"github.com/aware88/fresh-ai-crm-sub016/internal/logger"
	"github.com/aware88/fresh-ai-crm-sub016/internal/models"
	"github.com/aware88/fresh-ai-crm-sub016/internal/tracing"
	"github.com/aware88/fresh-ai-crm-sub016/internal/utils"
)

const (
	// initialLookback bounds the first pass on a mailbox with no cursor yet.
	initialLookback = 30 * 24 * time.Hour
	// subscriptionLifetime stays under the Graph maximum for mail resources.
	subscriptionLifetime = 70 * time.Hour
	pageSize             = int32(100)
)

var selectFields = []string{
	"id", "conversationId", "subject", "from", "bodyPreview",
	"isRead", "receivedDateTime", "lastModifiedDateTime",
}

// Gateway syncs through Microsoft Graph. The cursor is the receivedDateTime
// watermark of the newest message seen, serialized as RFC3339.
type Gateway struct {
	client  *msgraphsdk.GraphServiceClient
	account *models.Account
	user    string
	logger  logger.Logger
}

func NewGateway(account *models.Account, token *oauth2.Token, log logger.Logger) (*Gateway, error) {
	cred := &staticTokenCredential{token: token.AccessToken, expiry: token.Expiry}

	client, err := msgraphsdk.NewGraphServiceClientWithCredentials(cred, []string{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Graph client: %w", err)
	}

	return &Gateway{
		client:  client,
		account: account,
		user:    account.EmailAddress,
		logger:  log,
	}, nil
}

func (g *Gateway) Provider() enum.EmailProvider {
	return enum.EmailProviderOutlook
}

func (g *Gateway) FetchChangesSince(ctx context.Context, cursor string) (*interfaces.ChangeBatch, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "graphGateway.FetchChangesSince")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, g.account.ID)

	watermark, err := parseCursor(cursor)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	span.SetTag("watermark", watermark.Format(time.RFC3339))

	filter := fmt.Sprintf("receivedDateTime gt %s", watermark.Format(time.RFC3339))
	requestConfig := &users.ItemMessagesRequestBuilderGetRequestConfiguration{
		QueryParameters: &users.ItemMessagesRequestBuilderGetQueryParameters{
			Top:     utils.Int32Ptr(pageSize),
			Select:  selectFields,
			Filter:  &filter,
			Orderby: []string{"receivedDateTime asc"},
		},
	}

	result, err := g.client.Users().ByUserId(g.user).Messages().Get(ctx, requestConfig)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	nextWatermark := watermark
	var changes []interfaces.EmailChange
	for _, msg := range result.GetValue() {
		change := normalize(msg)
		if change.ProviderMessageID == "" {
			continue
		}
		if change.ReceivedAt.After(nextWatermark) {
			nextWatermark = change.ReceivedAt
		}
		changes = append(changes, change)
	}
	span.SetTag("changes.count", len(changes))

	return &interfaces.ChangeBatch{
		Changes:    changes,
		NextCursor: nextWatermark.UTC().Format(time.RFC3339),
	}, nil
}

func (g *Gateway) OpenPushChannel(ctx context.Context, notificationURL string) (*interfaces.PushChannel, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "graphGateway.OpenPushChannel")
	defer span.Finish()
	tracing.TagAccount(span, g.account.ID)

	changeType := "created,updated"
	resource := fmt.Sprintf("/users/%s/mailFolders('inbox')/messages", g.user)
	clientState := utils.GenerateNanoIDWithPrefix("secret", 21)
	expiry := utils.Now().Add(subscriptionLifetime)

	subscription := graphmodels.NewSubscription()
	subscription.SetChangeType(&changeType)
	subscription.SetNotificationUrl(&notificationURL)
	subscription.SetResource(&resource)
	subscription.SetClientState(&clientState)
	subscription.SetExpirationDateTime(&expiry)

	created, err := g.client.Subscriptions().Post(ctx, subscription, nil)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	channel := &interfaces.PushChannel{
		Resource:    resource,
		ClientState: clientState,
		ExpiresAt:   expiry,
	}
	if id := created.GetId(); id != nil {
		channel.ID = *id
	}
	if exp := created.GetExpirationDateTime(); exp != nil {
		channel.ExpiresAt = *exp
	}
	return channel, nil
}

func (g *Gateway) ClosePushChannel(ctx context.Context, channelID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "graphGateway.ClosePushChannel")
	defer span.Finish()
	tracing.TagAccount(span, g.account.ID)

	err := g.client.Subscriptions().BySubscriptionId(channelID).Delete(ctx, nil)
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to delete subscription %s: %w", channelID, err)
	}
	return nil
}

func normalize(m graphmodels.Messageable) interfaces.EmailChange {
	change := interfaces.EmailChange{}

	if id := m.GetId(); id != nil {
		change.ProviderMessageID = *id
	}
	if convID := m.GetConversationId(); convID != nil {
		change.ThreadID = *convID
	}
	if subject := m.GetSubject(); subject != nil {
		change.Subject = *subject
	}
	if from := m.GetFrom(); from != nil {
		if emailAddr := from.GetEmailAddress(); emailAddr != nil {
			if addr := emailAddr.GetAddress(); addr != nil {
				change.FromAddress = *addr
			}
			if name := emailAddr.GetName(); name != nil {
				change.FromName = *name
			}
		}
	}
	if preview := m.GetBodyPreview(); preview != nil {
		change.Snippet = *preview
	}
	if isRead := m.GetIsRead(); isRead != nil {
		change.Read = *isRead
	}
	if rcvd := m.GetReceivedDateTime(); rcvd != nil {
		change.ReceivedAt = *rcvd
	}
	if modified := m.GetLastModifiedDateTime(); modified != nil {
		change.ProviderUpdatedAt = *modified
	}
	return change
}

func parseCursor(cursor string) (time.Time, error) {
	if cursor == "" {
		return utils.Now().Add(-initialLookback), nil
	}
	watermark, err := time.Parse(time.RFC3339, cursor)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid watermark cursor %q: %w", cursor, err)
	}
	return watermark, nil
}

// staticTokenCredential adapts an already acquired OAuth token to the Azure
// credential interface. Refresh is the token capability's job.
type staticTokenCredential struct {
	token  string
	expiry time.Time
}

func (c *staticTokenCredential) GetToken(ctx context.Context, options policy.TokenRequestOptions) (azcore.AccessToken, error) {
	expiry := c.expiry
	if expiry.IsZero() {
		expiry = time.Now().Add(1 * time.Hour)
	}
	return azcore.AccessToken{
		Token:     c.token,
		ExpiresOn: expiry,
	}, nil
}
