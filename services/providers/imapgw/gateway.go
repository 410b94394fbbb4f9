package imapgw

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"

	"github.com/aware88/fresh-ai-crm-sub016/interfaces"
	"github.com/aware88/fresh-ai-crm-sub016/internal/enum"
	mailsync_errors "github.com/aware88/fresh-ai-crm-sub016/internal/errors"
	"github.com/aware88/fresh-ai-crm-sub016/internal/logger"
	"github.com/aware88/fresh-ai-crm-sub016/internal/models"
	"github.com/aware88/fresh-ai-crm-sub016/internal/tracing"
	"github.com/aware88/fresh-ai-crm-sub016/internal/utils"
)

const (
	syncFolder = "INBOX"
	// initialWindow bounds the first pass on a mailbox with no cursor yet.
	initialWindow = 200
)

// Gateway speaks classic IMAP. The cursor is the highest UID seen in the
// sync folder, serialized as a decimal string.
type Gateway struct {
	account *models.Account
	logger  logger.Logger
}

func NewGateway(account *models.Account, log logger.Logger) *Gateway {
	return &Gateway{account: account, logger: log}
}

func (g *Gateway) Provider() enum.EmailProvider {
	return enum.EmailProviderIMAP
}

func (g *Gateway) FetchChangesSince(ctx context.Context, cursor string) (*interfaces.ChangeBatch, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "imapGateway.FetchChangesSince")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, g.account.ID)

	lastUID, err := parseCursor(cursor)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	span.SetTag("last_uid", lastUID)

	c, err := g.connect(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	defer c.Logout()

	if _, err := c.Select(syncFolder, true); err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to select %s: %w", syncFolder, err)
	}

	criteria := imap.NewSearchCriteria()
	uidRange := new(imap.SeqSet)
	uidRange.AddRange(lastUID+1, 0) // From lastUID+1 to infinity
	criteria.Uid = uidRange

	c.Timeout = 30 * time.Second
	uids, err := c.UidSearch(criteria)
	c.Timeout = 0
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("error searching for new messages: %w", err)
	}

	if lastUID == 0 && len(uids) > initialWindow {
		uids = uids[len(uids)-initialWindow:]
	}

	if len(uids) == 0 {
		return &interfaces.ChangeBatch{NextCursor: cursor}, nil
	}
	span.SetTag("uids.count", len(uids))

	seqSet := new(imap.SeqSet)
	for _, uid := range uids {
		seqSet.AddNum(uid)
	}

	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchFlags,
		imap.FetchUid,
	}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)

	c.Timeout = 60 * time.Second
	go func() {
		done <- c.UidFetch(seqSet, items, messages)
	}()

	var changes []interfaces.EmailChange
	highestUID := lastUID
	for msg := range messages {
		if msg.Uid > highestUID {
			highestUID = msg.Uid
		}
		change, ok := normalize(msg)
		if !ok {
			continue
		}
		changes = append(changes, change)
	}
	c.Timeout = 0

	if err := <-done; err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("error fetching messages: %w", err)
	}

	return &interfaces.ChangeBatch{
		Changes:    changes,
		NextCursor: strconv.FormatUint(uint64(highestUID), 10),
	}, nil
}

// OpenPushChannel always fails: plain IMAP has no webhook facility here, the
// session stays on polling.
func (g *Gateway) OpenPushChannel(ctx context.Context, notificationURL string) (*interfaces.PushChannel, error) {
	return nil, mailsync_errors.ErrPushNotSupported
}

func (g *Gateway) ClosePushChannel(ctx context.Context, channelID string) error {
	return mailsync_errors.ErrPushNotSupported
}

func (g *Gateway) connect(ctx context.Context) (*client.Client, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "imapGateway.connect")
	defer span.Finish()
	span.SetTag("server", g.account.ImapServer)
	span.SetTag("port", g.account.ImapPort)

	serverAddr := fmt.Sprintf("%s:%d", g.account.ImapServer, g.account.ImapPort)

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	var c *client.Client
	var err error

	if g.account.ImapSecurity == enum.EmailSecurityTLS {
		tlsConfig := &tls.Config{
			ServerName: g.account.ImapServer,
		}
		c, err = client.DialWithDialerTLS(dialer, serverAddr, tlsConfig)
	} else {
		c, err = client.DialWithDialer(dialer, serverAddr)
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to connect to %s: %w", serverAddr, err)
	}

	c.Timeout = 30 * time.Second
	if err := c.Login(g.account.ImapUsername, g.account.ImapPassword); err != nil {
		c.Logout()
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("%w: failed to login as %s: %v", mailsync_errors.ErrAuthInvalid, g.account.ImapUsername, err)
	}
	c.Timeout = 0

	return c, nil
}

func normalize(msg *imap.Message) (interfaces.EmailChange, bool) {
	if msg.Envelope == nil || msg.Envelope.MessageId == "" {
		return interfaces.EmailChange{}, false
	}

	change := interfaces.EmailChange{
		ProviderMessageID: utils.NormalizeMessageID(msg.Envelope.MessageId),
		Subject:           msg.Envelope.Subject,
		Read:              hasSeenFlag(msg.Flags),
		ReceivedAt:        msg.Envelope.Date,
	}
	if len(msg.Envelope.From) > 0 {
		change.FromAddress = msg.Envelope.From[0].Address()
		change.FromName = msg.Envelope.From[0].PersonalName
	}
	return change, true
}

func hasSeenFlag(flags []string) bool {
	for _, flag := range flags {
		if flag == imap.SeenFlag {
			return true
		}
	}
	return false
}

func parseCursor(cursor string) (uint32, error) {
	if cursor == "" {
		return 0, nil
	}
	uid, err := strconv.ParseUint(cursor, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid UID cursor %q: %w", cursor, err)
	}
	return uint32(uid), nil
}
