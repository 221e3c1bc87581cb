package mlbridge

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bkyoung/review-bridge/internal/domain"
	"github.com/bkyoung/review-bridge/internal/mail"
	"github.com/bkyoung/review-bridge/internal/mailinglist"
	"github.com/bkyoung/review-bridge/internal/scheduler"
	"github.com/bkyoung/review-bridge/internal/textconv"
)

// readerItem scans one mailing list's archive for replies to bridge back.
type readerItem struct {
	bot  *Bot
	list mailinglist.List
}

func (i *readerItem) ID() string {
	return "mlreader/" + i.list.Name
}

// ConcurrentWith allows anything except another reader for the same list.
func (i *readerItem) ConcurrentWith(other scheduler.WorkItem) bool {
	o, ok := other.(*readerItem)
	if !ok {
		return true
	}
	return i.list.Name != o.list.Name
}

func (i *readerItem) Run(ctx context.Context, scratch string) ([]scheduler.WorkItem, error) {
	return nil, i.bot.readList(ctx, i.list)
}

func (i *readerItem) HandleError(err error) {
	i.bot.log.WithField("list", i.list.Name).WithError(err).Error("reader item failed")
}

// readList bridges new inbound replies from one list onto the forge.
func (b *Bot) readList(ctx context.Context, list mailinglist.List) error {
	conversations, err := b.archiveIn.Conversations(ctx, list, b.cfg.Lookback)
	if err != nil {
		return fmt.Errorf("%w: read archive of %s: %v", domain.ErrTransient, list.Name, err)
	}

	set, err := b.store.Current(ctx)
	if err != nil {
		return err
	}
	// Map every fingerprint back to the entity whose bridge emitted it.
	originated := map[string]string{}
	for _, record := range set.All() {
		for _, mid := range record.SentFingerprints {
			originated[mid] = record.EntityID
		}
	}

	for _, conv := range conversations {
		if conv.First == nil || !strings.HasPrefix(conv.First.Subject, "RFR: ") {
			continue
		}
		entity := originated[conv.First.ID]
		if entity == "" {
			// Not a conversation this bridge started.
			continue
		}
		number, ok := b.entityNumber(entity)
		if !ok {
			continue
		}
		record, _ := set.Get(entity)
		if err := b.bridgeConversation(ctx, list, conv, record, number); err != nil {
			b.log.WithFields(map[string]interface{}{"list": list.Name, "pr": entity}).
				WithError(err).Warn("conversation partially bridged")
		}
	}
	return nil
}

// entityNumber extracts the pull-request number from an entity id owned by
// this bot's repository.
func (b *Bot) entityNumber(entity string) (int, bool) {
	idx := strings.LastIndexByte(entity, '/')
	if idx < 0 || entity[:idx] != b.repo.Name() {
		return 0, false
	}
	number, err := strconv.Atoi(entity[idx+1:])
	if err != nil {
		return 0, false
	}
	return number, true
}

// bridgeConversation posts the not-yet-bridged replies of one conversation
// as forge comments.
func (b *Bot) bridgeConversation(ctx context.Context, list mailinglist.List, conv mailinglist.Conversation, record domain.DurableRecord, number int) error {
	pr, err := b.repo.PullRequest(ctx, number)
	if err != nil {
		return fmt.Errorf("%w: fetch pr %d: %v", domain.ErrTransient, number, err)
	}
	// Message-IDs already present as markers in forge comments.
	bridged := map[string]bool{}
	for _, c := range pr.Comments {
		for _, id := range BridgedIDs(c.Body) {
			bridged[id] = true
		}
	}

	known := map[string]bool{conv.First.ID: true}
	for _, mid := range record.SentFingerprints {
		known[mid] = true
	}

	for _, reply := range conv.Replies {
		if reply.ID == "" {
			continue
		}
		if record.HasFingerprint(reply.ID) {
			// One of ours on the way back in.
			known[reply.ID] = true
			continue
		}
		if b.msgCache != nil {
			seen, err := b.msgCache.Seen(ctx, list.Name, reply.ID)
			if err == nil && seen {
				known[reply.ID] = true
				continue
			}
		}
		if bridged[reply.ID] {
			known[reply.ID] = true
			b.markSeen(ctx, list.Name, reply.ID, true)
			continue
		}
		if !known[reply.InReplyTo] {
			// Reply into a part of the thread the bridge does not know.
			continue
		}
		body := b.renderBridgedComment(list, reply)
		if _, err := b.repo.PostComment(ctx, number, body); err != nil {
			return fmt.Errorf("%w: post bridged comment: %v", domain.ErrTransient, err)
		}
		known[reply.ID] = true
		b.markSeen(ctx, list.Name, reply.ID, true)
	}
	return nil
}

func (b *Bot) markSeen(ctx context.Context, list, messageID string, bridged bool) {
	if b.msgCache == nil {
		return
	}
	if err := b.msgCache.MarkSeen(ctx, list, messageID, bridged); err != nil {
		b.log.WithError(err).Warn("message cache update failed")
	}
}

// renderBridgedComment renders an inbound reply as a forge comment with the
// hidden marker that keeps later passes from ingesting it again.
func (b *Bot) renderBridgedComment(list mailinglist.List, reply *mail.Message) string {
	var body strings.Builder
	author := reply.From.Name
	if author == "" {
		author = reply.From.Email
	}
	fmt.Fprintf(&body, "Mailing list message from [%s](mailto:%s) on [%s](mailto:%s):\n\n",
		author, reply.From.Email, list.Name, list.Email)
	if b.cfg.MaxReplySize > 0 && len(reply.Body) > b.cfg.MaxReplySize {
		fmt.Fprintf(&body, "This message was too large to display (%d bytes).\n", len(reply.Body))
	} else {
		body.WriteString(textconv.TextToMarkdown(reply.Body))
		body.WriteString("\n")
	}
	body.WriteString("\n")
	body.WriteString(BridgedMarker(reply.ID))
	return body.String()
}
