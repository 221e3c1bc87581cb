// Package mlbridge is the mailing-list bridge: it mirrors review-ready pull
// requests as threaded list conversations, publishes webrevs, and feeds
// list replies back onto the forge.
package mlbridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bkyoung/review-bridge/internal/archive"
	"github.com/bkyoung/review-bridge/internal/cache"
	"github.com/bkyoung/review-bridge/internal/domain"
	"github.com/bkyoung/review-bridge/internal/forge"
	"github.com/bkyoung/review-bridge/internal/mail"
	"github.com/bkyoung/review-bridge/internal/mailinglist"
	"github.com/bkyoung/review-bridge/internal/scheduler"
	"github.com/bkyoung/review-bridge/internal/store"
	"github.com/bkyoung/review-bridge/internal/vcs"
	"github.com/bkyoung/review-bridge/internal/webrev"
)

// WebrevPublisher is the slice of the webrev publisher the bridge needs.
type WebrevPublisher interface {
	Generate(ctx context.Context, pr domain.PullRequestID, baseHash, headHash string, ordinal int, kind, scratch string) (domain.WebrevArtifact, error)
	ArtifactURL(pr domain.PullRequestID, label string) string
}

var _ WebrevPublisher = (*webrev.Publisher)(nil)

// Bot bridges one forge repository to its mailing lists.
type Bot struct {
	cfg       Config
	repo      forge.Repository
	store     store.Store
	sender    mailinglist.Sender
	archiveIn mailinglist.Archive
	publisher WebrevPublisher
	source    vcs.Repository
	msgCache  *cache.MessageCache
	log       *logrus.Logger

	defaultBranch string
	fetchURL      string

	sendMu   sync.Mutex
	lastSend time.Time

	labelsOnce sync.Once
}

// BotOptions carries the collaborators a bot is wired with. Source and
// MsgCache are optional: without a source repository commit lists and file
// context are omitted, without a cache every reader pass re-checks the
// forge.
type BotOptions struct {
	Config        Config
	Repo          forge.Repository
	Store         store.Store
	Sender        mailinglist.Sender
	Archive       mailinglist.Archive
	Publisher     WebrevPublisher
	Source        vcs.Repository
	MsgCache      *cache.MessageCache
	Log           *logrus.Logger
	DefaultBranch string
	FetchURL      string
}

// NewBot constructs a bridge bot.
func NewBot(opts BotOptions) *Bot {
	if opts.Log == nil {
		opts.Log = logrus.New()
	}
	if opts.Config.ContextLines <= 0 {
		opts.Config.ContextLines = 4
	}
	return &Bot{
		cfg:           opts.Config,
		repo:          opts.Repo,
		store:         opts.Store,
		sender:        opts.Sender,
		archiveIn:     opts.Archive,
		publisher:     opts.Publisher,
		source:        opts.Source,
		msgCache:      opts.MsgCache,
		log:           opts.Log,
		defaultBranch: opts.DefaultBranch,
		fetchURL:      opts.FetchURL,
	}
}

// Name identifies the bot in scheduler logs.
func (b *Bot) Name() string {
	return "mlbridge/" + b.repo.Name()
}

// ProducePeriodicItems emits one bridge item per open pull request and one
// reader item per mailing list. The first cycle also emits the label
// updater.
func (b *Bot) ProducePeriodicItems(ctx context.Context) ([]scheduler.WorkItem, error) {
	prs, err := b.repo.PullRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list pull requests: %v", domain.ErrTransient, err)
	}
	var items []scheduler.WorkItem
	b.labelsOnce.Do(func() {
		items = append(items, &labelItem{bot: b})
	})
	for _, pr := range prs {
		items = append(items, &bridgeItem{bot: b, pr: pr.ID})
	}
	for _, list := range b.cfg.allLists() {
		items = append(items, &readerItem{bot: b, list: list})
	}
	return items, nil
}

// bridgeItem scans one pull request and sends whatever the archive is
// missing.
type bridgeItem struct {
	bot *Bot
	pr  domain.PullRequestID
}

func (i *bridgeItem) ID() string {
	return "mlbridge/" + i.pr.String()
}

// ConcurrentWith allows anything except another bridge item for the same
// pull request of the same repository.
func (i *bridgeItem) ConcurrentWith(other scheduler.WorkItem) bool {
	o, ok := other.(*bridgeItem)
	if !ok {
		return true
	}
	return i.pr != o.pr
}

func (i *bridgeItem) Run(ctx context.Context, scratch string) ([]scheduler.WorkItem, error) {
	return nil, i.bot.bridgePR(ctx, i.pr, scratch)
}

func (i *bridgeItem) HandleError(err error) {
	i.bot.log.WithField("pr", i.pr.String()).WithError(err).Error("bridge item failed")
}

// bridgePR reconciles one pull request with the list archive.
func (b *Bot) bridgePR(ctx context.Context, id domain.PullRequestID, scratch string) error {
	pr, err := b.repo.PullRequest(ctx, id.Number)
	if err != nil {
		return fmt.Errorf("%w: fetch %s: %v", domain.ErrTransient, id, err)
	}

	set, err := b.store.Current(ctx)
	if err != nil {
		return err
	}
	record, ok := set.Get(id.String())
	if !ok {
		record = domain.DurableRecord{EntityID: id.String(), State: domain.BridgeStatePreReady}
	}

	// Let the author finish pushing before anything goes out.
	if b.cfg.Cooldown > 0 && time.Since(pr.UpdatedAt) < b.cfg.Cooldown {
		b.log.WithField("pr", id.String()).Debug("within cooldown, deferring")
		return nil
	}

	if pr.State == domain.PRStateClosed {
		return b.handleClosed(ctx, &pr, record)
	}

	if record.State == domain.BridgeStatePreReady {
		if !b.isReady(&pr) {
			return nil
		}
		record.State = domain.BridgeStateReady
	}

	return b.bridgeReady(ctx, &pr, record, scratch)
}

// isReady checks the configured ready labels and ready comments.
func (b *Bot) isReady(pr *domain.PullRequest) bool {
	for _, label := range b.cfg.ReadyLabels {
		if !pr.HasLabel(label) {
			return false
		}
	}
	for author, pattern := range b.cfg.ReadyComments {
		matched := false
		for _, c := range pr.Comments {
			if c.Author == author && pattern.MatchString(c.Body) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// handleClosed sends the state-change notification once and records the
// terminal state. A pull request that never went out stays silent.
func (b *Bot) handleClosed(ctx context.Context, pr *domain.PullRequest, record domain.DurableRecord) error {
	newState := domain.BridgeStateClosed
	if pr.HasLabel("integrated") {
		newState = domain.BridgeStateIntegrated
	}
	if record.State == newState {
		return nil
	}
	wasBridged := record.State == domain.BridgeStateReady
	record.State = newState
	if !wasBridged {
		return b.persist(ctx, record, "state change for "+pr.ID.String())
	}

	rootID := archive.ItemID(pr.ID.String(), archive.KindPROpened)
	rootMid := mail.MessageID(pr.ID.String(), rootID, b.cfg.messageDomain())
	mid := mail.MessageID(pr.ID.String(), "state-"+newState, b.cfg.messageDomain())
	if record.HasFingerprint(mid) {
		return b.persist(ctx, record, "state change for "+pr.ID.String())
	}

	tail := strings.TrimPrefix(b.cfg.rootSubject(pr, b.defaultBranch), "RFR: ")
	subject := "Withdrawn: " + tail
	if newState == domain.BridgeStateIntegrated {
		subject = "Integrated: " + tail
	}
	msg := &mail.Message{
		ID:         mid,
		From:       b.cfg.Sender,
		To:         b.recipientsAddresses(pr.Labels),
		Subject:    subject,
		Body:       renderStateChangeBody(pr, newState, b.repo.WebURL(pr.ID.Number)),
		Date:       time.Now(),
		InReplyTo:  rootMid,
		References: []string{rootMid},
		Headers:    b.cfg.ExtraHeaders,
	}
	if err := b.send(ctx, msg); err != nil {
		return err
	}
	record.AddFingerprint(mid)
	return b.persist(ctx, record, "state change for "+pr.ID.String())
}

// bridgeReady does the work for a ready pull request: webrevs first, then
// the missing mails in archive order.
func (b *Bot) bridgeReady(ctx context.Context, pr *domain.PullRequest, record domain.DurableRecord, scratch string) error {
	prevHead := record.Head
	newRevision := record.RecordRevision(pr.HeadHash)
	record.TargetBranch = pr.TargetBranch
	record.State = domain.BridgeStateReady
	record.IssueIDs = b.cfg.issueIDs(pr.Title)

	ordinal := len(record.RevisionHeads) - 1
	rebase := false
	var full, incremental domain.WebrevArtifact
	if newRevision {
		rebase = b.isRebase(ctx, prevHead, pr.HeadHash)
		var err error
		full, err = b.publisher.Generate(ctx, pr.ID, pr.BaseHash, pr.HeadHash, ordinal, domain.WebrevFull, scratch)
		if err != nil {
			return err
		}
		if ordinal > 0 && !rebase {
			incremental, err = b.publisher.Generate(ctx, pr.ID, prevHead, pr.HeadHash, ordinal, domain.WebrevIncremental, scratch)
			if err != nil {
				return err
			}
		}
		if err := b.updateWebrevComment(ctx, pr, record); err != nil {
			return err
		}
	}

	items := b.buildItems(ctx, pr, record)
	mids := make(map[string]string, len(items))
	for _, item := range items {
		mids[item.ID] = mail.MessageID(pr.ID.String(), item.ID, b.cfg.messageDomain())
	}

	for idx, item := range items {
		mid := mids[item.ID]
		if record.HasFingerprint(mid) {
			continue
		}
		msg, err := b.composeItem(ctx, pr, items, idx, mids, full, incremental, rebase)
		if err != nil {
			b.log.WithField("pr", pr.ID.String()).WithError(err).Warn("skipping unrenderable item")
			continue
		}
		if err := b.send(ctx, msg); err != nil {
			// The fingerprints already persisted cover everything sent
			// so far; the rest is retried next cycle.
			if perr := b.persist(ctx, record, "partial bridge of "+pr.ID.String()); perr != nil {
				return perr
			}
			return err
		}
		record.AddFingerprint(mid)
		if err := b.persist(ctx, record, "bridged mail for "+pr.ID.String()); err != nil {
			return err
		}
	}

	return b.persist(ctx, record, "bridged "+pr.ID.String())
}

// buildItems rebuilds the archive-item sequence for the snapshot.
func (b *Bot) buildItems(ctx context.Context, pr *domain.PullRequest, record domain.DurableRecord) []archive.Item {
	filter := archive.NewFilter(b.cfg.IgnoredUsers, b.cfg.IgnoredComments, b.cfg.HiddenMarker)
	builder := archive.NewBuilder(filter, b.cfg.CombineWindow)

	revisions := make([]archive.Revision, 0, len(record.RevisionHeads))
	for i, head := range record.RevisionHeads {
		t := pr.CreatedAt.Add(time.Duration(i) * time.Second)
		if i == len(record.RevisionHeads)-1 && i > 0 {
			if ct, ok := b.commitTime(ctx, head); ok {
				t = ct
			}
		}
		revisions = append(revisions, archive.Revision{Hash: head, Time: t})
	}
	return builder.Build(pr, revisions)
}

func (b *Bot) commitTime(ctx context.Context, head string) (time.Time, bool) {
	if b.source == nil {
		return time.Time{}, false
	}
	commits, err := b.source.CommitsBetween(ctx, "", head)
	if err != nil || len(commits) == 0 {
		return time.Time{}, false
	}
	return commits[len(commits)-1].When, true
}

// isRebase reports whether the new head does not descend from the previous
// one.
func (b *Bot) isRebase(ctx context.Context, prevHead, newHead string) bool {
	if prevHead == "" || b.source == nil {
		return false
	}
	commits, err := b.source.CommitsBetween(ctx, prevHead, newHead)
	if err != nil {
		return false
	}
	return len(commits) == 0
}

// send submits one mail, spacing sends by the configured interval.
func (b *Bot) send(ctx context.Context, msg *mail.Message) error {
	b.sendMu.Lock()
	defer b.sendMu.Unlock()
	if b.cfg.SendInterval > 0 {
		if wait := b.cfg.SendInterval - time.Since(b.lastSend); wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	if err := b.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("%w: send %s: %v", domain.ErrTransient, msg.ID, err)
	}
	b.lastSend = time.Now()
	return nil
}

func (b *Bot) persist(ctx context.Context, record domain.DurableRecord, message string) error {
	if err := b.store.Put(ctx, record); err != nil {
		return err
	}
	return b.store.Commit(ctx, message)
}

func (b *Bot) recipientsAddresses(labels []string) []mail.Address {
	lists := b.cfg.recipients(labels)
	out := make([]mail.Address, 0, len(lists))
	for _, l := range lists {
		out = append(out, mail.Address{Name: l.Name, Email: l.Email})
	}
	return out
}

var errNoParent = errors.New("parent item not in sequence")
