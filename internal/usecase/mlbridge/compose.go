package mlbridge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/bkyoung/review-bridge/internal/archive"
	"github.com/bkyoung/review-bridge/internal/domain"
	"github.com/bkyoung/review-bridge/internal/mail"
	"github.com/bkyoung/review-bridge/internal/vcs"
)

var kindTitler = cases.Title(language.English)

// webrevCommentMarker tags the bot's own webrev comment on the forge so it
// can be edited in place as revisions appear.
const webrevCommentMarker = "<!-- Webrev comment -->"

// composeItem renders one archive item as a mail with deterministic
// threading headers.
func (b *Bot) composeItem(ctx context.Context, pr *domain.PullRequest, items []archive.Item, idx int, mids map[string]string, full, incremental domain.WebrevArtifact, rebase bool) (*mail.Message, error) {
	item := items[idx]
	root := b.cfg.rootSubject(pr, b.defaultBranch)
	prURL := b.repo.WebURL(pr.ID.Number)

	msg := &mail.Message{
		ID:      mids[item.ID],
		From:    b.cfg.Sender,
		To:      b.recipientsAddresses(pr.Labels),
		Date:    time.Now(),
		Headers: b.cfg.ExtraHeaders,
	}

	switch item.Kind {
	case archive.KindPROpened:
		msg.Subject = root
		commits := b.commitsBetween(ctx, pr.BaseHash, item.HeadHash)
		webrevURL := b.publisher.ArtifactURL(pr.ID, domain.WebrevArtifact{Ordinal: 0, Kind: domain.WebrevFull}.Label())
		msg.Body = b.cfg.renderRootBody(pr, item.Body, prURL, b.fetchURL, commits, webrevURL)

	case archive.KindPRRevised:
		msg.Subject = root
		prevRoot, prevHead := previousRoot(items, idx)
		if prevRoot == nil {
			return nil, errNoParent
		}
		msg.InReplyTo = mids[prevRoot.ID]
		msg.References = append(referenceChain(items, prevRoot.ID, mids), mids[prevRoot.ID])
		commits := b.commitsBetween(ctx, prevHead, item.HeadHash)
		fullArt, incrArt := b.revisionArtifacts(pr.ID, items, idx, full, incremental)
		msg.Body = renderRevisedBody(pr, prURL, commits, fullArt, incrArt, rebase && item.HeadHash == full.HeadHash)

	default:
		msg.Subject = replySubject(item, root)
		parent := itemByID(items[:idx], item.ParentID)
		if parent == nil && item.ParentID != "" {
			return nil, errNoParent
		}
		if parent != nil {
			msg.InReplyTo = mids[parent.ID]
			msg.References = append(referenceChain(items, parent.ID, mids), mids[parent.ID])
		}
		if item.Kind == archive.KindReviewComment {
			msg.Body = renderReviewCommentBody(item, parent, b.cfg.ContextLines, b.fileReader(ctx))
		} else {
			msg.Body = renderItemBody(item, parent)
		}
	}
	return msg, nil
}

// revisionArtifacts returns the artifacts for the revised item at idx,
// falling back to reconstructed URLs for revisions published in earlier
// runs.
func (b *Bot) revisionArtifacts(pr domain.PullRequestID, items []archive.Item, idx int, full, incremental domain.WebrevArtifact) (domain.WebrevArtifact, domain.WebrevArtifact) {
	item := items[idx]
	if full.URL != "" && item.HeadHash == full.HeadHash {
		return full, incremental
	}
	ordinal := 0
	for i := 0; i < idx; i++ {
		if items[i].IsRoot() {
			ordinal++
		}
	}
	fullArt := domain.WebrevArtifact{PR: pr, Ordinal: ordinal, Kind: domain.WebrevFull, HeadHash: item.HeadHash}
	fullArt.URL = b.publisher.ArtifactURL(pr, fullArt.Label())
	incrArt := domain.WebrevArtifact{PR: pr, Ordinal: ordinal, Kind: domain.WebrevIncremental}
	incrArt.URL = b.publisher.ArtifactURL(pr, incrArt.Label())
	return fullArt, incrArt
}

// previousRoot finds the closest earlier root item and the head it
// described.
func previousRoot(items []archive.Item, idx int) (*archive.Item, string) {
	for i := idx - 1; i >= 0; i-- {
		if items[i].IsRoot() {
			return &items[i], items[i].HeadHash
		}
	}
	return nil, ""
}

// referenceChain walks parent links from the given item up to the root and
// returns the Message-IDs root-first.
func referenceChain(items []archive.Item, id string, mids map[string]string) []string {
	var chain []string
	for id != "" {
		item := itemByID(items, id)
		if item == nil {
			break
		}
		id = item.ParentID
		if id != "" {
			chain = append([]string{mids[id]}, chain...)
		}
	}
	return chain
}

func itemByID(items []archive.Item, id string) *archive.Item {
	if id == "" {
		return nil
	}
	for i := range items {
		if items[i].ID == id {
			return &items[i]
		}
	}
	return nil
}

func (b *Bot) commitsBetween(ctx context.Context, from, to string) []vcs.Commit {
	if b.source == nil {
		return nil
	}
	commits, err := b.source.CommitsBetween(ctx, from, to)
	if err != nil {
		b.log.WithError(err).Warn("commit enumeration failed")
		return nil
	}
	return commits
}

func (b *Bot) fileReader(ctx context.Context) fileReader {
	if b.source == nil {
		return nil
	}
	return func(revision, path string) []byte {
		content, err := b.source.ReadFile(ctx, revision, path)
		if err != nil {
			return nil
		}
		return content
	}
}

// updateWebrevComment posts (or rewrites) the single bot comment that lists
// every published webrev for the pull request.
func (b *Bot) updateWebrevComment(ctx context.Context, pr *domain.PullRequest, record domain.DurableRecord) error {
	var body strings.Builder
	body.WriteString("Webrevs:\n")
	for ordinal := range record.RevisionHeads {
		fullArt := domain.WebrevArtifact{PR: pr.ID, Ordinal: ordinal, Kind: domain.WebrevFull}
		fmt.Fprintf(&body, " - %02d: %s - %s\n", ordinal,
			kindTitler.String(domain.WebrevFull), b.publisher.ArtifactURL(pr.ID, fullArt.Label()))
		if ordinal > 0 {
			incrArt := domain.WebrevArtifact{PR: pr.ID, Ordinal: ordinal, Kind: domain.WebrevIncremental}
			fmt.Fprintf(&body, " - %02d-%02d: %s - %s\n", ordinal-1, ordinal,
				kindTitler.String(domain.WebrevIncremental), b.publisher.ArtifactURL(pr.ID, incrArt.Label()))
		}
	}
	body.WriteString("\n")
	body.WriteString(webrevCommentMarker)

	for _, c := range pr.Comments {
		if strings.Contains(c.Body, webrevCommentMarker) {
			if c.Body == body.String() {
				return nil
			}
			if err := b.repo.UpdateComment(ctx, pr.ID.Number, c.ID, body.String()); err != nil {
				return fmt.Errorf("%w: update webrev comment: %v", domain.ErrTransient, err)
			}
			return nil
		}
	}
	if _, err := b.repo.PostComment(ctx, pr.ID.Number, body.String()); err != nil {
		return fmt.Errorf("%w: post webrev comment: %v", domain.ErrTransient, err)
	}
	return nil
}
