// Package notify reconciles pull-request lifecycle transitions with
// listeners, chiefly the issue-tracker notifier.
package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/bkyoung/review-bridge/internal/domain"
	"github.com/bkyoung/review-bridge/internal/forge"
	"github.com/bkyoung/review-bridge/internal/scheduler"
	"github.com/bkyoung/review-bridge/internal/store"
)

// Listener receives ordered lifecycle callbacks for one pull request.
type Listener interface {
	OnNewPR(ctx context.Context, pr *domain.PullRequest) error
	OnNewIssue(ctx context.Context, pr *domain.PullRequest, issueID string) error
	OnRemovedIssue(ctx context.Context, pr *domain.PullRequest, issueID string) error
	OnHeadChange(ctx context.Context, pr *domain.PullRequest, oldHead string) error
	OnStateChange(ctx context.Context, pr *domain.PullRequest, oldState string) error
	OnTargetBranchChange(ctx context.Context, pr *domain.PullRequest, oldBranch string) error
	OnIntegratedPR(ctx context.Context, pr *domain.PullRequest, commitHash string) error
}

// Config is the notifier policy.
type Config struct {
	// Integrator is the only identity trusted for "Pushed as commit"
	// comments.
	Integrator string

	// IssueHeadings introduce the issues block in pull-request bodies.
	IssueHeadings []string
}

// Bot computes pull-request state deltas and fans them out.
type Bot struct {
	cfg       Config
	repo      forge.Repository
	store     store.Store
	listeners []Listener
	log       *logrus.Logger
}

// NewBot constructs a notifier bot.
func NewBot(cfg Config, repo forge.Repository, st store.Store, log *logrus.Logger, listeners ...Listener) *Bot {
	if log == nil {
		log = logrus.New()
	}
	return &Bot{cfg: cfg, repo: repo, store: st, listeners: listeners, log: log}
}

func (b *Bot) Name() string {
	return "notify/" + b.repo.Name()
}

// ProducePeriodicItems emits one item per open pull request.
func (b *Bot) ProducePeriodicItems(ctx context.Context) ([]scheduler.WorkItem, error) {
	prs, err := b.repo.PullRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list pull requests: %v", domain.ErrTransient, err)
	}
	var items []scheduler.WorkItem
	for _, pr := range prs {
		items = append(items, &notifyItem{bot: b, pr: pr.ID})
	}
	return items, nil
}

type notifyItem struct {
	bot *Bot
	pr  domain.PullRequestID
}

func (i *notifyItem) ID() string {
	return "notify/" + i.pr.String()
}

// ConcurrentWith allows anything except another notifier item for the same
// pull request.
func (i *notifyItem) ConcurrentWith(other scheduler.WorkItem) bool {
	o, ok := other.(*notifyItem)
	if !ok {
		return true
	}
	return i.pr != o.pr
}

func (i *notifyItem) Run(ctx context.Context, scratch string) ([]scheduler.WorkItem, error) {
	return nil, i.bot.notifyPR(ctx, i.pr)
}

func (i *notifyItem) HandleError(err error) {
	i.bot.log.WithField("pr", i.pr.String()).WithError(err).Error("notify item failed")
}

// stateEntity namespaces the notifier's records next to the mail bridge's
// in the shared durable store.
func stateEntity(id domain.PullRequestID) string {
	return "notify/" + id.String()
}

// computeState digests a snapshot into the notifier's state record.
func (b *Bot) computeState(pr *domain.PullRequest) domain.PullRequestState {
	issues := parseIssueIDs(pr.Body, b.cfg.IssueHeadings)
	sort.Strings(issues)
	return domain.PullRequestState{
		ID:               pr.ID,
		IssueIDs:         issues,
		IntegratedCommit: integratedCommit(pr, b.cfg.Integrator),
		Head:             pr.HeadHash,
		State:            pr.State,
		TargetBranch:     pr.TargetBranch,
	}
}

// notifyPR diffs the stored state against the snapshot and emits callbacks
// in order. The new state is stored only after every listener succeeded, so
// a failed listener sees the same delta again next cycle.
func (b *Bot) notifyPR(ctx context.Context, id domain.PullRequestID) error {
	pr, err := b.repo.PullRequest(ctx, id.Number)
	if err != nil {
		return fmt.Errorf("%w: fetch %s: %v", domain.ErrTransient, id, err)
	}

	if strings.Contains(pr.Body, TemporaryFailureMarker) {
		b.log.WithField("pr", id.String()).Info("temporary failure marker present, suspending")
		return nil
	}

	set, err := b.store.Current(ctx)
	if err != nil {
		return err
	}
	record, known := set.Get(stateEntity(id))
	old := recordToState(id, record)
	current := b.computeState(&pr)

	if known && old.Equals(current) {
		return nil
	}

	if err := b.emit(ctx, &pr, old, current, known); err != nil {
		return err
	}

	if err := b.store.Put(ctx, stateToRecord(current)); err != nil {
		return err
	}
	return b.store.Commit(ctx, "notifier state for "+id.String())
}

// emit fans the delta out to every listener, in callback order.
func (b *Bot) emit(ctx context.Context, pr *domain.PullRequest, old, current domain.PullRequestState, known bool) error {
	for _, l := range b.listeners {
		if !known {
			if err := l.OnNewPR(ctx, pr); err != nil {
				return err
			}
		}
		for _, id := range diffIssues(current.IssueIDs, old.IssueIDs) {
			if err := l.OnNewIssue(ctx, pr, id); err != nil {
				return err
			}
		}
		if known {
			for _, id := range diffIssues(old.IssueIDs, current.IssueIDs) {
				if err := l.OnRemovedIssue(ctx, pr, id); err != nil {
					return err
				}
			}
			if old.Head != current.Head && old.Head != "" {
				if err := l.OnHeadChange(ctx, pr, old.Head); err != nil {
					return err
				}
			}
			if old.TargetBranch != current.TargetBranch && old.TargetBranch != "" {
				if err := l.OnTargetBranchChange(ctx, pr, old.TargetBranch); err != nil {
					return err
				}
			}
			if old.State != current.State {
				if err := l.OnStateChange(ctx, pr, old.State); err != nil {
					return err
				}
			}
		}
		if current.IntegratedCommit != "" && current.IntegratedCommit != old.IntegratedCommit {
			if err := l.OnIntegratedPR(ctx, pr, current.IntegratedCommit); err != nil {
				return err
			}
		}
	}
	return nil
}

// diffIssues returns the ids present in a but not in b.
func diffIssues(a, b []string) []string {
	inB := make(map[string]bool, len(b))
	for _, id := range b {
		inB[id] = true
	}
	var out []string
	for _, id := range a {
		if !inB[id] {
			out = append(out, id)
		}
	}
	return out
}

func recordToState(id domain.PullRequestID, r domain.DurableRecord) domain.PullRequestState {
	return domain.PullRequestState{
		ID:               id,
		IssueIDs:         r.IssueIDs,
		IntegratedCommit: r.IntegratedCommit,
		Head:             r.Head,
		State:            r.State,
		TargetBranch:     r.TargetBranch,
	}
}

func stateToRecord(s domain.PullRequestState) domain.DurableRecord {
	return domain.DurableRecord{
		EntityID:         stateEntity(s.ID),
		IssueIDs:         s.IssueIDs,
		IntegratedCommit: s.IntegratedCommit,
		Head:             s.Head,
		State:            s.State,
		TargetBranch:     s.TargetBranch,
	}
}
