package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/bkyoung/review-bridge/internal/domain"
	"github.com/bkyoung/review-bridge/internal/jdkversion"
	"github.com/bkyoung/review-bridge/internal/tracker"
	"github.com/bkyoung/review-bridge/internal/vcs"
)

// IssueNotifierConfig is the issue-side notifier policy.
type IssueNotifierConfig struct {
	// BranchVersions maps a target branch to the fix version integrations
	// into it request.
	BranchVersions map[string]string

	// StreamDuplicateLabel marks the later issues of a release stream.
	StreamDuplicateLabel string

	// IssueHeadings introduce the issues block in pull-request bodies.
	IssueHeadings []string
}

// IssueNotifier mutates the issue tracker on pull-request integration. It
// resolves primaries through backport links, finds or creates the backport
// for the requested fix version, and maintains release-stream duplicate
// labels across the family.
type IssueNotifier struct {
	cfg     IssueNotifierConfig
	tracker tracker.Client
	log     *logrus.Logger

	// LookupCommit resolves a commit hash to its metadata; without it the
	// committer assignment step is skipped.
	LookupCommit func(ctx context.Context, hash string) (vcs.Commit, error)
}

// NewIssueNotifier constructs an issue notifier.
func NewIssueNotifier(cfg IssueNotifierConfig, client tracker.Client, log *logrus.Logger) *IssueNotifier {
	if log == nil {
		log = logrus.New()
	}
	return &IssueNotifier{cfg: cfg, tracker: client, log: log}
}

func (n *IssueNotifier) OnNewPR(ctx context.Context, pr *domain.PullRequest) error { return nil }

func (n *IssueNotifier) OnNewIssue(ctx context.Context, pr *domain.PullRequest, issueID string) error {
	return nil
}

func (n *IssueNotifier) OnRemovedIssue(ctx context.Context, pr *domain.PullRequest, issueID string) error {
	return nil
}

func (n *IssueNotifier) OnHeadChange(ctx context.Context, pr *domain.PullRequest, oldHead string) error {
	return nil
}

func (n *IssueNotifier) OnStateChange(ctx context.Context, pr *domain.PullRequest, oldState string) error {
	return nil
}

func (n *IssueNotifier) OnTargetBranchChange(ctx context.Context, pr *domain.PullRequest, oldBranch string) error {
	return nil
}

// OnIntegratedPR processes every issue the pull request references. A bad
// issue is logged and skipped; the rest proceed.
func (n *IssueNotifier) OnIntegratedPR(ctx context.Context, pr *domain.PullRequest, commitHash string) error {
	requested, ok := n.requestedVersion(pr.TargetBranch)
	if !ok {
		n.log.WithField("branch", pr.TargetBranch).Warn("no fix version for target branch")
		return nil
	}
	for _, issueID := range parseIssueIDs(pr.Body, n.cfg.IssueHeadings) {
		if err := n.processIssue(ctx, issueID, requested, commitHash); err != nil {
			n.log.WithField("issue", issueID).WithError(err).Warn("issue skipped")
		}
	}
	return nil
}

func (n *IssueNotifier) requestedVersion(branch string) (jdkversion.Version, bool) {
	raw, ok := n.cfg.BranchVersions[branch]
	if !ok {
		return jdkversion.Version{}, false
	}
	v, err := jdkversion.Parse(raw)
	if err != nil {
		return jdkversion.Version{}, false
	}
	return v, true
}

func (n *IssueNotifier) processIssue(ctx context.Context, issueID string, requested jdkversion.Version, commitHash string) error {
	primary, err := n.resolvePrimary(ctx, issueID)
	if err != nil {
		return err
	}
	family, err := n.family(ctx, primary)
	if err != nil {
		return err
	}

	target, found := findIssue(family, requested)
	if !found {
		target, err = n.createBackport(ctx, primary, requested)
		if err != nil {
			return err
		}
		family = append(family, target)
	}

	if err := n.notifyCommit(ctx, target, commitHash); err != nil {
		return err
	}
	if target.State == tracker.StateOpen {
		if err := n.tracker.SetState(ctx, target.ID, tracker.StateResolved); err != nil {
			return fmt.Errorf("resolve %s: %w", target.ID, err)
		}
	}
	if err := n.assignCommitter(ctx, target, commitHash); err != nil {
		return err
	}
	return n.labelReleaseStreamDuplicates(ctx, family)
}

// resolvePrimary follows "backport of" links until a primary issue type is
// reached.
func (n *IssueNotifier) resolvePrimary(ctx context.Context, issueID string) (tracker.Issue, error) {
	id := issueID
	for depth := 0; depth < 10; depth++ {
		issue, err := n.tracker.Issue(ctx, id)
		if err != nil {
			return tracker.Issue{}, fmt.Errorf("%w: fetch issue %s: %v", domain.ErrData, id, err)
		}
		if tracker.IsPrimaryType(issue.Type) {
			return issue, nil
		}
		next := ""
		for _, link := range issue.Links {
			if link.Type == tracker.LinkBackportOf {
				next = link.IssueID
				break
			}
		}
		if next == "" {
			return tracker.Issue{}, fmt.Errorf("%w: %s has no primary issue", domain.ErrData, issueID)
		}
		id = next
	}
	return tracker.Issue{}, fmt.Errorf("%w: backport link cycle at %s", domain.ErrData, issueID)
}

// family returns the primary and all its backports, sorted by id so
// precedence ties resolve deterministically.
func (n *IssueNotifier) family(ctx context.Context, primary tracker.Issue) ([]tracker.Issue, error) {
	issues := []tracker.Issue{primary}
	for _, link := range primary.Links {
		if link.Type != tracker.LinkBackportedBy {
			continue
		}
		backport, err := n.tracker.Issue(ctx, link.IssueID)
		if err != nil {
			return nil, fmt.Errorf("%w: fetch backport %s: %v", domain.ErrData, link.IssueID, err)
		}
		issues = append(issues, backport)
	}
	sort.Slice(issues, func(i, j int) bool { return issues[i].ID < issues[j].ID })
	return issues, nil
}

// nonScratchFixVersion returns the issue's single real fix version.
func nonScratchFixVersion(issue tracker.Issue) (string, bool) {
	var real []string
	for _, v := range issue.FixVersions {
		if !jdkversion.IsScratch(v) {
			real = append(real, v)
		}
	}
	if len(real) == 1 {
		return real[0], true
	}
	return "", false
}

// findIssue picks the family member matching the requested version, by
// precedence: exact fix-version match, then the feature's pool/open
// placeholder, then a scratch fix version. The earliest id wins a tie.
// A pool placeholder only absorbs feature-train requests; a concrete update
// release gets its own backport so the placeholder keeps tracking the
// train.
func findIssue(family []tracker.Issue, requested jdkversion.Version) (tracker.Issue, bool) {
	pool := fmt.Sprintf("%d-pool", requested.Feature)
	open := fmt.Sprintf("%d-open", requested.Feature)

	for _, issue := range family {
		raw, ok := nonScratchFixVersion(issue)
		if !ok {
			continue
		}
		v, err := jdkversion.Parse(raw)
		if err != nil {
			continue
		}
		if v.Compare(requested) == 0 && v.Opt == requested.Opt {
			return issue, true
		}
	}
	if requested.Update == 0 {
		for _, issue := range family {
			raw, ok := nonScratchFixVersion(issue)
			if !ok {
				continue
			}
			if raw == pool || raw == open {
				return issue, true
			}
		}
	}
	for _, issue := range family {
		if _, ok := nonScratchFixVersion(issue); !ok {
			return issue, true
		}
	}
	return tracker.Issue{}, false
}

// createBackport copies the primary into a new Backport issue carrying the
// requested fix version, linked both ways.
func (n *IssueNotifier) createBackport(ctx context.Context, primary tracker.Issue, requested jdkversion.Version) (tracker.Issue, error) {
	props := map[string][]string{
		tracker.PropFixVersions: {requested.String()},
	}
	if primary.SecurityLevel != "" {
		props[tracker.PropSecurityLevel] = []string{primary.SecurityLevel}
	}
	backport, err := n.tracker.CreateIssue(ctx, tracker.TypeBackport, primary.Title, props)
	if err != nil {
		return tracker.Issue{}, fmt.Errorf("create backport of %s: %w", primary.ID, err)
	}
	if err := n.tracker.AddLink(ctx, backport.ID, tracker.Link{Type: tracker.LinkBackportOf, IssueID: primary.ID}); err != nil {
		return tracker.Issue{}, err
	}
	if err := n.tracker.AddLink(ctx, primary.ID, tracker.Link{Type: tracker.LinkBackportedBy, IssueID: backport.ID}); err != nil {
		return tracker.Issue{}, err
	}
	n.log.WithFields(logrus.Fields{"primary": primary.ID, "backport": backport.ID, "version": requested.String()}).
		Info("created backport")
	return backport, nil
}

// notifyCommit posts the one-line commit notification unless one already
// mentions the hash.
func (n *IssueNotifier) notifyCommit(ctx context.Context, issue tracker.Issue, commitHash string) error {
	comments, err := n.tracker.Comments(ctx, issue.ID)
	if err != nil {
		return fmt.Errorf("list comments of %s: %w", issue.ID, err)
	}
	for _, c := range comments {
		if strings.Contains(c.Body, commitHash) {
			return nil
		}
	}
	body := fmt.Sprintf("Pushed as commit %s.", commitHash)
	if err := n.tracker.AddComment(ctx, issue.ID, body); err != nil {
		return fmt.Errorf("comment on %s: %w", issue.ID, err)
	}
	return nil
}

// assignCommitter assigns the issue to the committer when it has no
// assignee and the commit author has an @openjdk.org address.
func (n *IssueNotifier) assignCommitter(ctx context.Context, issue tracker.Issue, commitHash string) error {
	if len(issue.Assignees) > 0 || n.LookupCommit == nil {
		return nil
	}
	commit, err := n.LookupCommit(ctx, commitHash)
	if err != nil {
		n.log.WithField("commit", commitHash).WithError(err).Warn("commit lookup failed")
		return nil
	}
	local, okSuffix := strings.CutSuffix(commit.Email, "@openjdk.org")
	if !okSuffix || local == "" {
		return nil
	}
	if err := n.tracker.SetAssignees(ctx, issue.ID, []string{local}); err != nil {
		return fmt.Errorf("assign %s: %w", issue.ID, err)
	}
	return nil
}

// UpdateResolvedInBuild applies the build precedence rules before writing a
// new resolved-in-build value.
func (n *IssueNotifier) UpdateResolvedInBuild(ctx context.Context, issue tracker.Issue, candidate string) error {
	if !jdkversion.ShouldReplaceBuild(issue.ResolvedInBuild, candidate) {
		return nil
	}
	if err := n.tracker.SetProperty(ctx, issue.ID, tracker.PropResolvedInBuild, []string{candidate}); err != nil {
		return fmt.Errorf("set resolved-in-build on %s: %w", issue.ID, err)
	}
	return nil
}

// labelReleaseStreamDuplicates applies the duplicate label across the
// family: in every stream with at least two issues, the earliest fix
// version goes unlabeled and every later one carries the label.
func (n *IssueNotifier) labelReleaseStreamDuplicates(ctx context.Context, family []tracker.Issue) error {
	if n.cfg.StreamDuplicateLabel == "" {
		return nil
	}
	type member struct {
		issue   tracker.Issue
		version jdkversion.Version
	}
	streams := map[string][]member{}
	for _, issue := range family {
		raw, ok := nonScratchFixVersion(issue)
		if !ok {
			continue
		}
		v, err := jdkversion.Parse(raw)
		if err != nil {
			continue
		}
		if v.Opt == "pool" || v.Opt == "open" {
			// Placeholders track a train, they never ship in a stream.
			continue
		}
		v.ResolvedInBuild = issue.ResolvedInBuild
		for _, key := range v.Streams() {
			streams[key] = append(streams[key], member{issue: issue, version: v})
		}
	}

	label := n.cfg.StreamDuplicateLabel
	for _, members := range streams {
		if len(members) < 2 {
			// Singleton streams are irrelevant.
			continue
		}
		sort.SliceStable(members, func(i, j int) bool {
			return members[i].version.LessThan(members[j].version)
		})
		for i, m := range members {
			has := hasLabel(m.issue, label)
			if i == 0 && has {
				if err := n.tracker.RemoveLabel(ctx, m.issue.ID, label); err != nil {
					return fmt.Errorf("unlabel %s: %w", m.issue.ID, err)
				}
			}
			if i > 0 && !has {
				if err := n.tracker.AddLabel(ctx, m.issue.ID, label); err != nil {
					return fmt.Errorf("label %s: %w", m.issue.ID, err)
				}
			}
		}
	}
	return nil
}

func hasLabel(issue tracker.Issue, label string) bool {
	for _, l := range issue.Labels {
		if l == label {
			return true
		}
	}
	return false
}
