package mlbridge

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bkyoung/review-bridge/internal/archive"
	"github.com/bkyoung/review-bridge/internal/domain"
	"github.com/bkyoung/review-bridge/internal/textconv"
	"github.com/bkyoung/review-bridge/internal/vcs"
)

var issueTitlePattern = regexp.MustCompile(`^([1-9][0-9]{3,}): `)

// rootSubject builds the thread subject. Revised roots reuse it unchanged;
// threading is carried by Message-IDs, never by subject decoration.
func (c *Config) rootSubject(pr *domain.PullRequest, defaultBranch string) string {
	var b strings.Builder
	b.WriteString("RFR: ")
	if c.RepoInSubject {
		b.WriteString(pr.ID.Repository)
		b.WriteString(": ")
	}
	if c.BranchInSubject && defaultBranch != "" && pr.TargetBranch != defaultBranch {
		fmt.Fprintf(&b, "[%s] ", pr.TargetBranch)
	}
	b.WriteString(pr.Title)
	return b.String()
}

// replySubject adorns a reply subject with the review verdict when there is
// one.
func replySubject(item archive.Item, root string) string {
	switch item.Verdict {
	case domain.VerdictApproved:
		return "[Approved] Re: " + root
	case domain.VerdictChangesRequested:
		return "Changes requested: Re: " + root
	}
	return "Re: " + root
}

// issueIDs extracts tracker issue ids from the pull-request title, applying
// the configured project prefix to bare numeric ids.
func (c *Config) issueIDs(title string) []string {
	m := issueTitlePattern.FindStringSubmatch(title)
	if m == nil {
		return nil
	}
	id := m[1]
	if c.IssueProject != "" {
		id = c.IssueProject + "-" + id
	}
	return []string{id}
}

// renderRootBody renders the PR-Opened mail: the filtered description
// followed by the commit list and the patch pointers.
func (c *Config) renderRootBody(pr *domain.PullRequest, body, prURL, fetchURL string, commits []vcs.Commit, webrevURL string) string {
	var b strings.Builder
	if body != "" {
		b.WriteString(textconv.MarkdownToText(body))
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Commit messages:\n")
	for _, commit := range commits {
		fmt.Fprintf(&b, " - %s\n", firstLine(commit.Message))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Changes: %s/files\n", prURL)
	if webrevURL != "" {
		fmt.Fprintf(&b, " Webrev: %s\n", webrevURL)
	}
	for _, issue := range c.issueIDs(pr.Title) {
		fmt.Fprintf(&b, "  Issue: %s/browse/%s\n", strings.TrimSuffix(c.IssueTrackerURL, "/"), issue)
	}
	fmt.Fprintf(&b, "  Patch: %s.diff\n", prURL)
	fmt.Fprintf(&b, "  Fetch: git fetch %s pull/%d/head:pull/%d\n", fetchURL, pr.ID.Number, pr.ID.Number)
	return b.String()
}

// renderRevisedBody renders the PR-Revised mail. A rebase is described as a
// new target base and carries no incremental webrev.
func renderRevisedBody(pr *domain.PullRequest, prURL string, commits []vcs.Commit, full, incremental domain.WebrevArtifact, rebase bool) string {
	var b strings.Builder
	if rebase {
		b.WriteString("The pull request has been updated with a new target base due to a rebase.\n\n")
	} else {
		noun := "commits"
		if len(commits) == 1 {
			noun = "commit"
		}
		fmt.Fprintf(&b, "The pull request has been updated with %d additional %s since the last revision:\n\n", len(commits), noun)
		for _, commit := range commits {
			fmt.Fprintf(&b, " - %s\n", firstLine(commit.Message))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Changes:\n")
	fmt.Fprintf(&b, "  - all: %s/files\n", prURL)
	if !rebase && full.BaseHash != "" {
		fmt.Fprintf(&b, "  - new: %s/files/%s..%s\n", prURL, abbreviate(incrementalBase(full, incremental)), abbreviate(full.HeadHash))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Webrevs:\n")
	fmt.Fprintf(&b, " - full: %s\n", full.URL)
	if !rebase && incremental.URL != "" {
		fmt.Fprintf(&b, " - incr: %s\n", incremental.URL)
	}
	return b.String()
}

func incrementalBase(full, incremental domain.WebrevArtifact) string {
	if incremental.BaseHash != "" {
		return incremental.BaseHash
	}
	return full.BaseHash
}

// renderItemBody renders a discussion item: the quoted parent followed by
// the item body, converted for the list.
func renderItemBody(item archive.Item, parent *archive.Item) string {
	var b strings.Builder
	if parent != nil && parent.Body != "" && !parent.IsRoot() {
		b.WriteString(textconv.Quote(textconv.MarkdownToText(parent.Body)))
		b.WriteString("\n\n")
	}
	b.WriteString(textconv.MarkdownToText(item.Body))
	return b.String()
}

// renderReviewCommentBody prefixes the file anchor and a context window
// read from the head-revision snapshot.
func renderReviewCommentBody(item archive.Item, parent *archive.Item, contextLines int, reader fileReader) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s line %d:\n\n", item.Path, item.Line)
	if ctx := fileContext(reader, item, contextLines); ctx != "" {
		b.WriteString(ctx)
		b.WriteString("\n")
	}
	b.WriteString(renderItemBody(item, parent))
	return b.String()
}

// fileReader reads a file at a revision; nil content means no snapshot is
// available and the context window is omitted.
type fileReader func(revision, path string) []byte

// fileContext renders the quoted lines around the anchored line.
func fileContext(reader fileReader, item archive.Item, contextLines int) string {
	if reader == nil {
		return ""
	}
	content := reader(item.HeadHash, item.Path)
	if content == nil {
		return ""
	}
	lines := strings.Split(strings.TrimSuffix(string(content), "\n"), "\n")
	if item.Line < 1 || item.Line > len(lines) {
		return ""
	}
	start := item.Line - contextLines
	if start < 1 {
		start = 1
	}
	end := item.Line + contextLines
	if end > len(lines) {
		end = len(lines)
	}
	var b strings.Builder
	for n := start; n <= end; n++ {
		fmt.Fprintf(&b, "> %d: %s\n", n, lines[n-1])
	}
	return b.String()
}

// renderStateChangeBody announces a closed or integrated pull request.
func renderStateChangeBody(pr *domain.PullRequest, state, prURL string) string {
	switch state {
	case domain.BridgeStateIntegrated:
		return fmt.Sprintf("This pull request has been integrated.\n\nPull request: %s\n", prURL)
	default:
		return fmt.Sprintf("This pull request has been closed without being integrated.\n\nPull request: %s\n", prURL)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}

func abbreviate(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
