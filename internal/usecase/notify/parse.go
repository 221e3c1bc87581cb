package notify

import (
	"regexp"
	"strings"

	"github.com/bkyoung/review-bridge/internal/domain"
)

// TemporaryFailureMarker in a pull-request body suspends notifier actions
// for that pull request until it is removed.
const TemporaryFailureMarker = "<!-- TEMPORARY_ISSUE_FAILURE -->"

var (
	issueBulletPattern = regexp.MustCompile(`^\s*[-*]?\s*\[([A-Za-z][A-Za-z0-9]*-[0-9]+)\]\([^)]*\)`)
	headingPattern     = regexp.MustCompile(`^#{1,6}\s*(.+?)\s*$`)
	pushedPattern      = regexp.MustCompile(`Pushed as commit ([0-9a-f]{40})\.`)
)

// parseIssueIDs extracts tracker issue ids from the dedicated issues block
// of a pull-request body: a heading ("Issue" or "Issues" by default)
// followed by bullet lines linking each id.
func parseIssueIDs(body string, headings []string) []string {
	if len(headings) == 0 {
		headings = []string{"Issue", "Issues"}
	}
	wanted := make(map[string]bool, len(headings))
	for _, h := range headings {
		wanted[strings.ToLower(h)] = true
	}

	var ids []string
	inBlock := false
	for _, line := range strings.Split(body, "\n") {
		if m := headingPattern.FindStringSubmatch(line); m != nil {
			inBlock = wanted[strings.ToLower(m[1])]
			continue
		}
		if !inBlock {
			continue
		}
		if m := issueBulletPattern.FindStringSubmatch(line); m != nil {
			ids = append(ids, m[1])
			continue
		}
		if strings.TrimSpace(line) != "" {
			// A non-bullet line ends the block.
			inBlock = false
		}
	}
	return ids
}

// integratedCommit extracts the integration hash from the integrator's
// "Pushed as commit <hash>." comment.
func integratedCommit(pr *domain.PullRequest, integrator string) string {
	for _, c := range pr.Comments {
		if integrator != "" && c.Author != integrator {
			continue
		}
		if m := pushedPattern.FindStringSubmatch(c.Body); m != nil {
			return m[1]
		}
	}
	return ""
}
