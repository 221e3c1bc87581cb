package domain

import (
	"fmt"
	"sort"
	"time"
)

// Forge-side pull request states.
const (
	PRStateOpen   = "open"
	PRStateClosed = "closed"
)

// Review verdicts as reported by the forge.
const (
	VerdictApproved         = "approved"
	VerdictChangesRequested = "changes-requested"
	VerdictComment          = "comment"
)

// PullRequestID is the stable entity id of a pull request:
// repository name plus forge-assigned number.
type PullRequestID struct {
	Repository string
	Number     int
}

// NewPullRequestID constructs an id from its parts.
func NewPullRequestID(repository string, number int) PullRequestID {
	return PullRequestID{Repository: repository, Number: number}
}

func (id PullRequestID) String() string {
	return fmt.Sprintf("%s/%d", id.Repository, id.Number)
}

// PullRequest is a point-in-time snapshot of a forge pull request.
// The forge owns the entity; the bridge only reads snapshots.
type PullRequest struct {
	ID           PullRequestID
	Title        string
	Body         string
	Author       string
	HeadHash     string
	BaseHash     string
	TargetBranch string
	Labels       []string
	State        string
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Comments       []Comment
	Reviews        []Review
	ReviewComments []ReviewComment
}

// HasLabel reports whether the snapshot carries the named label.
func (pr *PullRequest) HasLabel(name string) bool {
	for _, l := range pr.Labels {
		if l == name {
			return true
		}
	}
	return false
}

// Comment is a top-level discussion comment on a pull request.
type Comment struct {
	ID        string
	Author    string
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Review is a submitted review with a verdict.
type Review struct {
	ID        string
	Author    string
	Role      string // reviewer role as reported by the forge, e.g. "Reviewer"
	Verdict   string
	Body      string
	CreatedAt time.Time
}

// ReviewComment is a file-and-line anchored comment. ReplyTo carries the id
// of the comment it answers, when the forge reports one.
type ReviewComment struct {
	ID        string
	Author    string
	Body      string
	CreatedAt time.Time
	Path      string
	Line      int
	BaseHash  string
	HeadHash  string
	ReplyTo   string
}

// PullRequestState is the notifier's digest of a pull request. Equality is
// structural; a differing stored state means deltas must be emitted.
type PullRequestState struct {
	ID               PullRequestID
	IssueIDs         []string
	IntegratedCommit string
	Head             string
	State            string
	TargetBranch     string
}

// Equals compares two states structurally. Issue id order is irrelevant.
func (s PullRequestState) Equals(other PullRequestState) bool {
	if s.ID != other.ID ||
		s.IntegratedCommit != other.IntegratedCommit ||
		s.Head != other.Head ||
		s.State != other.State ||
		s.TargetBranch != other.TargetBranch {
		return false
	}
	if len(s.IssueIDs) != len(other.IssueIDs) {
		return false
	}
	a := append([]string(nil), s.IssueIDs...)
	b := append([]string(nil), other.IssueIDs...)
	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
