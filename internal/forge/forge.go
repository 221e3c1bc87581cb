// Package forge defines the interface the bridge consumes from a code-review
// forge. Implementations live outside the core; tests inject fakes.
package forge

import (
	"context"

	"github.com/bkyoung/review-bridge/internal/domain"
)

// Label is a forge repository label.
type Label struct {
	Name        string
	Description string
}

// Host is a forge instance holding repositories.
type Host interface {
	// Repositories enumerates the repository names visible to the bridge.
	Repositories(ctx context.Context) ([]string, error)

	// Repository opens a handle on a named repository.
	Repository(ctx context.Context, name string) (Repository, error)
}

// Repository exposes the pull-request surface of one forge repository.
type Repository interface {
	Name() string

	// WebURL returns the public URL of a pull request.
	WebURL(number int) string

	// PullRequests returns snapshots of the repository's open pull requests.
	PullRequests(ctx context.Context) ([]domain.PullRequest, error)

	// PullRequest returns a snapshot of one pull request.
	PullRequest(ctx context.Context, number int) (domain.PullRequest, error)

	AddLabel(ctx context.Context, number int, label string) error
	RemoveLabel(ctx context.Context, number int, label string) error

	// PostComment posts a new top-level comment and returns its id.
	PostComment(ctx context.Context, number int, body string) (string, error)

	// UpdateComment replaces the body of an existing comment.
	UpdateComment(ctx context.Context, number int, commentID, body string) error

	// PostReviewCommentReply answers an existing review comment.
	PostReviewCommentReply(ctx context.Context, number int, replyTo, body string) error

	// Labels enumerates the repository's label definitions.
	Labels(ctx context.Context) ([]Label, error)

	CreateLabel(ctx context.Context, label Label) error
	UpdateLabel(ctx context.Context, label Label) error
	DeleteLabel(ctx context.Context, name string) error
}
