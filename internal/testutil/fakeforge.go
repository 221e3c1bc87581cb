package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bkyoung/review-bridge/internal/domain"
	"github.com/bkyoung/review-bridge/internal/forge"
)

// FakeRepo is an in-memory forge.Repository.
type FakeRepo struct {
	mu        sync.Mutex
	RepoName  string
	PRs       map[int]*domain.PullRequest
	LabelSet  []forge.Label
	commentID int

	// PostedComments records every PostComment body in order.
	PostedComments []string
	// UpdatedComments records every UpdateComment body in order.
	UpdatedComments []string
	// Replies records PostReviewCommentReply bodies.
	Replies []string
}

// NewFakeRepo returns an empty repository.
func NewFakeRepo(name string) *FakeRepo {
	return &FakeRepo{RepoName: name, PRs: map[int]*domain.PullRequest{}}
}

// AddPR registers a pull request snapshot.
func (r *FakeRepo) AddPR(pr *domain.PullRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.PRs[pr.ID.Number] = pr
}

func (r *FakeRepo) Name() string { return r.RepoName }

func (r *FakeRepo) WebURL(number int) string {
	return fmt.Sprintf("https://forge.test/%s/pull/%d", r.RepoName, number)
}

func (r *FakeRepo) PullRequests(ctx context.Context) ([]domain.PullRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.PullRequest
	for _, pr := range r.PRs {
		out = append(out, *pr)
	}
	return out, nil
}

func (r *FakeRepo) PullRequest(ctx context.Context, number int) (domain.PullRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pr, ok := r.PRs[number]
	if !ok {
		return domain.PullRequest{}, fmt.Errorf("no pull request %d", number)
	}
	return *pr, nil
}

func (r *FakeRepo) AddLabel(ctx context.Context, number int, label string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pr, ok := r.PRs[number]
	if !ok {
		return fmt.Errorf("no pull request %d", number)
	}
	pr.Labels = append(pr.Labels, label)
	return nil
}

func (r *FakeRepo) RemoveLabel(ctx context.Context, number int, label string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pr, ok := r.PRs[number]
	if !ok {
		return fmt.Errorf("no pull request %d", number)
	}
	for i, l := range pr.Labels {
		if l == label {
			pr.Labels = append(pr.Labels[:i], pr.Labels[i+1:]...)
			break
		}
	}
	return nil
}

func (r *FakeRepo) PostComment(ctx context.Context, number int, body string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pr, ok := r.PRs[number]
	if !ok {
		return "", fmt.Errorf("no pull request %d", number)
	}
	r.commentID++
	id := fmt.Sprintf("fc%d", r.commentID)
	pr.Comments = append(pr.Comments, domain.Comment{
		ID:        id,
		Author:    "bridge[bot]",
		Body:      body,
		CreatedAt: time.Now(),
	})
	r.PostedComments = append(r.PostedComments, body)
	return id, nil
}

func (r *FakeRepo) UpdateComment(ctx context.Context, number int, commentID, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pr, ok := r.PRs[number]
	if !ok {
		return fmt.Errorf("no pull request %d", number)
	}
	for i, c := range pr.Comments {
		if c.ID == commentID {
			pr.Comments[i].Body = body
			r.UpdatedComments = append(r.UpdatedComments, body)
			return nil
		}
	}
	return fmt.Errorf("no comment %s", commentID)
}

func (r *FakeRepo) PostReviewCommentReply(ctx context.Context, number int, replyTo, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Replies = append(r.Replies, body)
	return nil
}

func (r *FakeRepo) Labels(ctx context.Context) ([]forge.Label, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]forge.Label(nil), r.LabelSet...), nil
}

func (r *FakeRepo) CreateLabel(ctx context.Context, label forge.Label) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.LabelSet = append(r.LabelSet, label)
	return nil
}

func (r *FakeRepo) UpdateLabel(ctx context.Context, label forge.Label) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, l := range r.LabelSet {
		if l.Name == label.Name {
			r.LabelSet[i] = label
			return nil
		}
	}
	return fmt.Errorf("no label %s", label.Name)
}

func (r *FakeRepo) DeleteLabel(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, l := range r.LabelSet {
		if l.Name == name {
			r.LabelSet = append(r.LabelSet[:i], r.LabelSet[i+1:]...)
			return nil
		}
	}
	return nil
}
