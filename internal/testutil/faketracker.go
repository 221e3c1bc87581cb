package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bkyoung/review-bridge/internal/tracker"
)

// FakeTracker is an in-memory tracker.Client.
type FakeTracker struct {
	mu       sync.Mutex
	Issues   map[string]*tracker.Issue
	comments map[string][]tracker.Comment
	nextID   int
	Project  string
}

// NewFakeTracker returns an empty tracker creating ids under the project
// key.
func NewFakeTracker(project string) *FakeTracker {
	return &FakeTracker{
		Issues:   map[string]*tracker.Issue{},
		comments: map[string][]tracker.Comment{},
		Project:  project,
		nextID:   100,
	}
}

// Put registers an issue.
func (f *FakeTracker) Put(issue tracker.Issue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := issue
	f.Issues[issue.ID] = &copied
}

// CommentsOf returns the comments posted on an issue.
func (f *FakeTracker) CommentsOf(id string) []tracker.Comment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tracker.Comment(nil), f.comments[id]...)
}

func (f *FakeTracker) get(id string) (*tracker.Issue, error) {
	issue, ok := f.Issues[id]
	if !ok {
		return nil, fmt.Errorf("no issue %s", id)
	}
	return issue, nil
}

func (f *FakeTracker) Issue(ctx context.Context, id string) (tracker.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, err := f.get(id)
	if err != nil {
		return tracker.Issue{}, err
	}
	return *issue, nil
}

func (f *FakeTracker) Links(ctx context.Context, id string) ([]tracker.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, err := f.get(id)
	if err != nil {
		return nil, err
	}
	return append([]tracker.Link(nil), issue.Links...), nil
}

func (f *FakeTracker) AddLink(ctx context.Context, id string, link tracker.Link) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, err := f.get(id)
	if err != nil {
		return err
	}
	issue.Links = append(issue.Links, link)
	return nil
}

func (f *FakeTracker) SetState(ctx context.Context, id, state string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, err := f.get(id)
	if err != nil {
		return err
	}
	issue.State = state
	return nil
}

func (f *FakeTracker) SetAssignees(ctx context.Context, id string, assignees []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, err := f.get(id)
	if err != nil {
		return err
	}
	issue.Assignees = assignees
	return nil
}

func (f *FakeTracker) AddLabel(ctx context.Context, id, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, err := f.get(id)
	if err != nil {
		return err
	}
	issue.Labels = append(issue.Labels, label)
	return nil
}

func (f *FakeTracker) RemoveLabel(ctx context.Context, id, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, err := f.get(id)
	if err != nil {
		return err
	}
	for i, l := range issue.Labels {
		if l == label {
			issue.Labels = append(issue.Labels[:i], issue.Labels[i+1:]...)
			break
		}
	}
	return nil
}

func (f *FakeTracker) Comments(ctx context.Context, id string) ([]tracker.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.get(id); err != nil {
		return nil, err
	}
	return append([]tracker.Comment(nil), f.comments[id]...), nil
}

func (f *FakeTracker) AddComment(ctx context.Context, id, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.get(id); err != nil {
		return err
	}
	f.comments[id] = append(f.comments[id], tracker.Comment{
		Author:    "bridge",
		Body:      body,
		CreatedAt: time.Now(),
	})
	return nil
}

func (f *FakeTracker) CreateIssue(ctx context.Context, issueType, title string, properties map[string][]string) (tracker.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	issue := tracker.Issue{
		ID:    fmt.Sprintf("%s-%d", f.Project, f.nextID),
		Type:  issueType,
		Title: title,
		State: tracker.StateOpen,
	}
	if v, ok := properties[tracker.PropFixVersions]; ok {
		issue.FixVersions = v
	}
	if v, ok := properties[tracker.PropSecurityLevel]; ok && len(v) > 0 {
		issue.SecurityLevel = v[0]
	}
	f.Issues[issue.ID] = &issue
	return issue, nil
}

func (f *FakeTracker) SetProperty(ctx context.Context, id, name string, values []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, err := f.get(id)
	if err != nil {
		return err
	}
	switch name {
	case tracker.PropFixVersions:
		issue.FixVersions = values
	case tracker.PropResolvedInBuild:
		if len(values) > 0 {
			issue.ResolvedInBuild = values[0]
		}
	case tracker.PropSecurityLevel:
		if len(values) > 0 {
			issue.SecurityLevel = values[0]
		}
	}
	return nil
}
