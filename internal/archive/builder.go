package archive

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bkyoung/review-bridge/internal/domain"
)

// DefaultCombineWindow bounds how far apart two review comments on the same
// anchor may be and still collapse into one item.
const DefaultCombineWindow = 30 * time.Second

// Revision is one head revision of the pull request, oldest first. The
// first entry produces the PR-Opened item, every later one a PR-Revised
// item.
type Revision struct {
	Hash string
	Time time.Time
}

// Builder turns pull-request snapshots into archive-item sequences.
type Builder struct {
	filter        *Filter
	combineWindow time.Duration
}

// NewBuilder constructs a builder. A zero combine window falls back to the
// default.
func NewBuilder(filter *Filter, combineWindow time.Duration) *Builder {
	if combineWindow <= 0 {
		combineWindow = DefaultCombineWindow
	}
	return &Builder{filter: filter, combineWindow: combineWindow}
}

// Build produces the ordered, parent-linked item sequence for the snapshot.
// Recomputing over the same inputs yields identical ids and parents.
func (b *Builder) Build(pr *domain.PullRequest, revisions []Revision) []Item {
	var items []Item

	for i, rev := range revisions {
		if i == 0 {
			items = append(items, Item{
				ID:        ItemID(pr.ID.String(), KindPROpened),
				Kind:      KindPROpened,
				Author:    pr.Author,
				Timestamp: rev.Time,
				Body:      b.filter.Clean(pr.Body),
				HeadHash:  rev.Hash,
			})
			continue
		}
		items = append(items, Item{
			ID:        ItemID(rev.Hash, KindPRRevised),
			Kind:      KindPRRevised,
			Author:    pr.Author,
			Timestamp: rev.Time,
			HeadHash:  rev.Hash,
		})
	}

	for _, c := range pr.Comments {
		if b.filter.Ignored(c.Author, c.Body) {
			continue
		}
		body := b.filter.Clean(c.Body)
		if body == "" {
			continue
		}
		items = append(items, Item{
			ID:        ItemID(c.ID, KindComment),
			Kind:      KindComment,
			Author:    c.Author,
			Timestamp: c.CreatedAt,
			Body:      body,
		})
	}

	combined, replyTargets := b.combineReviewComments(pr.ReviewComments)
	items = append(items, combined...)

	for _, r := range pr.Reviews {
		if b.filter.IgnoredAuthor(r.Author) {
			continue
		}
		items = append(items, b.reviewItem(r))
	}

	sortItems(items)
	resolveParents(items, replyTargets)
	return items
}

// reviewItem maps a submitted review onto an item. Verdict-bearing reviews
// become verdict items; a plain review comment stays a review item. An
// empty verdict body renders the marked-as-reviewed template.
func (b *Builder) reviewItem(r domain.Review) Item {
	body := b.filter.Clean(r.Body)
	if r.Verdict == domain.VerdictComment {
		return Item{
			ID:        ItemID(r.ID, KindReview),
			Kind:      KindReview,
			Author:    r.Author,
			Timestamp: r.CreatedAt,
			Body:      body,
			Verdict:   r.Verdict,
		}
	}
	if body == "" {
		role := r.Role
		if role == "" {
			role = "no project role"
		}
		body = fmt.Sprintf("Marked as reviewed by %s (%s)", r.Author, role)
	}
	return Item{
		ID:        ItemID(r.ID, KindVerdict),
		Kind:      KindVerdict,
		Author:    r.Author,
		Timestamp: r.CreatedAt,
		Body:      body,
		Verdict:   r.Verdict,
	}
}

// combineReviewComments collapses review comments that share the same
// (file, line, author, base, head) anchor and were posted close in time
// into one item whose body lists each sub-comment in order. The returned
// map routes every source comment id to the item that carries it.
func (b *Builder) combineReviewComments(comments []domain.ReviewComment) ([]Item, map[string]string) {
	type anchor struct {
		path, author, base, head string
		line                     int
	}
	sorted := append([]domain.ReviewComment(nil), comments...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	var items []Item
	targets := map[string]string{}
	type group struct {
		item   int // index into items
		last   time.Time
		bodies []string
	}
	open := map[anchor]*group{}

	for _, rc := range sorted {
		if b.filter.Ignored(rc.Author, rc.Body) {
			continue
		}
		body := b.filter.Clean(rc.Body)
		if body == "" {
			continue
		}
		key := anchor{rc.Path, rc.Author, rc.BaseHash, rc.HeadHash, rc.Line}
		if g, ok := open[key]; ok && rc.CreatedAt.Sub(g.last) <= b.combineWindow && rc.ReplyTo == "" {
			g.bodies = append(g.bodies, body)
			g.last = rc.CreatedAt
			items[g.item].Body = strings.Join(g.bodies, "\n\n")
			targets[rc.ID] = items[g.item].ID
			continue
		}
		item := Item{
			ID:        ItemID(rc.ID, KindReviewComment),
			Kind:      KindReviewComment,
			Author:    rc.Author,
			Timestamp: rc.CreatedAt,
			Body:      body,
			Path:      rc.Path,
			Line:      rc.Line,
			BaseHash:  rc.BaseHash,
			HeadHash:  rc.HeadHash,
		}
		if rc.ReplyTo != "" {
			if parent, ok := targets[rc.ReplyTo]; ok {
				item.ParentID = parent
			}
		}
		items = append(items, item)
		targets[rc.ID] = item.ID
		open[key] = &group{item: len(items) - 1, last: rc.CreatedAt, bodies: []string{body}}
	}
	return items, targets
}

// sortItems orders items chronologically. Roots win timestamp ties so a
// revision posted in the same instant as a comment precedes it.
func sortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Timestamp.Equal(items[j].Timestamp) {
			return items[i].IsRoot() && !items[j].IsRoot()
		}
		return items[i].Timestamp.Before(items[j].Timestamp)
	})
}
