package archive_test

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bkyoung/review-bridge/internal/archive"
	"github.com/bkyoung/review-bridge/internal/domain"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newBuilder() *archive.Builder {
	return archive.NewBuilder(archive.NewFilter(nil, nil, ""), 0)
}

func basePR() *domain.PullRequest {
	return &domain.PullRequest{
		ID:           domain.NewPullRequestID("repo", 7),
		Title:        "1234: Fix foo",
		Body:         "This should now be ready",
		Author:       "author",
		HeadHash:     "head0",
		TargetBranch: "master",
		State:        domain.PRStateOpen,
		CreatedAt:    t0,
	}
}

func revisions(hashes ...string) []archive.Revision {
	out := make([]archive.Revision, len(hashes))
	for i, h := range hashes {
		out[i] = archive.Revision{Hash: h, Time: t0.Add(time.Duration(i) * time.Hour)}
	}
	return out
}

func TestBuildEmitsOneOpenedAndOneRevisedPerHead(t *testing.T) {
	pr := basePR()
	items := newBuilder().Build(pr, revisions("head0", "head1", "head2"))

	require.Len(t, items, 3)
	assert.Equal(t, archive.KindPROpened, items[0].Kind)
	assert.Empty(t, items[0].ParentID)
	assert.Equal(t, archive.KindPRRevised, items[1].Kind)
	assert.Equal(t, archive.KindPRRevised, items[2].Kind)
	assert.Equal(t, "head1", items[1].HeadHash)
	assert.Equal(t, "head2", items[2].HeadHash)
}

func TestBuildIsDeterministic(t *testing.T) {
	pr := basePR()
	pr.Comments = []domain.Comment{
		{ID: "c1", Author: "reviewer", Body: "Looks fine", CreatedAt: t0.Add(time.Minute)},
	}
	first := newBuilder().Build(pr, revisions("head0"))
	second := newBuilder().Build(pr, revisions("head0"))
	assert.Equal(t, first, second)
}

func TestBuildFiltersComments(t *testing.T) {
	filter := archive.NewFilter(
		[]string{"bot"},
		[]*regexp.Regexp{regexp.MustCompile(`^/integrate`)},
		"<!-- hidden below -->",
	)
	b := archive.NewBuilder(filter, 0)

	pr := basePR()
	pr.Comments = []domain.Comment{
		{ID: "c1", Author: "bot", Body: "Webrev posted", CreatedAt: t0.Add(time.Minute)},
		{ID: "c2", Author: "author", Body: "/integrate", CreatedAt: t0.Add(2 * time.Minute)},
		{ID: "c3", Author: "reviewer", Body: "Visible <!-- not this --> text", CreatedAt: t0.Add(3 * time.Minute)},
		{ID: "c4", Author: "reviewer", Body: "Keep this\n<!-- hidden below -->\ndrop this", CreatedAt: t0.Add(4 * time.Minute)},
		{ID: "c5", Author: "reviewer", Body: "<!-- only a marker -->", CreatedAt: t0.Add(5 * time.Minute)},
	}
	items := b.Build(pr, revisions("head0"))

	var comments []archive.Item
	for _, item := range items {
		if item.Kind == archive.KindComment {
			comments = append(comments, item)
		}
	}
	require.Len(t, comments, 2)
	assert.Equal(t, "Visible  text", comments[0].Body)
	assert.Equal(t, "Keep this", comments[1].Body)
}

func TestCombineRapidReviewCommentsOnSameAnchor(t *testing.T) {
	pr := basePR()
	bodies := []string{
		"Review comment",
		"Another review comment",
		"Further review comment",
		"Final review comment",
	}
	for i, body := range bodies {
		pr.ReviewComments = append(pr.ReviewComments, domain.ReviewComment{
			ID:        string(rune('a' + i)),
			Author:    "reviewer",
			Body:      body,
			CreatedAt: t0.Add(time.Duration(i) * 5 * time.Second),
			Path:      "src/main.c",
			Line:      42,
			BaseHash:  "base",
			HeadHash:  "head0",
		})
	}
	items := newBuilder().Build(pr, revisions("head0"))

	var rcs []archive.Item
	for _, item := range items {
		if item.Kind == archive.KindReviewComment {
			rcs = append(rcs, item)
		}
	}
	require.Len(t, rcs, 1, "rapid comments on one anchor combine into one item")
	combined := rcs[0].Body
	last := -1
	for _, body := range bodies {
		idx := indexIn(t, combined, body)
		assert.Greater(t, idx, last, "sub-comments keep their order")
		last = idx
	}
}

func TestSlowReviewCommentsStaySeparate(t *testing.T) {
	pr := basePR()
	for i, body := range []string{"First", "Second"} {
		pr.ReviewComments = append(pr.ReviewComments, domain.ReviewComment{
			ID:        string(rune('a' + i)),
			Author:    "reviewer",
			Body:      body,
			CreatedAt: t0.Add(time.Duration(i) * 10 * time.Minute),
			Path:      "src/main.c",
			Line:      42,
			BaseHash:  "base",
			HeadHash:  "head0",
		})
	}
	items := newBuilder().Build(pr, revisions("head0"))

	count := 0
	for _, item := range items {
		if item.Kind == archive.KindReviewComment {
			count++
		}
	}
	assert.Equal(t, 2, count)
}

func TestReviewItems(t *testing.T) {
	pr := basePR()
	pr.Reviews = []domain.Review{
		{ID: "r1", Author: "rev1", Role: "Reviewer", Verdict: domain.VerdictApproved, Body: "", CreatedAt: t0.Add(time.Minute)},
		{ID: "r2", Author: "rev2", Verdict: domain.VerdictComment, Body: "Some thoughts", CreatedAt: t0.Add(2 * time.Minute)},
	}
	items := newBuilder().Build(pr, revisions("head0"))

	require.Len(t, items, 3)
	verdict := items[1]
	assert.Equal(t, archive.KindVerdict, verdict.Kind)
	assert.Equal(t, "Marked as reviewed by rev1 (Reviewer)", verdict.Body)
	assert.Equal(t, domain.VerdictApproved, verdict.Verdict)

	review := items[2]
	assert.Equal(t, archive.KindReview, review.Kind)
	assert.Equal(t, "Some thoughts", review.Body)
}

func indexIn(t *testing.T, haystack, needle string) int {
	t.Helper()
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	t.Fatalf("expected %q in %q", needle, haystack)
	return -1
}
