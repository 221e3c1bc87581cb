package notify_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bkyoung/review-bridge/internal/domain"
	"github.com/bkyoung/review-bridge/internal/scheduler"
	"github.com/bkyoung/review-bridge/internal/testutil"
	"github.com/bkyoung/review-bridge/internal/usecase/notify"
)

// recordingListener logs every callback as a readable event string.
type recordingListener struct {
	events []string
	err    error
}

func (l *recordingListener) OnNewPR(ctx context.Context, pr *domain.PullRequest) error {
	l.events = append(l.events, "new-pr")
	return l.err
}

func (l *recordingListener) OnNewIssue(ctx context.Context, pr *domain.PullRequest, issueID string) error {
	l.events = append(l.events, "new-issue:"+issueID)
	return l.err
}

func (l *recordingListener) OnRemovedIssue(ctx context.Context, pr *domain.PullRequest, issueID string) error {
	l.events = append(l.events, "removed-issue:"+issueID)
	return l.err
}

func (l *recordingListener) OnHeadChange(ctx context.Context, pr *domain.PullRequest, oldHead string) error {
	l.events = append(l.events, "head-change:"+oldHead)
	return l.err
}

func (l *recordingListener) OnStateChange(ctx context.Context, pr *domain.PullRequest, oldState string) error {
	l.events = append(l.events, "state-change:"+oldState)
	return l.err
}

func (l *recordingListener) OnTargetBranchChange(ctx context.Context, pr *domain.PullRequest, oldBranch string) error {
	l.events = append(l.events, "branch-change:"+oldBranch)
	return l.err
}

func (l *recordingListener) OnIntegratedPR(ctx context.Context, pr *domain.PullRequest, commitHash string) error {
	l.events = append(l.events, "integrated:"+commitHash)
	return l.err
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func notifyPR() *domain.PullRequest {
	return &domain.PullRequest{
		ID:    domain.NewPullRequestID("repo", 5),
		Title: "1234: Fix foo",
		Body: "Fix it.\n\n### Issues\n" +
			" * [TSTPRJ-1234](http://issues.test/browse/TSTPRJ-1234): Fix foo\n",
		HeadHash:     "head0",
		TargetBranch: "master",
		State:        domain.PRStateOpen,
		CreatedAt:    time.Now().Add(-time.Hour),
		UpdatedAt:    time.Now().Add(-time.Hour),
	}
}

func runAll(t *testing.T, bot *notify.Bot) {
	t.Helper()
	items, err := bot.ProducePeriodicItems(context.Background())
	require.NoError(t, err)
	for _, item := range items {
		_, err := item.Run(context.Background(), t.TempDir())
		require.NoError(t, err)
	}
}

func TestNewPREmitsNewPRAndIssueCallbacks(t *testing.T) {
	repo := testutil.NewFakeRepo("repo")
	repo.AddPR(notifyPR())
	listener := &recordingListener{}
	bot := notify.NewBot(notify.Config{Integrator: "openjdk-bot"}, repo, testutil.NewMemoryStore(), quietLogger(), listener)

	runAll(t, bot)

	assert.Equal(t, []string{"new-pr", "new-issue:TSTPRJ-1234"}, listener.events)
}

func TestUnchangedPREmitsNothing(t *testing.T) {
	repo := testutil.NewFakeRepo("repo")
	repo.AddPR(notifyPR())
	listener := &recordingListener{}
	bot := notify.NewBot(notify.Config{}, repo, testutil.NewMemoryStore(), quietLogger(), listener)

	runAll(t, bot)
	first := len(listener.events)
	runAll(t, bot)

	assert.Equal(t, first, len(listener.events))
}

func TestHeadAndIssueDeltas(t *testing.T) {
	repo := testutil.NewFakeRepo("repo")
	pr := notifyPR()
	repo.AddPR(pr)
	listener := &recordingListener{}
	bot := notify.NewBot(notify.Config{}, repo, testutil.NewMemoryStore(), quietLogger(), listener)
	runAll(t, bot)
	listener.events = nil

	pr.HeadHash = "head1"
	pr.Body = "Fix it.\n\n### Issues\n" +
		" * [TSTPRJ-1234](u): Fix foo\n" +
		" * [TSTPRJ-1240](u): Fix baz\n"
	runAll(t, bot)

	assert.Equal(t, []string{"new-issue:TSTPRJ-1240", "head-change:head0"}, listener.events)
}

func TestRemovedIssueAndStateChange(t *testing.T) {
	repo := testutil.NewFakeRepo("repo")
	pr := notifyPR()
	repo.AddPR(pr)
	listener := &recordingListener{}
	bot := notify.NewBot(notify.Config{}, repo, testutil.NewMemoryStore(), quietLogger(), listener)
	runAll(t, bot)
	listener.events = nil

	pr.Body = "Fix it, no issues block."
	pr.State = domain.PRStateClosed
	runAll(t, bot)

	assert.Equal(t, []string{"removed-issue:TSTPRJ-1234", "state-change:open"}, listener.events)
}

func TestIntegratedCallbackFiresOnce(t *testing.T) {
	repo := testutil.NewFakeRepo("repo")
	pr := notifyPR()
	repo.AddPR(pr)
	listener := &recordingListener{}
	bot := notify.NewBot(notify.Config{Integrator: "openjdk-bot"}, repo, testutil.NewMemoryStore(), quietLogger(), listener)
	runAll(t, bot)
	listener.events = nil

	hash := "0123456789abcdef0123456789abcdef01234567"
	pr.Comments = append(pr.Comments, domain.Comment{
		ID:     "c1",
		Author: "openjdk-bot",
		Body:   fmt.Sprintf("Pushed as commit %s.", hash),
	})
	runAll(t, bot)
	assert.Equal(t, []string{"integrated:" + hash}, listener.events)

	listener.events = nil
	runAll(t, bot)
	assert.Empty(t, listener.events, "integration is reported once")
}

func TestFailureMarkerSuspendsNotifier(t *testing.T) {
	repo := testutil.NewFakeRepo("repo")
	pr := notifyPR()
	pr.Body += "\n" + notify.TemporaryFailureMarker + "\n"
	repo.AddPR(pr)
	listener := &recordingListener{}
	bot := notify.NewBot(notify.Config{}, repo, testutil.NewMemoryStore(), quietLogger(), listener)

	runAll(t, bot)
	assert.Empty(t, listener.events)

	// Marker removed: the notifier catches up.
	pr.Body = notifyPR().Body
	runAll(t, bot)
	assert.Equal(t, []string{"new-pr", "new-issue:TSTPRJ-1234"}, listener.events)
}

func TestListenerFailureRetriesSameDelta(t *testing.T) {
	repo := testutil.NewFakeRepo("repo")
	repo.AddPR(notifyPR())
	listener := &recordingListener{err: fmt.Errorf("tracker down")}
	st := testutil.NewMemoryStore()
	bot := notify.NewBot(notify.Config{}, repo, st, quietLogger(), listener)

	items, err := bot.ProducePeriodicItems(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, items)
	_, runErr := items[0].(scheduler.WorkItem).Run(context.Background(), t.TempDir())
	require.Error(t, runErr)

	// State was not stored, so the next cycle re-emits.
	listener.err = nil
	listener.events = nil
	runAll(t, bot)
	assert.Equal(t, []string{"new-pr", "new-issue:TSTPRJ-1234"}, listener.events)
}
