package mlbridge_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bkyoung/review-bridge/internal/cache"
	"github.com/bkyoung/review-bridge/internal/mail"
	"github.com/bkyoung/review-bridge/internal/mailinglist"
	"github.com/bkyoung/review-bridge/internal/usecase/mlbridge"
)

// bridgeAndReply runs a full outbound bridge, then plants the sent root in
// the archive with one external reply.
func bridgeAndReply(t *testing.T, f *fixture, replyBody string) *mail.Message {
	t.Helper()
	f.repo.AddPR(readyPR())
	f.runCycle(t)

	sent := f.sender.Sent()
	require.NotEmpty(t, sent)
	root := sent[0]

	reply := &mail.Message{
		ID:        "external-reply@test.test",
		From:      mail.Address{Name: "Commenter", Email: "c@test.test"},
		Subject:   "Re: " + root.Subject,
		Body:      replyBody,
		Date:      time.Now(),
		InReplyTo: root.ID,
	}
	f.archive.Add("dev", mailinglist.Conversation{First: root, Replies: []*mail.Message{reply}})
	return reply
}

func TestInboundReplyBecomesForgeComment(t *testing.T) {
	f := newFixture(t)
	reply := bridgeAndReply(t, f, "Looks good")

	f.runCycle(t)

	var bridged []string
	for _, body := range f.repo.PostedComments {
		if strings.Contains(body, "Mailing list message from") {
			bridged = append(bridged, body)
		}
	}
	require.Len(t, bridged, 1)
	body := bridged[0]
	assert.Contains(t, body, "[Commenter](mailto:c@test.test)")
	assert.Contains(t, body, "[dev](mailto:dev@list.test)")
	assert.Contains(t, body, "Looks good")

	ids := mlbridge.BridgedIDs(body)
	require.Len(t, ids, 1)
	assert.Equal(t, reply.ID, ids[0])
}

func TestSecondReaderPassCreatesNoDuplicate(t *testing.T) {
	f := newFixture(t)
	bridgeAndReply(t, f, "Looks good")

	f.runCycle(t)
	f.runCycle(t)

	count := 0
	for _, body := range f.repo.PostedComments {
		if strings.Contains(body, "Mailing list message from") {
			count++
		}
	}
	assert.Equal(t, 1, count, "the second pass recognizes its own marker")
}

func TestSelfOriginatedMailIsNotIngested(t *testing.T) {
	f := newFixture(t)
	f.repo.AddPR(readyPR())
	f.runCycle(t)

	sent := f.sender.Sent()
	require.NotEmpty(t, sent)
	root := sent[0]
	// The archive echoes our own mail back as a "reply".
	f.archive.Add("dev", mailinglist.Conversation{First: root, Replies: []*mail.Message{root}})

	f.runCycle(t)

	for _, body := range f.repo.PostedComments {
		assert.NotContains(t, body, "Mailing list message from")
	}
}

func TestUnknownConversationIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.repo.AddPR(readyPR())
	f.runCycle(t)

	foreign := &mail.Message{
		ID:      "foreign-root@elsewhere.test",
		Subject: "RFR: 9999: Something else",
		From:    mail.Address{Name: "Stranger", Email: "s@test.test"},
	}
	reply := &mail.Message{
		ID:        "foreign-reply@elsewhere.test",
		From:      mail.Address{Name: "Stranger", Email: "s@test.test"},
		Body:      "Interesting",
		InReplyTo: foreign.ID,
	}
	f.archive.Add("dev", mailinglist.Conversation{First: foreign, Replies: []*mail.Message{reply}})

	before := len(f.repo.PostedComments)
	f.runCycle(t)
	assert.Equal(t, before, len(f.repo.PostedComments))
}

func TestOversizeReplyReplacedWithNotice(t *testing.T) {
	f := newFixture(t)
	bridgeAndReply(t, f, strings.Repeat("x", 5000))

	f.runCycle(t)

	var bridged []string
	for _, body := range f.repo.PostedComments {
		if strings.Contains(body, "Mailing list message from") {
			bridged = append(bridged, body)
		}
	}
	require.Len(t, bridged, 1, "an oversize reply still produces a comment")
	assert.Contains(t, bridged[0], "too large")
	assert.NotContains(t, bridged[0], "xxxxxxxxxx")
}

func TestReplyIntoUnknownThreadPartIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.repo.AddPR(readyPR())
	f.runCycle(t)

	sent := f.sender.Sent()
	require.NotEmpty(t, sent)
	root := sent[0]
	orphan := &mail.Message{
		ID:        "orphan@test.test",
		From:      mail.Address{Name: "Commenter", Email: "c@test.test"},
		Body:      "Replying to nothing",
		InReplyTo: "never-seen@elsewhere.test",
	}
	f.archive.Add("dev", mailinglist.Conversation{First: root, Replies: []*mail.Message{orphan}})

	f.runCycle(t)

	for _, body := range f.repo.PostedComments {
		assert.NotContains(t, body, "Replying to nothing")
	}
}

func TestReaderSkipsCachedMessages(t *testing.T) {
	f := newFixture(t)
	c, err := cache.Open(":memory:")
	require.NoError(t, err)
	defer c.Close()

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	bot := mlbridge.NewBot(mlbridge.BotOptions{
		Config: mlbridge.Config{
			Sender:       mail.Address{Name: "Review Bridge", Email: "bridge@test.test"},
			Lists:        map[string][]mailinglist.List{"": {{Name: "dev", Email: "dev@list.test"}}},
			IgnoredUsers: []string{"bridge[bot]"},
			ReadyLabels:  []string{"rfr"},
			MaxReplySize: 1000,
		},
		Repo:      f.repo,
		Store:     f.store,
		Sender:    f.sender,
		Archive:   f.archive,
		Publisher: f.publisher,
		MsgCache:  c,
		Log:       log,
	})
	f.bot = bot

	bridgeAndReply(t, f, "Looks good")
	f.runCycle(t)
	f.runCycle(t)

	count := 0
	for _, body := range f.repo.PostedComments {
		if strings.Contains(body, "Mailing list message from") {
			count++
		}
	}
	assert.Equal(t, 1, count)

	seen, err := c.Seen(context.Background(), "dev", "external-reply@test.test")
	require.NoError(t, err)
	assert.True(t, seen, "the bridged reply is recorded in the cache")
}

func TestMarkerRoundTrip(t *testing.T) {
	marker := mlbridge.BridgedMarker("abc@test.test")
	assert.Contains(t, marker, "<!-- Bridged id (")
	ids := mlbridge.BridgedIDs("some text\n" + marker + "\nmore")
	require.Len(t, ids, 1)
	assert.Equal(t, "abc@test.test", ids[0])
}
