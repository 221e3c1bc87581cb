package mail_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bkyoung/review-bridge/internal/mail"
)

func TestComposeParseRoundTrip(t *testing.T) {
	msg := &mail.Message{
		ID:      "abc123@bridge.test",
		From:    mail.Address{Name: "Review Bridge", Email: "bridge@test.test"},
		To:      []mail.Address{{Name: "dev", Email: "dev@list.test"}},
		Subject: "RFR: 1234: Fix foo",
		Body:    "This should now be ready\n\nCommit messages:\n - Fix foo\n",
		Date:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		InReplyTo: "root@bridge.test",
		References: []string{"root@bridge.test"},
		Headers:    map[string]string{"X-Bridge": "review-bridge"},
	}

	raw, err := msg.Compose()
	require.NoError(t, err)

	parsed, err := mail.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, parsed.ID)
	assert.Equal(t, msg.Subject, parsed.Subject)
	assert.Equal(t, "bridge@test.test", parsed.From.Email)
	assert.Equal(t, "Review Bridge", parsed.From.Name)
	require.Len(t, parsed.To, 1)
	assert.Equal(t, "dev@list.test", parsed.To[0].Email)
	assert.Equal(t, msg.InReplyTo, parsed.InReplyTo)
	assert.Equal(t, msg.References, parsed.References)
	assert.Equal(t, strings.TrimRight(msg.Body, "\n"), strings.TrimRight(parsed.Body, "\n"))
}

func TestComposeCarriesExtraHeaders(t *testing.T) {
	msg := &mail.Message{
		ID:      "abc@bridge.test",
		From:    mail.Address{Email: "bridge@test.test"},
		To:      []mail.Address{{Email: "dev@list.test"}},
		Subject: "RFR: x",
		Body:    "body",
		Date:    time.Now(),
		Headers: map[string]string{"X-Custom": "value"},
	}
	raw, err := msg.Compose()
	require.NoError(t, err)
	assert.Contains(t, string(raw), "X-Custom: value")
}

func TestMessageIDIsDeterministic(t *testing.T) {
	a := mail.MessageID("repo/7", "item1", "bridge.test")
	b := mail.MessageID("repo/7", "item1", "bridge.test")
	c := mail.MessageID("repo/7", "item2", "bridge.test")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasSuffix(a, "@bridge.test"))
	assert.NotContains(t, a, "<")
}

func TestAddressString(t *testing.T) {
	assert.Equal(t, "dev@list.test", mail.Address{Email: "dev@list.test"}.String())
	assert.Equal(t, "Dev List <dev@list.test>", mail.Address{Name: "Dev List", Email: "dev@list.test"}.String())
}
