package textconv_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bkyoung/review-bridge/internal/textconv"
)

func TestMarkdownToTextUnwrapsCodeFences(t *testing.T) {
	in := "Before\n```java\nint x = 1;\n```\nAfter"
	out := textconv.MarkdownToText(in)
	assert.Equal(t, "Before\nint x = 1;\nAfter", out)
}

func TestMarkdownToTextInlinesSuggestionBlocks(t *testing.T) {
	in := "```suggestion\nreturn x + 1;\n```"
	out := textconv.MarkdownToText(in)
	assert.Equal(t, "Suggestion:\n\nreturn x + 1;", out)
}

func TestMarkdownToTextExpandsEmojiShorthand(t *testing.T) {
	out := textconv.MarkdownToText("Nice :smile:")
	assert.NotContains(t, out, ":smile:")
	assert.Contains(t, out, "Nice ")
}

func TestTextToMarkdownEscapesListPrefixes(t *testing.T) {
	assert.Equal(t, `\- item`, textconv.TextToMarkdown("- item"))
	assert.Equal(t, `\+ item`, textconv.TextToMarkdown("+ item"))
	assert.Equal(t, `\# heading`, textconv.TextToMarkdown("# heading"))
	assert.Equal(t, `a \* b \* c`, textconv.TextToMarkdown("a * b * c"))
}

func TestTextToMarkdownEncodesLeadingWhitespace(t *testing.T) {
	assert.Equal(t, "&#32;&#32;indented", textconv.TextToMarkdown("  indented"))
	assert.Equal(t, "&#9;tabbed", textconv.TextToMarkdown("\ttabbed"))
}

func TestTextToMarkdownSeparatesBlockquoteRuns(t *testing.T) {
	in := "intro\n> quoted one\n> quoted two\nanswer"
	out := textconv.TextToMarkdown(in)
	assert.Equal(t, "intro\n\n> quoted one\n> quoted two\n\nanswer", out)
}

func TestTextToMarkdownKeepsSingleQuoteRunIntact(t *testing.T) {
	in := "> a\n> b"
	out := textconv.TextToMarkdown(in)
	assert.Equal(t, "> a\n> b", out)
}

func TestQuote(t *testing.T) {
	assert.Equal(t, "> one\n>\n> two", textconv.Quote("one\n\ntwo\n"))
}

func TestRoundTripPreservesQuoteIndentation(t *testing.T) {
	original := "Reply text\n> earlier line\n> another line"
	asMarkdown := textconv.TextToMarkdown(original)
	assert.Contains(t, asMarkdown, "> earlier line\n> another line")
}
