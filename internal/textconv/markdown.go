// Package textconv converts between the forge's Markdown dialect and the
// plain text that goes out on (and comes back from) the mailing list.
package textconv

import (
	"strings"

	"github.com/enescakir/emoji"
)

// MarkdownToText renders forge Markdown as list-ready plain text: emoji
// shorthands become their code points, fenced code blocks are unwrapped,
// and suggestion blocks are inlined under a "Suggestion:" line.
func MarkdownToText(body string) string {
	body = emoji.Parse(body)

	var out []string
	inFence := false
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if !inFence {
				inFence = true
				if strings.TrimPrefix(trimmed, "```") == "suggestion" {
					out = append(out, "Suggestion:")
					out = append(out, "")
				}
			} else {
				inFence = false
			}
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// TextToMarkdown escapes inbound list text so the forge renders it
// verbatim: list-prefix characters and asterisks get a backslash,
// blockquote runs survive with a blank line between runs, and leading
// whitespace is encoded as entities so indentation is kept.
func TextToMarkdown(body string) string {
	lines := strings.Split(body, "\n")
	var out []string
	inQuote := false
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), ">") {
			if !inQuote && len(out) > 0 && out[len(out)-1] != "" {
				out = append(out, "")
			}
			inQuote = true
			out = append(out, line)
			continue
		}
		if inQuote {
			inQuote = false
			if strings.TrimSpace(line) != "" {
				out = append(out, "")
			}
		}
		out = append(out, escapeLine(line))
	}
	return strings.Join(out, "\n")
}

// escapeLine neutralizes Markdown syntax in one line of list text.
func escapeLine(line string) string {
	leading := 0
	for leading < len(line) && (line[leading] == ' ' || line[leading] == '\t') {
		leading++
	}
	var b strings.Builder
	for _, c := range line[:leading] {
		if c == '\t' {
			b.WriteString("&#9;")
		} else {
			b.WriteString("&#32;")
		}
	}
	rest := line[leading:]
	if rest != "" {
		switch rest[0] {
		case '-', '+', '#':
			b.WriteByte('\\')
		}
	}
	for i := 0; i < len(rest); i++ {
		if rest[i] == '*' {
			b.WriteByte('\\')
		}
		b.WriteByte(rest[i])
	}
	return b.String()
}

// Quote prefixes every line of body with "> " for inclusion in a reply.
func Quote(body string) string {
	lines := strings.Split(strings.TrimRight(body, "\n"), "\n")
	for i, line := range lines {
		if line == "" {
			lines[i] = ">"
		} else {
			lines[i] = "> " + line
		}
	}
	return strings.Join(lines, "\n")
}
