package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bkyoung/review-bridge/internal/domain"
)

func TestParseIssueIDs(t *testing.T) {
	body := `A fix for the frobnicator.

### Issues
 * [TSTPRJ-1234](http://issues.test/browse/TSTPRJ-1234): Fix foo
 * [TSTPRJ-1235](http://issues.test/browse/TSTPRJ-1235): Fix bar

### Reviewers
 * someone
`
	assert.Equal(t, []string{"TSTPRJ-1234", "TSTPRJ-1235"}, parseIssueIDs(body, nil))
}

func TestParseIssueIDsSingularHeading(t *testing.T) {
	body := "## Issue\n- [JDK-8000000](https://bugs.test/JDK-8000000): Something\n"
	assert.Equal(t, []string{"JDK-8000000"}, parseIssueIDs(body, nil))
}

func TestParseIssueIDsIgnoresLinksOutsideBlock(t *testing.T) {
	body := "See [TSTPRJ-9](http://issues.test/browse/TSTPRJ-9) for context.\n"
	assert.Empty(t, parseIssueIDs(body, nil))
}

func TestParseIssueIDsBlockEndsAtProse(t *testing.T) {
	body := "### Issues\n* [TSTPRJ-1](u): a\nSome prose.\n* [TSTPRJ-2](u): b\n"
	assert.Equal(t, []string{"TSTPRJ-1"}, parseIssueIDs(body, nil))
}

func TestIntegratedCommit(t *testing.T) {
	hash := "0123456789abcdef0123456789abcdef01234567"
	pr := &domain.PullRequest{
		Comments: []domain.Comment{
			{Author: "random", Body: "Pushed as commit " + hash + ".", CreatedAt: time.Now()},
			{Author: "openjdk-bot", Body: "Pushed as commit " + hash + ".", CreatedAt: time.Now()},
		},
	}
	assert.Equal(t, hash, integratedCommit(pr, "openjdk-bot"))
	assert.Empty(t, integratedCommit(&domain.PullRequest{
		Comments: []domain.Comment{{Author: "random", Body: "Pushed as commit " + hash + "."}},
	}, "openjdk-bot"))
}

func TestIntegratedCommitRejectsShortHash(t *testing.T) {
	pr := &domain.PullRequest{
		Comments: []domain.Comment{{Author: "openjdk-bot", Body: "Pushed as commit abcdef."}},
	}
	assert.Empty(t, integratedCommit(pr, "openjdk-bot"))
}
