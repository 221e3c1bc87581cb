package mlbridge

import (
	"regexp"
	"strings"
	"time"

	"github.com/bkyoung/review-bridge/internal/mail"
	"github.com/bkyoung/review-bridge/internal/mailinglist"
)

// Config is the mail bridge policy for one forge repository.
type Config struct {
	// Sender identifies the bridge on the list.
	Sender mail.Address

	// Lists routes by pull-request label: every list keyed by a label the
	// pull request carries receives the conversation, plus the lists
	// under the empty key.
	Lists map[string][]mailinglist.List

	IgnoredUsers    []string
	IgnoredComments []*regexp.Regexp
	ExtraHeaders    map[string]string

	IssueTrackerURL string
	IssueProject    string

	Cooldown     time.Duration
	SendInterval time.Duration

	RepoInSubject   bool
	BranchInSubject bool

	// ReadyLabels must all be present, and every ReadyComments pattern
	// must have a matching comment from its author, before the pull
	// request is bridged.
	ReadyLabels   []string
	ReadyComments map[string]*regexp.Regexp

	HiddenMarker  string
	ContextLines  int
	Lookback      time.Duration
	MaxReplySize  int
	CombineWindow time.Duration
}

// recipients returns the lists a pull request with the given labels goes
// to, without duplicates.
func (c *Config) recipients(labels []string) []mailinglist.List {
	var out []mailinglist.List
	seen := map[string]bool{}
	add := func(lists []mailinglist.List) {
		for _, l := range lists {
			if !seen[l.Name] {
				seen[l.Name] = true
				out = append(out, l)
			}
		}
	}
	add(c.Lists[""])
	for _, label := range labels {
		add(c.Lists[label])
	}
	return out
}

// allLists returns every configured list.
func (c *Config) allLists() []mailinglist.List {
	var out []mailinglist.List
	seen := map[string]bool{}
	for _, lists := range c.Lists {
		for _, l := range lists {
			if !seen[l.Name] {
				seen[l.Name] = true
				out = append(out, l)
			}
		}
	}
	return out
}

// messageDomain is the host part used in generated Message-IDs.
func (c *Config) messageDomain() string {
	if i := strings.IndexByte(c.Sender.Email, '@'); i >= 0 {
		return c.Sender.Email[i+1:]
	}
	return "review-bridge"
}
