// Package archive builds the canonical event sequence of a pull request:
// one item per archivable event, each with a deterministic id and a parent
// link. The mail bridge turns items into e-mails; the archive reader maps
// inbound replies back onto them.
package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Item kinds.
const (
	KindPROpened      = "pr-opened"
	KindPRRevised     = "pr-revised"
	KindComment       = "comment"
	KindReviewComment = "review-comment"
	KindReview        = "review"
	KindVerdict       = "verdict"
)

// Item is one archivable event. ParentID is empty for the root items
// (PR-Opened and PR-Revised); every other item resolves to an earlier item
// in the same conversation.
type Item struct {
	ID        string
	Kind      string
	Author    string
	Timestamp time.Time
	Body      string
	ParentID  string

	// Review-comment anchor, set for KindReviewComment.
	Path     string
	Line     int
	BaseHash string
	HeadHash string

	// Verdict of the underlying review, set for KindReview and
	// KindVerdict.
	Verdict string
}

// IsRoot reports whether the item starts (or restarts) the thread.
func (i Item) IsRoot() bool {
	return i.Kind == KindPROpened || i.Kind == KindPRRevised
}

// ItemID derives the deterministic item id from the source id and kind.
// Recomputing the item list always yields the same ids.
func ItemID(sourceID, kind string) string {
	sum := sha256.Sum256([]byte(sourceID + "|" + kind))
	return hex.EncodeToString(sum[:8])
}
