// Package mailinglist defines the mailing-list transport the bridge
// consumes: SMTP submission on the way out, archive retrieval on the way in.
package mailinglist

import (
	"context"
	"time"

	"github.com/bkyoung/review-bridge/internal/mail"
)

// List identifies one mailing list.
type List struct {
	Name  string
	Email string
}

// Sender submits a message for delivery. Implementations speak SMTP; the
// bridge only requires that arbitrary headers survive submission.
type Sender interface {
	Send(ctx context.Context, msg *mail.Message) error
}

// Conversation is one archived thread: the first message plus its replies in
// archive order.
type Conversation struct {
	First   *mail.Message
	Replies []*mail.Message
}

// Archive reads a list's archive over a lookback window.
type Archive interface {
	// Conversations returns the threads whose latest message falls within
	// the lookback window, oldest first.
	Conversations(ctx context.Context, list List, lookback time.Duration) ([]Conversation, error)
}
