package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/bkyoung/review-bridge/internal/mail"
	"github.com/bkyoung/review-bridge/internal/mailinglist"
)

// FakeSender records submitted mails.
type FakeSender struct {
	mu   sync.Mutex
	Err  error
	sent []*mail.Message
}

func (s *FakeSender) Send(ctx context.Context, msg *mail.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	copied := *msg
	s.sent = append(s.sent, &copied)
	return nil
}

// Sent returns the submitted mails in order.
func (s *FakeSender) Sent() []*mail.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*mail.Message(nil), s.sent...)
}

// FakeArchive serves scripted conversations per list.
type FakeArchive struct {
	mu    sync.Mutex
	convs map[string][]mailinglist.Conversation
}

func NewFakeArchive() *FakeArchive {
	return &FakeArchive{convs: map[string][]mailinglist.Conversation{}}
}

// Add appends a conversation to a list's archive.
func (a *FakeArchive) Add(list string, conv mailinglist.Conversation) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.convs[list] = append(a.convs[list], conv)
}

func (a *FakeArchive) Conversations(ctx context.Context, list mailinglist.List, lookback time.Duration) ([]mailinglist.Conversation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]mailinglist.Conversation(nil), a.convs[list.Name]...), nil
}
