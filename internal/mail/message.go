// Package mail models the e-mails the bridge exchanges with mailing lists.
// Composition and parsing go through go-message so the wire form is plain
// RFC 5322 with the bridge's threading headers.
package mail

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	gomail "github.com/emersion/go-message/mail"
)

// Address is a display name plus an e-mail address.
type Address struct {
	Name  string
	Email string
}

func (a Address) String() string {
	if a.Name == "" {
		return a.Email
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Email)
}

// Message is one e-mail. ID, InReplyTo and References hold bare Message-IDs
// without angle brackets.
type Message struct {
	ID         string
	From       Address
	To         []Address
	Subject    string
	Body       string
	Date       time.Time
	InReplyTo  string
	References []string
	Headers    map[string]string
}

// Compose renders the message as an RFC 5322 entity.
func (m *Message) Compose() ([]byte, error) {
	var h gomail.Header
	h.SetDate(m.Date)
	h.SetSubject(m.Subject)
	h.SetAddressList("From", []*gomail.Address{{Name: m.From.Name, Address: m.From.Email}})
	to := make([]*gomail.Address, 0, len(m.To))
	for _, a := range m.To {
		to = append(to, &gomail.Address{Name: a.Name, Address: a.Email})
	}
	h.SetAddressList("To", to)
	if m.ID != "" {
		h.SetMessageID(m.ID)
	}
	if m.InReplyTo != "" {
		h.SetMsgIDList("In-Reply-To", []string{m.InReplyTo})
	}
	if len(m.References) > 0 {
		h.SetMsgIDList("References", m.References)
	}
	for k, v := range m.Headers {
		h.Set(k, v)
	}

	var buf bytes.Buffer
	w, err := gomail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create mail writer: %w", err)
	}
	if _, err := io.WriteString(w, m.Body); err != nil {
		return nil, fmt.Errorf("write mail body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close mail writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Parse reads an RFC 5322 entity back into a Message. Only the headers the
// bridge cares about are retained.
func Parse(raw []byte) (*Message, error) {
	r, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse mail: %w", err)
	}
	defer r.Close()

	m := &Message{Headers: map[string]string{}}
	h := r.Header
	if id, err := h.MessageID(); err == nil {
		m.ID = id
	}
	if subj, err := h.Subject(); err == nil {
		m.Subject = subj
	}
	if date, err := h.Date(); err == nil {
		m.Date = date
	}
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		m.From = Address{Name: from[0].Name, Email: from[0].Address}
	}
	if to, err := h.AddressList("To"); err == nil {
		for _, a := range to {
			m.To = append(m.To, Address{Name: a.Name, Email: a.Address})
		}
	}
	if ids, err := h.MsgIDList("In-Reply-To"); err == nil && len(ids) > 0 {
		m.InReplyTo = ids[0]
	}
	if refs, err := h.MsgIDList("References"); err == nil {
		m.References = refs
	}

	var body strings.Builder
	for {
		part, err := r.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read mail part: %w", err)
		}
		if _, ok := part.Header.(*gomail.InlineHeader); ok {
			if _, err := io.Copy(&body, part.Body); err != nil {
				return nil, fmt.Errorf("read mail body: %w", err)
			}
		}
	}
	// The wire format is CRLF; everything downstream works on bare
	// newlines.
	m.Body = strings.ReplaceAll(body.String(), "\r\n", "\n")
	return m, nil
}
