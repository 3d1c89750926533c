package outbound

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/spec-kit/support-router/internal/domain"
)

// Message is a payload handed to the caller for delivery on an external
// channel. Link is empty when no contact number is known.
type Message struct {
	Recipient string `json:"recipient,omitempty"`
	Text      string `json:"text"`
	Link      string `json:"link,omitempty"`
}

// Formatter renders the caller-facing payloads of ticket creation and assignment.
type Formatter interface {
	TicketCreated(ticket *domain.Ticket) *Message
	TicketAssigned(ticket *domain.Ticket, agent *domain.Agent) *Message
}

// DeepLinkFormatter builds chat deep links of the form base+number?text=...
type DeepLinkFormatter struct {
	base          string
	supportNumber string
}

// NewDeepLinkFormatter builds a formatter. supportNumber is where customers
// are sent after opening a ticket; it may be empty.
func NewDeepLinkFormatter(base, supportNumber string) *DeepLinkFormatter {
	if base == "" {
		base = "https://wa.me/"
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return &DeepLinkFormatter{base: base, supportNumber: digitsOnly(supportNumber)}
}

// TicketCreated renders the message a customer sends to support to continue
// the conversation on the ticket.
func (f *DeepLinkFormatter) TicketCreated(ticket *domain.Ticket) *Message {
	text := fmt.Sprintf("Hello, I opened ticket %s (%s, %s severity): %s",
		ticket.PublicID, ticket.Category, ticket.Severity, preview(ticket.Summary, 160))
	return &Message{
		Recipient: f.supportNumber,
		Text:      text,
		Link:      f.link(f.supportNumber, text),
	}
}

// TicketAssigned renders the hand-off message for the assigned agent. It
// returns nil when the agent has no contact handle.
func (f *DeepLinkFormatter) TicketAssigned(ticket *domain.Ticket, agent *domain.Agent) *Message {
	if agent == nil || agent.ContactHandle == nil {
		return nil
	}
	number := digitsOnly(*agent.ContactHandle)
	if number == "" {
		return nil
	}
	text := fmt.Sprintf("Ticket %s is now yours: %s", ticket.PublicID, preview(ticket.Summary, 160))
	return &Message{
		Recipient: number,
		Text:      text,
		Link:      f.link(number, text),
	}
}

func (f *DeepLinkFormatter) link(number, text string) string {
	if number == "" {
		return ""
	}
	return f.base + number + "?text=" + url.QueryEscape(text)
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func preview(s string, limit int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit]) + "..."
}
