// Package relay forwards user text to the session partner. It is the only
// component that turns an inbound message into an outbound delivery, and it
// applies the content filter before anything leaves the process.
package relay

import (
	"fmt"
	"log"
	"unicode/utf8"

	"github.com/pairline/pairline/internal/history"
	"github.com/pairline/pairline/internal/moderation"
)

// Message size limits.
const (
	MaxMessageBytes = 4096
	MaxTextChars    = 2000
)

// Outcome classifies a relay attempt.
type Outcome int

const (
	// Delivered means the partner received the message.
	Delivered Outcome = iota
	// NoSession means the sender has no active partner.
	NoSession
	// Blocked means the content filter refused the message.
	Blocked
	// Invalid means the message failed basic validation (size, UTF-8).
	Invalid
	// Undelivered means the transport could not reach the partner. The
	// session stays intact; the partner may only be transiently offline.
	Undelivered
)

// Result describes a relay attempt.
type Result struct {
	Outcome   Outcome
	PartnerID string // set whenever a session existed
	Reason    string // filter reason or validation message
}

// Sender is the outbound half of the messenger capability the forwarder
// needs.
type Sender interface {
	Send(userID, text string) error
}

// Sessions is the slice of the matching coordinator the forwarder reads.
type Sessions interface {
	PartnerOf(userID string) (string, bool)
	ChatIDOf(userID string) (string, bool)
}

// Forwarder relays messages between paired users.
type Forwarder struct {
	sessions Sessions
	filter   *moderation.Filter
	sender   Sender
	tail     *history.Buffer // optional; nil disables evidence recording
}

// NewForwarder creates a relay forwarder. tail may be nil.
func NewForwarder(sessions Sessions, filter *moderation.Filter, sender Sender, tail *history.Buffer) *Forwarder {
	return &Forwarder{
		sessions: sessions,
		filter:   filter,
		sender:   sender,
		tail:     tail,
	}
}

// ValidateMessage checks that text meets the basic content requirements.
func ValidateMessage(text string) error {
	if len(text) == 0 {
		return fmt.Errorf("message text is empty")
	}
	if len(text) > MaxMessageBytes {
		return fmt.Errorf("message exceeds %d byte limit", MaxMessageBytes)
	}
	if utf8.RuneCountInString(text) > MaxTextChars {
		return fmt.Errorf("message exceeds %d character limit", MaxTextChars)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("message contains invalid UTF-8")
	}
	return nil
}

// Relay forwards text from userID to their session partner. A transport
// failure is logged and reported as Undelivered; it never tears the session
// down.
func (f *Forwarder) Relay(userID, text string) Result {
	partner, ok := f.sessions.PartnerOf(userID)
	if !ok {
		return Result{Outcome: NoSession}
	}

	if err := ValidateMessage(text); err != nil {
		return Result{Outcome: Invalid, PartnerID: partner, Reason: err.Error()}
	}

	if res := f.filter.Check(text); res.Blocked {
		log.Printf("[relay] blocked user=%s reason=%s term=%q", userID, res.Reason, res.Term)
		return Result{Outcome: Blocked, PartnerID: partner, Reason: res.Reason}
	}

	// Record before sending so reports capture what the sender attempted,
	// even when the partner was unreachable.
	if f.tail != nil {
		if chatID, ok := f.sessions.ChatIDOf(userID); ok {
			f.tail.Record(chatID, userID, text)
		}
	}

	if err := f.sender.Send(partner, text); err != nil {
		log.Printf("[relay] deliver to %s failed: %v", partner, err)
		return Result{Outcome: Undelivered, PartnerID: partner}
	}
	return Result{Outcome: Delivered, PartnerID: partner}
}
