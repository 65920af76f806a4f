package relay

import (
	"fmt"
	"strings"
	"testing"

	"github.com/pairline/pairline/internal/history"
	"github.com/pairline/pairline/internal/moderation"
)

// fakeSessions is a fixed partner map standing in for the coordinator.
type fakeSessions map[string]string

func (f fakeSessions) PartnerOf(userID string) (string, bool) {
	p, ok := f[userID]
	return p, ok
}

func (f fakeSessions) ChatIDOf(userID string) (string, bool) {
	if _, ok := f[userID]; ok {
		return "chat-" + userID, ok
	}
	return "", false
}

// fakeSender records deliveries and can be told to fail.
type fakeSender struct {
	sent map[string][]string
	fail bool
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(map[string][]string)}
}

func (s *fakeSender) Send(userID, text string) error {
	if s.fail {
		return fmt.Errorf("recipient unreachable")
	}
	s.sent[userID] = append(s.sent[userID], text)
	return nil
}

func newTestForwarder(t *testing.T, sessions fakeSessions) (*Forwarder, *fakeSender, *history.Buffer) {
	t.Helper()
	sender := newFakeSender()
	tail := history.NewBuffer()
	f := NewForwarder(sessions, moderation.NewFilter(), sender, tail)
	return f, sender, tail
}

func TestRelay_Delivered(t *testing.T) {
	f, sender, tail := newTestForwarder(t, fakeSessions{"a": "b"})

	res := f.Relay("a", "hello")
	if res.Outcome != Delivered || res.PartnerID != "b" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := sender.sent["b"]; len(got) != 1 || got[0] != "hello" {
		t.Errorf("partner deliveries = %v, want [hello]", got)
	}

	// The message landed in the chat tail for later report evidence.
	msgs := tail.Tail("chat-a")
	if len(msgs) != 1 || msgs[0].Text != "hello" || msgs[0].From != "a" {
		t.Errorf("tail = %v", msgs)
	}
}

func TestRelay_NoSession(t *testing.T) {
	f, sender, _ := newTestForwarder(t, fakeSessions{})

	res := f.Relay("loner", "anyone there?")
	if res.Outcome != NoSession {
		t.Fatalf("expected NoSession, got %+v", res)
	}
	if len(sender.sent) != 0 {
		t.Error("nothing should be delivered without a session")
	}
}

func TestRelay_BlocksLinks(t *testing.T) {
	f, sender, _ := newTestForwarder(t, fakeSessions{"a": "b"})

	res := f.Relay("a", "join http://spam.example now")
	if res.Outcome != Blocked {
		t.Fatalf("expected Blocked, got %+v", res)
	}
	if res.Reason != "link" {
		t.Errorf("reason = %q, want link", res.Reason)
	}
	if len(sender.sent["b"]) != 0 {
		t.Error("blocked message must not reach the partner")
	}
}

func TestRelay_InvalidMessage(t *testing.T) {
	f, _, _ := newTestForwarder(t, fakeSessions{"a": "b"})

	cases := []string{
		"",
		strings.Repeat("x", MaxMessageBytes+1),
		string([]byte{0xff, 0xfe}),
	}
	for _, text := range cases {
		res := f.Relay("a", text)
		if res.Outcome != Invalid {
			t.Errorf("text %q: expected Invalid, got %v", truncate(text), res.Outcome)
		}
	}
}

func TestRelay_TransportFailureKeepsSession(t *testing.T) {
	f, sender, _ := newTestForwarder(t, fakeSessions{"a": "b"})
	sender.fail = true

	res := f.Relay("a", "hello?")
	if res.Outcome != Undelivered || res.PartnerID != "b" {
		t.Fatalf("expected Undelivered(b), got %+v", res)
	}
}

func TestValidateMessage_CharLimit(t *testing.T) {
	// Multi-byte runes: within the byte limit but over the character limit.
	text := strings.Repeat("ä", MaxTextChars+1)
	if len(text) > MaxMessageBytes {
		t.Skip("rune repeat exceeded byte limit; adjust constants")
	}
	if err := ValidateMessage(text); err == nil {
		t.Error("expected character-limit error")
	}
}

func truncate(s string) string {
	if len(s) > 20 {
		return s[:20] + "..."
	}
	return s
}
