package chat

import (
	"testing"
	"time"

	"devroom/internal/filetree"
)

var alice = UserRef{ID: "u1", Email: "alice@example.com"}
var bob = UserRef{ID: "u2", Email: "bob@example.com"}

func TestSendLocalWhitespaceIsSilentlyDropped(t *testing.T) {
	r := NewReducer(filetree.NewRegistry())

	result, _ := r.SendLocal(alice, "   ")

	if result != SendIgnored {
		t.Fatalf("expected SendIgnored, got %v", result)
	}
	if r.Len() != 0 {
		t.Fatalf("expected empty log, got %d events", r.Len())
	}
}

func TestSendLocalBareMentionAppendsNotice(t *testing.T) {
	r := NewReducer(filetree.NewRegistry())

	result, _ := r.SendLocal(alice, "  @ai  ")

	if result != SendRejected {
		t.Fatalf("expected SendRejected, got %v", result)
	}
	events := r.Events()
	if len(events) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(events))
	}
	notice, ok := events[0].(SystemNotice)
	if !ok {
		t.Fatalf("expected SystemNotice, got %T", events[0])
	}
	if notice.Text != BareMentionNotice {
		t.Fatalf("unexpected notice text: %q", notice.Text)
	}
	if r.AIPending() {
		t.Fatal("bare mention must not arm the pending state")
	}
}

func TestSendLocalMentionArmsPending(t *testing.T) {
	r := NewReducer(filetree.NewRegistry())

	result, wire := r.SendLocal(alice, " @ai build me a server ")

	if result != SendOK {
		t.Fatalf("expected SendOK, got %v", result)
	}
	if wire != "@ai build me a server" {
		t.Fatalf("expected trimmed wire text, got %q", wire)
	}
	if !r.AIPending() {
		t.Fatal("expected pending state after mention")
	}
	if _, ok := r.AIPendingSince(); !ok {
		t.Fatal("expected pending timestamp")
	}
}

func TestSendLocalMentionAnywhereInText(t *testing.T) {
	r := NewReducer(filetree.NewRegistry())

	// The trigger is any substring occurrence, not a prefix rule.
	r.SendLocal(alice, "hey @ai can you help")

	if !r.AIPending() {
		t.Fatal("expected pending state for mid-text mention")
	}
}

func TestSendLocalPlainMessageNoTransition(t *testing.T) {
	r := NewReducer(filetree.NewRegistry())

	result, _ := r.SendLocal(alice, "morning all")

	if result != SendOK {
		t.Fatalf("expected SendOK, got %v", result)
	}
	if r.AIPending() {
		t.Fatal("plain message must not arm pending state")
	}
	msg, ok := r.Events()[0].(HumanMessage)
	if !ok || msg.Sender != alice || msg.Text != "morning all" {
		t.Fatalf("unexpected logged event: %#v", r.Events()[0])
	}
}

func TestHandleInboundAIClearsPendingAndMergesFiles(t *testing.T) {
	registry := filetree.NewRegistry()
	r := NewReducer(registry)
	r.SendLocal(alice, "@ai make a file")

	merged := r.HandleInbound(ProjectMessage{
		Sender:  AIUser,
		Message: `{"text":"done","fileTree":{"a.js":{"file":{"contents":"1"}}}}`,
	})

	if r.AIPending() {
		t.Fatal("AI reply must clear pending state")
	}
	if merged == nil || merged["a.js"].Contents() != "1" {
		t.Fatalf("expected merged snapshot with a.js, got %#v", merged)
	}
	if frag, ok := registry.Resolve("a.js"); !ok || frag.Contents() != "1" {
		t.Fatal("registry did not receive the merged fragment")
	}
	if r.Len() != 2 {
		t.Fatalf("expected 2 events, got %d", r.Len())
	}
}

func TestHandleInboundAIWithoutFilesClearsPending(t *testing.T) {
	r := NewReducer(filetree.NewRegistry())
	r.SendLocal(alice, "@ai hello")

	merged := r.HandleInbound(ProjectMessage{Sender: AIUser, Message: `{"text":"hi"}`})

	if merged != nil {
		t.Fatalf("expected nil snapshot, got %#v", merged)
	}
	if r.AIPending() {
		t.Fatal("pending state should clear even without files")
	}
}

func TestHandleInboundMalformedAIPayloadIsNotFatal(t *testing.T) {
	r := NewReducer(filetree.NewRegistry())
	r.SendLocal(alice, "@ai go")

	merged := r.HandleInbound(ProjectMessage{Sender: AIUser, Message: "{truncated"})

	if merged != nil {
		t.Fatalf("expected nil snapshot for malformed payload, got %#v", merged)
	}
	ai, ok := r.Events()[1].(AIMessage)
	if !ok || ai.RawPayload != "{truncated" {
		t.Fatalf("raw payload must be preserved on the log, got %#v", r.Events()[1])
	}
}

func TestHandleInboundUnsolicitedAIReply(t *testing.T) {
	r := NewReducer(filetree.NewRegistry())

	// Idle -> AI event: transition to Idle regardless of prior state.
	r.HandleInbound(ProjectMessage{Sender: AIUser, Message: `{"text":"hi"}`})

	if r.AIPending() {
		t.Fatal("unsolicited reply must leave state idle")
	}
	if r.Len() != 1 {
		t.Fatalf("expected the reply on the log, got %d events", r.Len())
	}
}

func TestHandleInboundHumanFromOtherParticipant(t *testing.T) {
	r := NewReducer(filetree.NewRegistry())
	r.SendLocal(alice, "@ai thing")

	r.HandleInbound(ProjectMessage{Sender: bob, Message: "on it too"})

	if !r.AIPending() {
		t.Fatal("human event must not clear pending state")
	}
	msg, ok := r.Events()[1].(HumanMessage)
	if !ok || msg.Sender != bob {
		t.Fatalf("unexpected event: %#v", r.Events()[1])
	}
}

func TestDuplicateDeliveryReappends(t *testing.T) {
	r := NewReducer(filetree.NewRegistry())
	pm := ProjectMessage{Sender: bob, Message: "hello"}

	r.HandleInbound(pm)
	r.HandleInbound(pm)

	if r.Len() != 2 {
		t.Fatalf("duplicates re-append by contract, got %d events", r.Len())
	}
}

func TestResetClearsLogOnly(t *testing.T) {
	registry := filetree.NewRegistry()
	r := NewReducer(registry)
	r.SendLocal(alice, "@ai make a file")
	r.HandleInbound(ProjectMessage{
		Sender:  AIUser,
		Message: `{"text":"done","fileTree":{"a.js":{"file":{"contents":"1"}}}}`,
	})
	_, archiveBefore := registry.Counts()

	r.Reset()

	if r.Len() != 0 {
		t.Fatalf("expected empty log after reset, got %d", r.Len())
	}
	if r.AIPending() {
		t.Fatal("reset must clear pending state")
	}
	if _, archiveAfter := registry.Counts(); archiveAfter != archiveBefore {
		t.Fatalf("reset must not touch files: archive %d -> %d", archiveBefore, archiveAfter)
	}
}

func TestHydrateRestoresLogNotPending(t *testing.T) {
	r := NewReducer(filetree.NewRegistry())
	r.Hydrate([]Event{
		HumanMessage{Sender: alice, Text: "@ai still waiting"},
		SystemNotice{Text: "x"},
	})

	if r.Len() != 2 {
		t.Fatalf("expected hydrated log, got %d events", r.Len())
	}
	if r.AIPending() {
		t.Fatal("pending state must not be rehydrated")
	}
}

func TestAIPendingSinceUsesClock(t *testing.T) {
	r := NewReducer(filetree.NewRegistry())
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	r.SendLocal(alice, "@ai ping")

	since, ok := r.AIPendingSince()
	if !ok || !since.Equal(fixed) {
		t.Fatalf("expected pending since %v, got %v (%v)", fixed, since, ok)
	}
}
