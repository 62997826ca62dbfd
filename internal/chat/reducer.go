package chat

import (
	"strings"
	"time"

	"devroom/internal/filetree"
)

// aiMention is the token that routes a human message to the AI collaborator.
const aiMention = "@ai"

// BareMentionNotice is appended to the log when a user sends the mention with
// no message attached.
const BareMentionNotice = "Please send @ai with a message."

// FileSink receives the file tree fragments carried by AI replies. The
// returned mounted snapshot is propagated by the caller; a nil snapshot means
// no file state changed.
type FileSink interface {
	MergeAll(tree filetree.Tree) filetree.Tree
}

// SendResult classifies the outcome of a local send attempt.
type SendResult int

const (
	// SendIgnored means the input was empty or whitespace; nothing was
	// appended and nothing should be transmitted.
	SendIgnored SendResult = iota
	// SendRejected means the input was a bare mention; a notice was appended
	// locally and nothing should be transmitted.
	SendRejected
	// SendOK means the message was appended and should be transmitted.
	SendOK
)

// Reducer is the append-only conversation log plus the two-state AI-pending
// machine. Events are stored strictly in arrival order; the transport gives
// no timestamp guarantees, so arrival order is the ordering contract.
//
// The reducer is not internally synchronized; the workspace event loop is the
// only mutation site.
type Reducer struct {
	log          []Event
	files        FileSink
	aiPending    bool
	pendingSince time.Time
	now          func() time.Time
}

// NewReducer creates a reducer feeding merged AI files into sink.
func NewReducer(sink FileSink) *Reducer {
	return &Reducer{files: sink, now: time.Now}
}

// Hydrate replaces the log with persisted events. AI-pending state is not
// restored: a reply lost across a reload stays lost.
func (r *Reducer) Hydrate(events []Event) {
	r.log = append([]Event(nil), events...)
	r.aiPending = false
}

// SendLocal applies the local-send rules to raw user input. When the result
// is SendOK the returned string is the trimmed text to transmit.
//
// Empty input is dropped silently. The exact trimmed text "@ai" is rejected
// with a synthetic notice and does not arm the pending state; any other text
// containing the mention does.
func (r *Reducer) SendLocal(sender UserRef, text string) (SendResult, string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return SendIgnored, ""
	}

	if trimmed == aiMention {
		r.log = append(r.log, SystemNotice{Text: BareMentionNotice})
		return SendRejected, ""
	}

	r.log = append(r.log, HumanMessage{Sender: sender, Text: trimmed})

	if strings.Contains(trimmed, aiMention) {
		r.aiPending = true
		r.pendingSince = r.now()
	}

	return SendOK, trimmed
}

// HandleInbound applies a channel-delivered event to the log. For AI events
// the payload is parsed and any file fragments are merged through the sink;
// the returned tree is the new mounted snapshot (nil when no files changed).
// An AI reply always clears the pending state, whatever state preceded it.
func (r *Reducer) HandleInbound(pm ProjectMessage) filetree.Tree {
	event := ClassifyInbound(pm)
	r.log = append(r.log, event)

	ai, ok := event.(AIMessage)
	if !ok {
		return nil
	}

	r.aiPending = false

	payload := ParsePayload(ai.RawPayload)
	if payload.FileTree == nil || r.files == nil {
		return nil
	}
	return r.files.MergeAll(payload.FileTree)
}

// Reset clears the chat log. File state is owned elsewhere and survives a
// conversation reset.
func (r *Reducer) Reset() {
	r.log = nil
	r.aiPending = false
}

// Events returns a copy of the log in append order.
func (r *Reducer) Events() []Event {
	return append([]Event(nil), r.log...)
}

// Len returns the number of logged events.
func (r *Reducer) Len() int {
	return len(r.log)
}

// AIPending reports whether a reply from the AI collaborator is outstanding.
func (r *Reducer) AIPending() bool {
	return r.aiPending
}

// AIPendingSince returns when the outstanding AI request was sent. The zero
// time and false mean no request is pending. There is no timeout: a lost
// reply keeps the state armed until the next AI event, and this accessor is
// the liveness signal callers can watch for that condition.
func (r *Reducer) AIPendingSince() (time.Time, bool) {
	if !r.aiPending {
		return time.Time{}, false
	}
	return r.pendingSince, true
}
