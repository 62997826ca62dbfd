// Package chat holds the conversation state of a project workspace: the
// append-only chat log, the AI-pending state machine, and the decoding of
// AI message payloads.
package chat

// AISenderID is the reserved sender id of the AI collaborator.
const AISenderID = "ai"

// UserRef identifies a message sender. The JSON field names follow the
// upstream wire format.
type UserRef struct {
	ID    string `json:"_id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"username,omitempty"`
}

// AIUser is the sender attached to AI and synthetic messages.
var AIUser = UserRef{ID: AISenderID, Email: "AI"}

// Event is a closed union of chat log entries. The reducer matches on it
// exhaustively; new variants must be handled everywhere Events are consumed.
type Event interface {
	chatEvent()
}

// HumanMessage is a plain text message from a human participant.
type HumanMessage struct {
	Sender UserRef
	Text   string
}

// AIMessage carries the AI collaborator's raw payload. The payload stays
// opaque JSON text until parsed; a malformed payload is still a valid event.
type AIMessage struct {
	Sender     UserRef
	RawPayload string
}

// SystemNotice is a locally generated message shown to the user, such as the
// clarification appended when a bare mention is sent. It never travels over
// the channel.
type SystemNotice struct {
	Text string
}

func (HumanMessage) chatEvent() {}
func (AIMessage) chatEvent()    {}
func (SystemNotice) chatEvent() {}

// EventProjectMessage is the single channel event name the workspace speaks.
const EventProjectMessage = "project-message"

// ProjectMessage is the wire payload of a project-message event. Human sends
// carry plain text in Message; AI broadcasts carry a JSON-encoded payload.
type ProjectMessage struct {
	Message string  `json:"message"`
	Sender  UserRef `json:"sender"`
}

// ClassifyInbound converts a wire message into its chat log event. The sender
// id is the only discriminator; everything else about the shape is untrusted.
func ClassifyInbound(pm ProjectMessage) Event {
	if pm.Sender.ID == AISenderID {
		return AIMessage{Sender: pm.Sender, RawPayload: pm.Message}
	}
	return HumanMessage{Sender: pm.Sender, Text: pm.Message}
}
