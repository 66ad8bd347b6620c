package chat

import "github.com/harborchat/harbor/internal/domain"

// Envelope is the inbound payload describing a message send request.
type Envelope struct {
	Recipient string      `json:"recipient" validate:"required"`
	Text      string      `json:"text,omitempty"`
	File      *FileUpload `json:"file,omitempty"`
}

// FileUpload carries an attachment as base64 data, optionally with a
// data-URI prefix as browsers produce it.
type FileUpload struct {
	Name string `json:"name"`
	Data string `json:"data" validate:"required"`
}

// MessageEvent is the frame delivered to a recipient's live connections.
// It carries the persisted id so the sender's optimistic local echo can be
// deduplicated later.
type MessageEvent struct {
	ID            string  `json:"id"`
	Text          string  `json:"text,omitempty"`
	Sender        string  `json:"sender"`
	Recipient     string  `json:"recipient"`
	AttachmentRef *string `json:"attachmentRef"`
}

// PresenceEvent is the frame pushed to every connection when the roster
// changes.
type PresenceEvent struct {
	Online []domain.RosterEntry `json:"online"`
}

func newMessageEvent(msg domain.Message) MessageEvent {
	event := MessageEvent{
		ID:        msg.ID.String(),
		Text:      msg.Text,
		Sender:    msg.Sender,
		Recipient: msg.Recipient,
	}
	if msg.AttachmentRef != "" {
		ref := msg.AttachmentRef
		event.AttachmentRef = &ref
	}
	return event
}
