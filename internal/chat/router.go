package chat

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/harborchat/harbor/internal/metrics"
)

// Route validates an inbound envelope, persists the message, and fans it
// out to the recipient's live connections. Invalid envelopes are dropped
// without notifying the sender. Persistence always happens before fan-out,
// and a persistence failure suppresses the fan-out entirely.
func (h *Hub) Route(sender *Client, raw []byte) {
	identity := sender.Identity()
	if identity == nil {
		h.dropEnvelope(sender, "anonymous", nil)
		return
	}

	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		h.dropEnvelope(sender, "malformed", err)
		return
	}

	envelope.Text = strings.TrimSpace(envelope.Text)
	if err := h.validate.Struct(&envelope); err != nil {
		h.dropEnvelope(sender, "malformed", err)
		return
	}
	if envelope.Text == "" && envelope.File == nil {
		h.dropEnvelope(sender, "empty", nil)
		return
	}

	var attachmentRef string
	if envelope.File != nil {
		data, err := decodeAttachment(envelope.File.Data)
		if err != nil || len(data) == 0 {
			h.dropEnvelope(sender, "attachment", err)
			return
		}

		name := h.blobs.NewName(envelope.File.Name, data)
		if err := h.blobs.WriteBlob(name, data); err != nil {
			h.log.Error().Err(err).Str("addr", sender.addr).Msg("attachment write failed")
			return
		}
		attachmentRef = name
		metrics.AttachmentsStored.Inc()
	}

	// The sender id comes from the connection's resolved identity; a
	// client-supplied sender field is never trusted.
	msg, err := h.messages.Create(identity.ID, envelope.Recipient, envelope.Text, attachmentRef)
	if err != nil {
		h.log.Error().Err(err).Str("sender", identity.ID).Msg("message persistence failed")
		return
	}

	payload, err := json.Marshal(newMessageEvent(msg))
	if err != nil {
		h.log.Error().Err(err).Msg("message event marshal failed")
		return
	}

	for _, target := range h.FindByIdentity(envelope.Recipient) {
		if !h.safeSend(target, payload) {
			h.log.Warn().Str("recipient", envelope.Recipient).Str("addr", target.addr).Msg("fan-out send failed")
		}
	}
	metrics.MessagesRouted.Inc()
}

func (h *Hub) dropEnvelope(sender *Client, reason string, err error) {
	metrics.MessagesDropped.WithLabelValues(reason).Inc()
	h.log.Debug().Err(err).Str("addr", sender.addr).Str("reason", reason).Msg("envelope dropped")
}

// decodeAttachment decodes a base64 payload, tolerating a data-URI prefix
// of the form "data:image/png;base64,".
func decodeAttachment(data string) ([]byte, error) {
	if i := strings.IndexByte(data, ','); i >= 0 {
		data = data[i+1:]
	}
	return base64.StdEncoding.DecodeString(data)
}
