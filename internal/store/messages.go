package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/harborchat/harbor/internal/domain"
)

// messageRecord is the on-disk JSON shape of a message.
type messageRecord struct {
	ID            string `json:"id"`
	Sender        string `json:"sender"`
	Recipient     string `json:"recipient"`
	Text          string `json:"text,omitempty"`
	AttachmentRef string `json:"attachmentRef,omitempty"`
	CreatedAt     int64  `json:"createdAt"`
}

// pairKey orders the two participant ids so that both directions of a
// conversation share one key prefix.
func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// messageKey format: "msg:{pair}:{timestamp_padded}:{uuid}". The 19-digit
// zero padding makes lexicographic order match chronological order, and the
// UUID disconnects collisions when two messages land on the same nanosecond.
func messageKey(msg domain.Message) []byte {
	return fmt.Appendf(nil, "msg:%s:%019d:%s",
		pairKey(msg.Sender, msg.Recipient),
		msg.CreatedAt.UnixNano(),
		msg.ID,
	)
}

// Create persists a new message and returns it with its generated id and
// timestamp filled in.
func (s *Store) Create(sender, recipient, text, attachmentRef string) (domain.Message, error) {
	msg := domain.Message{
		ID:            uuid.New(),
		Sender:        sender,
		Recipient:     recipient,
		Text:          text,
		AttachmentRef: attachmentRef,
		CreatedAt:     time.Now().UTC(),
	}

	value, err := json.Marshal(fromMessage(msg))
	if err != nil {
		return domain.Message{}, err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(msg), value)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// Find returns every message exchanged between the two participants,
// ordered by creation time ascending. Thanks to the padded timestamp in the
// key, a forward prefix scan already yields that order.
func (s *Store) Find(participantA, participantB string) ([]domain.Message, error) {
	prefix := []byte("msg:" + pairKey(participantA, participantB) + ":")
	var messages []domain.Message

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec messageRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				msg, err := toMessage(rec)
				if err != nil {
					return err
				}
				messages = append(messages, msg)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func fromMessage(msg domain.Message) messageRecord {
	return messageRecord{
		ID:            msg.ID.String(),
		Sender:        msg.Sender,
		Recipient:     msg.Recipient,
		Text:          msg.Text,
		AttachmentRef: msg.AttachmentRef,
		CreatedAt:     msg.CreatedAt.UnixNano(),
	}
}

func toMessage(rec messageRecord) (domain.Message, error) {
	parsedID, err := uuid.Parse(rec.ID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:            parsedID,
		Sender:        rec.Sender,
		Recipient:     rec.Recipient,
		Text:          rec.Text,
		AttachmentRef: rec.AttachmentRef,
		CreatedAt:     time.Unix(0, rec.CreatedAt).UTC(),
	}, nil
}
