package amqp

import (
	"encoding/json"
	"time"
)

// CollectionChangedMessage tells other processes that documents in a
// collection changed. It carries only the collection path; consumers
// re-read the collection from the database, so a lost duplicate is
// harmless and a requeued one is idempotent.
type CollectionChangedMessage struct {
	Collection string    `json:"collection"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewCollectionChangedMessage creates a change notification for a collection path.
func NewCollectionChangedMessage(collection string) *CollectionChangedMessage {
	return &CollectionChangedMessage{
		Collection: collection,
		Timestamp:  time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *CollectionChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FromJSON creates a message from JSON bytes
func CollectionChangedMessageFromJSON(data []byte) (*CollectionChangedMessage, error) {
	var msg CollectionChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
