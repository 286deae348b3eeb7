package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// Change operations
const (
	OpPush   = "push"
	OpUpdate = "update"
	OpRemove = "remove"
)

// ChangeMessage tells other instances that a collection changed. It carries
// no record data; receivers reload the collection.
type ChangeMessage struct {
	Origin    string    `json:"origin"`
	Path      string    `json:"path"`
	Op        string    `json:"op"`
	RecordID  string    `json:"record_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewChangeMessage(origin, path, op, recordID string) *ChangeMessage {
	return &ChangeMessage{
		Origin:    origin,
		Path:      path,
		Op:        op,
		RecordID:  recordID,
		Timestamp: time.Now(),
	}
}

func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeMessageFromJSON decodes and checks a message body.
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Path == "" {
		return nil, errors.New("change message without path")
	}
	return &msg, nil
}
