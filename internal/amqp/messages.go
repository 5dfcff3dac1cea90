package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"fintrack/internal/notify"
)

// NotificationMessage is the envelope published for every notification.
// Source names the process that produced it.
type NotificationMessage struct {
	Notification notify.Notification `json:"notification"`
	Source       string              `json:"source"`
	Timestamp    time.Time           `json:"timestamp"`
}

func NewNotificationMessage(n notify.Notification, source string) *NotificationMessage {
	return &NotificationMessage{
		Notification: n,
		Source:       source,
		Timestamp:    time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *NotificationMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// NotificationMessageFromJSON decodes a message and checks it carries a
// notification.
func NotificationMessageFromJSON(data []byte) (*NotificationMessage, error) {
	var msg NotificationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Notification.Title == "" {
		return nil, fmt.Errorf("notification message without title")
	}
	return &msg, nil
}
