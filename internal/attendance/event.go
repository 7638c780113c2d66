package attendance

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"faceattend/internal/queue"
)

// EventMarked is the queue message type published for every new attendance record.
const EventMarked = "attendance.marked"

// MarkedEvent is the payload of an EventMarked message.
type MarkedEvent struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Date     string  `json:"date"`
	Time     string  `json:"time"`
	Distance float64 `json:"distance"`
}

// NewMarkedMessage wraps rec in a queue message with a fresh event id.
func NewMarkedMessage(rec Record, distance float64) (queue.Message, error) {
	body, err := json.Marshal(MarkedEvent{
		ID:       uuid.NewString(),
		Name:     rec.Name,
		Date:     rec.Date,
		Time:     rec.Time,
		Distance: distance,
	})
	if err != nil {
		return queue.Message{}, err
	}
	return queue.Message{Type: EventMarked, Body: body}, nil
}

// ParseMarkedMessage decodes an EventMarked message.
func ParseMarkedMessage(msg queue.Message) (MarkedEvent, error) {
	if msg.Type != EventMarked {
		return MarkedEvent{}, fmt.Errorf("unexpected message type %q", msg.Type)
	}
	var evt MarkedEvent
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		return MarkedEvent{}, fmt.Errorf("decode %s: %w", EventMarked, err)
	}
	return evt, nil
}
