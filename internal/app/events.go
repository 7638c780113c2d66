package app

import (
	"context"
	"fmt"
	"log"

	"faceattend/internal/attendance"
	"faceattend/internal/queue"
)

// ConsumeEvents logs attendance events from q until ctx ends and returns how
// many were handled.
func ConsumeEvents(ctx context.Context, q queue.Queue) (int, error) {
	messages, err := q.Consume(ctx)
	if err != nil {
		return 0, fmt.Errorf("queue consume init failed: %w", err)
	}
	return logEvents(messages), nil
}

func logEvents(messages <-chan queue.Message) int {
	processed := 0
	for msg := range messages {
		if msg.Type != attendance.EventMarked {
			log.Printf("ignoring message type %q", msg.Type)
			continue
		}
		evt, err := attendance.ParseMarkedMessage(msg)
		if err != nil {
			log.Printf("bad %s message: %v", attendance.EventMarked, err)
			continue
		}
		log.Printf("event %s: %s present on %s at %s (distance %.3f)", evt.ID, evt.Name, evt.Date, evt.Time, evt.Distance)
		processed++
	}
	return processed
}
