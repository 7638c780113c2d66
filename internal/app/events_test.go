package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faceattend/internal/attendance"
	"faceattend/internal/queue"
)

func TestLogEventsCountsMarked(t *testing.T) {
	good, err := attendance.NewMarkedMessage(attendance.Record{Name: "bob", Date: "2024-01-01", Time: "09:00:00"}, 0.31)
	require.NoError(t, err)

	ch := make(chan queue.Message, 4)
	ch <- good
	ch <- queue.Message{Type: "checkin", Body: []byte("legacy")}
	ch <- queue.Message{Type: attendance.EventMarked, Body: []byte("{not json")}
	ch <- good
	close(ch)

	assert.Equal(t, 2, logEvents(ch))
}

func TestConsumeEventsStopsWithContext(t *testing.T) {
	q := queue.NewInMemory(4)
	msg, err := attendance.NewMarkedMessage(attendance.Record{Name: "ann", Date: "2024-01-01", Time: "08:00:00"}, 0.2)
	require.NoError(t, err)
	require.NoError(t, q.Publish(context.Background(), msg))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int)
	go func() {
		n, err := ConsumeEvents(ctx, q)
		assert.NoError(t, err)
		done <- n
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case n := <-done:
		assert.Equal(t, 1, n)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}
