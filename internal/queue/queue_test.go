package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Message
	}{
		{"typed", "attendance.marked|{\"name\":\"bob\"}", Message{Type: "attendance.marked", Body: []byte(`{"name":"bob"}`)}},
		{"pipe in body", "t|a|b", Message{Type: "t", Body: []byte("a|b")}},
		{"no separator", "raw", Message{Body: []byte("raw")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decode(tt.in))
		})
	}
	msg := Message{Type: "x", Body: []byte("y")}
	assert.Equal(t, msg, Decode(Encode(msg)))
}

func TestInMemory(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	require.NoError(t, q.Publish(ctx, Message{Type: "a", Body: []byte("1")}))
	require.NoError(t, q.Publish(ctx, Message{Type: "b", Body: []byte("2")}))

	ch, err := q.Consume(ctx)
	require.NoError(t, err)

	for _, want := range []string{"a", "b"} {
		select {
		case msg := <-ch:
			assert.Equal(t, want, msg.Type)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestInMemoryPublishDoesNotBlock(t *testing.T) {
	q := NewInMemory(1)
	require.NoError(t, q.Publish(context.Background(), Message{Type: "fill"}))
	assert.ErrorIs(t, q.Publish(context.Background(), Message{Type: "overflow"}), ErrFull)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewInMemory(1).Publish(ctx, Message{Type: "late"}), context.Canceled)
}
