package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAudioQueue_FIFO(t *testing.T) {
	q := NewAudioQueue()
	for i := 0; i < 100; i++ {
		require.True(t, q.Put([]byte{byte(i)}))
	}
	assert.Equal(t, 100, q.Len())
	assert.Equal(t, 100, q.Size())

	for i := 0; i < 100; i++ {
		chunk, err := q.Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, byte(i), chunk[0])
	}
	assert.Equal(t, 0, q.Size())
}

func TestAudioQueue_GetBlocksUntilPut(t *testing.T) {
	q := NewAudioQueue()
	got := make(chan []byte, 1)
	go func() {
		chunk, _ := q.Get(context.Background())
		got <- chunk
	}()

	select {
	case <-got:
		t.Fatal("Get returned on an empty queue")
	case <-time.After(20 * time.Millisecond):
	}

	q.Put([]byte("pcm"))
	select {
	case chunk := <-got:
		assert.Equal(t, []byte("pcm"), chunk)
	case <-time.After(time.Second):
		t.Fatal("Get did not wake up")
	}
}

func TestAudioQueue_Clear(t *testing.T) {
	q := NewAudioQueue()
	q.Put([]byte{1, 2})
	q.Put([]byte{3})

	assert.Equal(t, 2, q.Clear())
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 0, q.Size())

	q.Put([]byte{4})
	chunk, err := q.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{4}, chunk)
}

func TestAudioQueue_CloseWakesConsumer(t *testing.T) {
	q := NewAudioQueue()
	errCh := make(chan error, 1)
	go func() {
		_, err := q.Get(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("Close did not wake the consumer")
	}
	assert.False(t, q.Put([]byte{1}))
	q.Close()
}

func TestAudioQueue_GetHonoursContext(t *testing.T) {
	q := NewAudioQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := q.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
