package ingest

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineQueueFIFO(t *testing.T) {
	q := newLineQueue()
	q.push("a")
	q.push("b")
	q.push("c")

	for _, want := range []string{"a", "b", "c"} {
		got, ok := q.pop()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestLineQueueCloseUnblocksConsumer(t *testing.T) {
	q := newLineQueue()

	done := make(chan struct{})
	go func() {
		_, ok := q.pop()
		assert.False(t, ok)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	q.close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pop did not unblock on close")
	}
}

func TestLineQueueDrainsAfterClose(t *testing.T) {
	q := newLineQueue()
	q.push("pending")
	q.close()

	// Lines queued before the close still come out.
	got, ok := q.pop()
	assert.True(t, ok)
	assert.Equal(t, "pending", got)

	_, ok = q.pop()
	assert.False(t, ok)

	// Pushes after close are discarded.
	q.push("late")
	_, ok = q.pop()
	assert.False(t, ok)
}

func TestLineQueueConcurrentProducers(t *testing.T) {
	q := newLineQueue()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				q.push("line")
			}
		}()
	}
	wg.Wait()
	q.close()

	n := 0
	for {
		_, ok := q.pop()
		if !ok {
			break
		}
		n++
	}
	assert.Equal(t, 200, n)
}
