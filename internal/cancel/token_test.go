package cancel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenIsWriteOnce(t *testing.T) {
	tok := New()
	assert.False(t, tok.Cancelled())

	tok.Cancel()
	tok.Cancel()
	assert.True(t, tok.Cancelled())

	select {
	case <-tok.Done():
	default:
		t.Fatal("Done channel not closed after Cancel")
	}
}

func TestConcurrentCancel(t *testing.T) {
	tok := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok.Cancel()
			_ = tok.Cancelled()
		}()
	}
	wg.Wait()
	assert.True(t, tok.Cancelled())
}

func TestNilToken(t *testing.T) {
	var tok *Token
	assert.False(t, tok.Cancelled())
	assert.Nil(t, tok.Done())
}

func TestBind(t *testing.T) {
	t.Run("context cancellation sets token", func(t *testing.T) {
		tok := New()
		ctx, cancel := context.WithCancel(context.Background())
		stop := tok.Bind(ctx)
		defer stop()

		cancel()
		assert.Eventually(t, tok.Cancelled, time.Second, 5*time.Millisecond)
	})

	t.Run("stop detaches watcher", func(t *testing.T) {
		tok := New()
		ctx, cancel := context.WithCancel(context.Background())
		stop := tok.Bind(ctx)
		stop()
		stop()
		cancel()

		time.Sleep(20 * time.Millisecond)
		assert.False(t, tok.Cancelled())
	})
}
