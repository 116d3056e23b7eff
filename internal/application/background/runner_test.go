package background

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunner_Submit(t *testing.T) {
	t.Run("runs tasks and swallows errors", func(t *testing.T) {
		r := NewRunner(context.Background(), 4, time.Second)

		var calls atomic.Int32
		for range 3 {
			ok := r.Submit("failing", func(ctx context.Context) error {
				calls.Add(1)
				return errors.New("boom")
			})
			assert.True(t, ok)
		}

		r.Wait()
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("drops task when saturated", func(t *testing.T) {
		r := NewRunner(context.Background(), 1, time.Second)

		release := make(chan struct{})
		assert.True(t, r.Submit("blocking", func(ctx context.Context) error {
			<-release
			return nil
		}))

		assert.False(t, r.Submit("dropped", func(ctx context.Context) error {
			t.Error("dropped task must not run")
			return nil
		}))

		close(release)
		r.Wait()
	})

	t.Run("task context survives parent cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		r := NewRunner(ctx, 1, time.Second)
		cancel()

		var taskErr error
		r.Submit("checkpoint", func(ctx context.Context) error {
			taskErr = ctx.Err()
			return nil
		})
		r.Wait()

		assert.NoError(t, taskErr)
	})
}
