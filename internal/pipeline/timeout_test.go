package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeoutErrorMessage(t *testing.T) {
	err := &TimeoutError{Timeout: 120 * time.Second}
	assert.Equal(t, "OCR timed out after 2m0s", err.Error())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunWithTimeout(t *testing.T) {
	ok := func(context.Context) *Result { return &Result{Text: "done"} }

	t.Run("finishes in time", func(t *testing.T) {
		res := RunWithTimeout(context.Background(), time.Second, ok)
		assert.Equal(t, "done", res.Text)
	})

	t.Run("no budget", func(t *testing.T) {
		res := RunWithTimeout(context.Background(), 0, ok)
		assert.Equal(t, "done", res.Text)
	})

	t.Run("ignores context and overruns", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		start := time.Now()
		res := RunWithTimeout(context.Background(), 20*time.Millisecond, func(context.Context) *Result {
			<-release
			return &Result{Text: "late"}
		})
		assert.Less(t, time.Since(start), time.Second)
		assert.Equal(t, "OCR timed out after 20ms", res.Error)
		assert.Empty(t, res.Text)
		var te *TimeoutError
		require.ErrorAs(t, res.Err(), &te)
	})

	t.Run("honors context", func(t *testing.T) {
		res := RunWithTimeout(context.Background(), 20*time.Millisecond, func(ctx context.Context) *Result {
			<-ctx.Done()
			return NewFailedResult(ctx.Err())
		})
		assert.Equal(t, "OCR timed out after 20ms", res.Error)
	})

	t.Run("parent canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		res := RunWithTimeout(ctx, time.Second, func(ctx context.Context) *Result {
			<-ctx.Done()
			return NewFailedResult(ctx.Err())
		})
		assert.True(t, errors.Is(res.Err(), context.Canceled))
	})
}
